package envselect

import (
	"errors"
	"testing"
	"time"

	"sfgate/config"
	"sfgate/credstore"
)

func testConfig() *config.Config {
	return &config.Config{
		OrgKey:        "test-org",
		PendingWindow: 5 * time.Minute,
		Environments: map[string]config.OrgConfig{
			config.EnvSandbox:    {Environment: "sandbox", ConsumerKey: "sb-key"},
			config.EnvProduction: {Environment: "production", ConsumerKey: "pr-key"},
		},
	}
}

func TestResolveExplicit(t *testing.T) {
	s := New(testConfig(), credstore.NewMemStore())

	org, err := s.Resolve("sandbox")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := org.ConsumerKey, "sb-key"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
}

func TestResolveInvalid(t *testing.T) {
	s := New(testConfig(), credstore.NewMemStore())

	if _, err := s.Resolve("staging"); !errors.Is(err, ErrInvalidEnvironment) {
		t.Errorf("expected ErrInvalidEnvironment, got %v", err)
	}
}

func TestResolveSelectionRequired(t *testing.T) {
	s := New(testConfig(), credstore.NewMemStore())

	if _, err := s.Resolve(""); !errors.Is(err, ErrSelectionRequired) {
		t.Errorf("expected ErrSelectionRequired, got %v", err)
	}
}

func TestResolveLastUsed(t *testing.T) {
	store := credstore.NewMemStore()
	s := New(testConfig(), store)

	if err := s.Remember("production"); err != nil {
		t.Fatal(err)
	}

	org, err := s.Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := org.Environment, "production"; got != want {
		t.Errorf("got %s want %s", got, want)
	}
}

// TestResolveStaleLastUsed checks that a stored value outside the allowed
// set is rejected rather than trusted.
func TestResolveStaleLastUsed(t *testing.T) {
	store := credstore.NewMemStore()
	s := New(testConfig(), store)

	if err := credstore.RememberEnvironment(store, "legacy-env"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resolve(""); !errors.Is(err, ErrInvalidEnvironment) {
		t.Errorf("expected ErrInvalidEnvironment, got %v", err)
	}
}
