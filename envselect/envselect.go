// Package envselect resolves which Salesforce environment, and therefore
// which Connected App configuration, applies to a login attempt.
package envselect

import (
	"errors"
	"fmt"

	"sfgate/config"
	"sfgate/credstore"
)

// Errors returned by Resolve.
var (
	// ErrSelectionRequired reports that no environment was requested and
	// none has been used before, so the user must choose explicitly.
	ErrSelectionRequired = errors.New("no environment selected: choose sandbox or production")

	// ErrInvalidEnvironment reports an environment outside the allowed set.
	ErrInvalidEnvironment = errors.New("invalid environment: must be sandbox or production")
)

// Selector resolves environment names against the configuration and the
// last-used record in the credential store.
type Selector struct {
	cfg   *config.Config
	store credstore.Store
}

// New creates a Selector.
func New(cfg *config.Config, store credstore.Store) *Selector {
	return &Selector{cfg: cfg, store: store}
}

// Resolve returns the Connected App configuration for the requested
// environment. An empty request falls back to the environment of the last
// successful login; if there is none, ErrSelectionRequired is returned.
func (s *Selector) Resolve(requested string) (config.OrgConfig, error) {
	if requested == "" {
		last, err := credstore.LastEnvironment(s.store)
		if err != nil {
			return config.OrgConfig{}, fmt.Errorf("could not read last environment: %w", err)
		}
		if last == "" {
			return config.OrgConfig{}, ErrSelectionRequired
		}
		requested = last
	}

	if !config.ValidEnvironment(requested) {
		return config.OrgConfig{}, fmt.Errorf("%w: got %q", ErrInvalidEnvironment, requested)
	}

	return s.cfg.Org(requested)
}

// Remember records the environment of a successful login so later logins can
// omit the selection.
func (s *Selector) Remember(environment string) error {
	return credstore.RememberEnvironment(s.store, environment)
}
