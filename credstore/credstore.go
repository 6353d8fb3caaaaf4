// Package credstore persists per-organization Connected App credentials in an
// OS-backed secret store. One JSON-encoded record is held per organization
// key; no credential material is ever written to plain files.
package credstore

import (
	"encoding/json"
	"fmt"
)

// serviceName namespaces entries in the OS secret store.
const serviceName = "sfgate"

// lastEnvironmentKey is a reserved org key under which the last successfully
// used environment name is recorded.
const lastEnvironmentKey = "last-environment"

// Credentials is the persisted record for one organization.
type Credentials struct {
	ConsumerKeyRef string `json:"consumer_key_ref"`
	RefreshToken   string `json:"refresh_token"`
	InstanceURL    string `json:"instance_url"`
	Environment    string `json:"environment"`
}

// Store is the secret store contract. Get returns (nil, nil) when no record
// exists for the key. Implementations must be safe to call from the OAuth
// callback goroutine as well as tool-call goroutines.
type Store interface {
	Get(orgKey string) (*Credentials, error)
	Set(orgKey string, creds Credentials) error
	Delete(orgKey string) error

	// Available reports whether the backing store can be used in the
	// current environment.
	Available() bool
}

// stores is the preference-ordered list of candidate backends.
var stores = []Store{
	&KeychainStore{},
	&SecretToolStore{},
}

// BestStore returns the most preferred available secret store for the
// platform. It falls back to a NullStore, which stores nothing, so that
// login still works for the lifetime of the process.
func BestStore() Store {
	for _, s := range stores {
		if s.Available() {
			return s
		}
	}
	return &NullStore{}
}

// LastEnvironment returns the last environment recorded by RememberEnvironment,
// or "" if none has been recorded.
func LastEnvironment(s Store) (string, error) {
	creds, err := s.Get(lastEnvironmentKey)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", nil
	}
	return creds.Environment, nil
}

// RememberEnvironment records the environment used by the most recent
// successful login.
func RememberEnvironment(s Store, environment string) error {
	return s.Set(lastEnvironmentKey, Credentials{Environment: environment})
}

// ForgetEnvironment removes the last-used environment record.
func ForgetEnvironment(s Store) error {
	return s.Delete(lastEnvironmentKey)
}

func marshalCredentials(creds Credentials) ([]byte, error) {
	b, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}
	return b, nil
}

func unmarshalCredentials(b []byte) (*Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(b, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return &creds, nil
}
