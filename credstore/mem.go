package credstore

import "sync"

// MemStore is an in-memory Store for tests and as the backing half of the
// NullStore. Values survive only for the lifetime of the process.
type MemStore struct {
	mu      sync.Mutex
	records map[string]Credentials
}

var _ Store = &MemStore{}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Credentials)}
}

func (m *MemStore) Get(orgKey string) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	creds, ok := m.records[orgKey]
	if !ok {
		return nil, nil
	}
	return &creds, nil
}

func (m *MemStore) Set(orgKey string, creds Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[orgKey] = creds
	return nil
}

func (m *MemStore) Delete(orgKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, orgKey)
	return nil
}

func (m *MemStore) Available() bool {
	return true
}

// NullStore persists nothing. It is the fallback when no OS secret store is
// available: logins still work for the lifetime of the process, they just
// cannot be restored after a restart.
type NullStore struct{}

var _ Store = &NullStore{}

func (n *NullStore) Get(orgKey string) (*Credentials, error) { return nil, nil }
func (n *NullStore) Set(orgKey string, creds Credentials) error { return nil }
func (n *NullStore) Delete(orgKey string) error { return nil }
func (n *NullStore) Available() bool { return true }
