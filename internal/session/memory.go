package session

import "sync"

// MemoryBackend stores tokens in plain process memory. It is the only
// backend permitted to hold plaintext tokens at rest, since "at rest" for
// this backend means "inside this process's heap" and nothing is ever
// written to disk or the network.
type MemoryBackend struct {
	mu     sync.RWMutex
	tokens map[Key]Token
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tokens: make(map[Key]Token)}
}

func (m *MemoryBackend) Get(userID, provider string) (Token, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[Key{UserID: userID, Provider: provider}]
	return t, ok, nil
}

func (m *MemoryBackend) Put(token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.key()] = token
	return nil
}

func (m *MemoryBackend) Delete(userID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, Key{UserID: userID, Provider: provider})
	return nil
}

func (m *MemoryBackend) List() ([]Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]Key, 0, len(m.tokens))
	for k := range m.tokens {
		keys = append(keys, k)
	}
	return keys, nil
}
