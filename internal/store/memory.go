package store

import (
	"context"
	"sync"
)

// MemoryStore is the default Store when no database is configured. State
// lives for the process lifetime only, which matches the session-scoped
// storage semantics of a browser tab.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func memKey(sessionID, key string) string {
	return sessionID + "\x00" + key
}

// Get returns the stored value, or found=false when absent.
func (s *MemoryStore) Get(_ context.Context, sessionID, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[memKey(sessionID, key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set stores a copy of value under the session-scoped key.
func (s *MemoryStore) Set(_ context.Context, sessionID, key string, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[memKey(sessionID, key)] = buf
	return nil
}

// Delete removes a key; deleting an absent key is not an error.
func (s *MemoryStore) Delete(_ context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, memKey(sessionID, key))
	return nil
}

// DropSession removes every key belonging to a session. Used when the
// session registry evicts an entry.
func (s *MemoryStore) DropSession(sessionID string) {
	prefix := sessionID + "\x00"
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.data, k)
		}
	}
}
