package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process store used in tests and one-off local runs.
// State does not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string]map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, scope, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if val, ok := s.scopes[scope][key]; ok {
		return val, nil
	}
	return "", ErrNotFound
}

func (s *MemoryStore) Set(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scopes[scope] == nil {
		s.scopes[scope] = make(map[string]string)
	}
	s.scopes[scope][key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.scopes[scope], key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
