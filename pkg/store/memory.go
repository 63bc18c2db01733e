package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps encoded values in a map. Values are stored as JSON so
// callers see the same copy semantics as the Redis store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	_ = ctx

	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}) error {
	_ = ctx

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncode, key, err)
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// Len is the number of keys held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
