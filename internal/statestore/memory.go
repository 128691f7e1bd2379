package statestore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	current map[string][]byte
	history map[string][]Version
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		current: make(map[string][]byte),
		history: make(map[string][]Version),
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, tx TxContext, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.current[key] = v
	s.history[key] = append(s.history[key], Version{TxID: tx.ID, At: tx.At, Value: v})
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.current[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, tx TxContext, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.current, key)
	s.history[key] = append(s.history[key], Version{TxID: tx.ID, At: tx.At, IsDelete: true})
	return nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, key string) ([]Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.history[key]
	out := make([]Version, len(versions))
	copy(out, versions)
	return out, nil
}

// Scan implements Store.
func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []KV
	for k, v := range s.current {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		val := make([]byte, len(v))
		copy(val, v)
		out = append(out, KV{Key: k, Value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close implements Store. It is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }
