package quota

import (
	"context"
	"sync"
)

// MemoryStore keeps counters in process memory. Counts are lost on restart
// and not shared between instances; it is only selected when neither
// Postgres nor Redis is configured, and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[Key]int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[Key]int64)}
}

func (s *MemoryStore) GetCount(ctx context.Context, key Key) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, StoreError("get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

func (s *MemoryStore) IncrementAndGet(ctx context.Context, key Key) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, StoreError("increment", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}
