package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how often expired entries are dropped from memory.
const sweepInterval = time.Minute

type memoryEntry struct {
	consumed     int
	windowExpiry time.Time
	blockedUntil time.Time
}

// MemoryStore keeps limiter state in process memory. State is lost on restart
// and not shared between instances.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryStore returns an empty MemoryStore. now is the clock; nil selects
// time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     now,
	}
}

func (s *MemoryStore) Consume(ctx context.Context, key string, cfg Config) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{}
		s.entries[key] = e
	}

	if now.Before(e.blockedUntil) {
		return Result{Blocked: true, ResetIn: e.blockedUntil.Sub(now)}, nil
	}

	if !now.Before(e.windowExpiry) {
		e.consumed = 0
		e.windowExpiry = now.Add(cfg.Duration)
	}

	e.consumed++
	if e.consumed > cfg.Points {
		consumed := e.consumed
		// The block replaces the window; a fresh window starts once it lifts.
		e.consumed = 0
		e.windowExpiry = time.Time{}
		e.blockedUntil = now.Add(cfg.BlockDuration)
		return Result{Consumed: consumed, Blocked: true, ResetIn: cfg.BlockDuration}, nil
	}

	return Result{Consumed: e.consumed, ResetIn: e.windowExpiry.Sub(now)}, nil
}

// sweep drops entries whose window and block have both passed. Caller holds mu.
func (s *MemoryStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < sweepInterval {
		return
	}
	s.lastSweep = now
	for k, e := range s.entries {
		if !now.Before(e.windowExpiry) && !now.Before(e.blockedUntil) {
			delete(s.entries, k)
		}
	}
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
