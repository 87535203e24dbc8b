package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

// DefaultTimeout bounds a single store call.
const DefaultTimeout = 500 * time.Millisecond

// Decision is the outcome of Consume. Deny is a normal result; errors are
// returned only when the store could not answer.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1.
func (d Decision) RetryAfterSeconds() int {
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Limiter enforces one Config against a Store.
type Limiter struct {
	cfg     Config
	store   Store
	timeout time.Duration
	now     func() time.Time
}

// NewLimiter creates a Limiter. A non-positive timeout selects DefaultTimeout.
func NewLimiter(cfg Config, store Store, timeout time.Duration) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Limiter{cfg: cfg, store: store, timeout: timeout, now: time.Now}, nil
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Consume spends one point for clientKey. The point is spent on admission;
// later cancellation of the request does not refund it.
func (l *Limiter) Consume(ctx context.Context, clientKey string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.store.Consume(ctx, "rl:"+l.cfg.Name+":"+clientKey, l.cfg)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:    !res.Blocked,
		Limit:      l.cfg.Points,
		Remaining:  max(l.cfg.Points-res.Consumed, 0),
		RetryAfter: res.ResetIn,
		ResetAt:    l.now().Add(res.ResetIn),
	}
	if res.Blocked {
		d.Remaining = 0
	}
	return d, nil
}

// Set is the collection of named limiters sharing one store.
type Set struct {
	limiters map[string]*Limiter
}

// NewSet builds one Limiter per config over store.
func NewSet(configs map[string]Config, store Store, timeout time.Duration) (*Set, error) {
	s := &Set{limiters: make(map[string]*Limiter, len(configs))}
	for name, cfg := range configs {
		l, err := NewLimiter(cfg, store, timeout)
		if err != nil {
			return nil, err
		}
		s.limiters[name] = l
	}
	return s, nil
}

// Get returns the named limiter, or nil if none is configured.
func (s *Set) Get(name string) *Limiter {
	if s == nil {
		return nil
	}
	return s.limiters[name]
}
