package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// FallbackStore sends calls to a shared primary store through a circuit
// breaker and answers from a process-local store while the primary is
// failing. Limits enforced by the fallback only hold per instance.
type FallbackStore struct {
	primary  Store
	fallback Store
	breaker  *gobreaker.CircuitBreaker[Result]
	logger   *slog.Logger
}

// NewFallbackStore wraps primary with a breaker that opens after five
// consecutive failures and tries the primary again after cooldown.
func NewFallbackStore(primary, fallback Store, cooldown time.Duration, logger *slog.Logger) *FallbackStore {
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	fs := &FallbackStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
	fs.breaker = gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rate limit store breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return fs
}

func (s *FallbackStore) Consume(ctx context.Context, key string, cfg Config) (Result, error) {
	res, err := s.breaker.Execute(func() (Result, error) {
		return s.primary.Consume(ctx, key, cfg)
	})
	if err == nil {
		return res, nil
	}

	s.logger.WarnContext(ctx, "rate limit store unavailable, using in-process state",
		slog.String("limiter", cfg.Name),
		slog.String("error", err.Error()),
	)
	// A slow primary exhausts the caller's deadline; the local store must
	// still answer.
	return s.fallback.Consume(context.WithoutCancel(ctx), key, cfg)
}

// State reports the breaker state for health checks.
func (s *FallbackStore) State() gobreaker.State {
	return s.breaker.State()
}
