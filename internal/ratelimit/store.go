package ratelimit

import (
	"context"
	"time"
)

// Result is what a store reports for one consume attempt.
type Result struct {
	// Consumed is the number of points used in the current window,
	// including this request. Zero when the request hit an active block.
	Consumed int
	// Blocked is true when the key is in its cooldown, either already or
	// because this request exhausted the window.
	Blocked bool
	// ResetIn is the time until the window ends or, when Blocked, until the
	// block lifts.
	ResetIn time.Duration
}

// Store holds limiter state keyed by limiter name and client identity.
// Consume must be atomic per key: a blocked key consumes nothing and the
// increment and block decision happen in one step.
type Store interface {
	Consume(ctx context.Context, key string, cfg Config) (Result, error)
}
