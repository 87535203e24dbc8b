// Package quota implements plan quotas: per-period usage counters, the
// pre-check that admits or rejects work, and the recorder that counts work
// after it succeeded.
package quota

import (
	"context"
	"errors"

	"codetutor/internal/types"
)

// Store holds usage counters.
//
// IncrementAndGet must be a single atomic operation on the backing store. N
// concurrent calls for the same key leave the counter at exactly +N.
// Implementations never read, add, and write back in application code.
type Store interface {
	// GetCount returns the current count for key, or 0 if the counter does
	// not exist yet. The value is a snapshot and may be stale.
	GetCount(ctx context.Context, key Key) (int64, error)

	// IncrementAndGet increments the counter for key, creating it at 1 when
	// absent, and returns the new value.
	IncrementAndGet(ctx context.Context, key Key) (int64, error)
}

// StoreError converts a backing store failure into a store_timeout or
// store_unavailable AppError. The raw driver error is kept for logs only.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewAppError(types.ErrCodeStoreTimeout, "usage store timed out during "+op, err)
	}
	return types.NewAppError(types.ErrCodeStoreUnavailable, "usage store unavailable during "+op, err)
}
