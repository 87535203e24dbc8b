package quota

import (
	"context"
	"log/slog"
	"time"

	"codetutor/internal/types"
)

// Recorder counts a unit of work after it succeeded. Recording is best
// effort: failures are logged and never surface to the caller, whose work
// has already completed.
type Recorder struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder. A non-positive timeout selects
// DefaultStoreTimeout.
func NewRecorder(store Store, timeout time.Duration, logger *slog.Logger) *Recorder {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Recorder{
		store:   store,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Record increments the current period's counter for userID and feature.
//
// If ctx was already cancelled the work is treated as abandoned and nothing
// is recorded. Otherwise the increment runs detached from ctx cancellation,
// bounded by the recorder's timeout. A returned error has already been
// logged; callers only use it for accounting and must not fail the response.
func (r *Recorder) Record(ctx context.Context, userID string, feature types.Feature) error {
	if ctx.Err() != nil {
		r.logger.InfoContext(ctx, "usage not recorded for cancelled request",
			"user_id", userID, "feature", feature)
		return nil
	}

	key, _ := NewKey(userID, feature, r.now())

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	count, err := r.store.IncrementAndGet(writeCtx, key)
	if err != nil {
		err = StoreError("increment", err)
		r.logger.ErrorContext(ctx, "failed to record usage",
			"user_id", userID,
			"feature", feature,
			"period", key.Period,
			"error", err,
		)
		return err
	}

	r.logger.DebugContext(ctx, "usage recorded",
		"user_id", userID, "feature", feature, "period", key.Period, "count", count)
	return nil
}
