package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"codetutor/internal/quota"
)

// UsageStore is the Postgres quota.Store. Each increment is one upsert
// statement, so row-level locking on the conflict target serializes
// concurrent increments for the same counter.
type UsageStore struct {
	db DBTX
}

// NewUsageStore creates a UsageStore backed by the given connection.
func NewUsageStore(db DBTX) *UsageStore {
	return &UsageStore{db: db}
}

// GetCount returns the counter value or 0 when the row does not exist.
//
// SQL: SELECT count FROM usage_counters
//
//	WHERE user_id = $1 AND metric = $2 AND period_key = $3
func (s *UsageStore) GetCount(ctx context.Context, key quota.Key) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT count
		 FROM usage_counters
		 WHERE user_id = $1 AND metric = $2 AND period_key = $3`,
		key.UserID, string(key.Feature), key.Period,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, quota.StoreError("get", err)
	}
	return count, nil
}

// IncrementAndGet creates the counter at 1 or adds 1 to it and returns the
// new value in a single round trip.
func (s *UsageStore) IncrementAndGet(ctx context.Context, key quota.Key) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO usage_counters (user_id, metric, period_key, count, updated_at)
		 VALUES ($1, $2, $3, 1, NOW())
		 ON CONFLICT (user_id, metric, period_key)
		 DO UPDATE SET count = usage_counters.count + 1, updated_at = NOW()
		 RETURNING count`,
		key.UserID, string(key.Feature), key.Period,
	).Scan(&count)
	if err != nil {
		return 0, quota.StoreError("increment", err)
	}
	return count, nil
}
