package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"codetutor/internal/types"
)

// ProfileRepository provides data access for the profiles table.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a ProfileRepository backed by the given
// database connection (pool or transaction).
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID returns the profile for a Supabase user id.
// Returns auth_profile_not_found when the user has no profile row.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*types.Profile, error) {
	var p types.Profile
	err := r.db.QueryRow(ctx,
		`SELECT id, email, plan, is_admin FROM profiles WHERE id = $1`,
		userID,
	).Scan(&p.UserID, &p.Email, &p.Plan, &p.IsAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthProfileNotFound, "User profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return &p, nil
}

// Create inserts the profile row for a newly signed-up user. New users start
// on the free plan unless p.Plan is set.
func (r *ProfileRepository) Create(ctx context.Context, p *types.Profile) error {
	plan := p.Plan
	if plan == "" {
		plan = types.PlanFree
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO profiles (id, email, plan, is_admin)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		p.UserID, p.Email, plan, p.IsAdmin,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create profile", err)
	}
	p.Plan = plan
	return nil
}

const adminProfileColumns = `id, email, COALESCE(name, ''), plan, is_admin, approval_status,
	COALESCE(approval_notes, ''), approved_at, COALESCE(approved_by::text, ''), created_at`

func scanAdminProfile(row pgx.Row, extra ...any) (*types.Profile, error) {
	var p types.Profile
	dest := []any{
		&p.UserID, &p.Email, &p.Name, &p.Plan, &p.IsAdmin, &p.ApprovalStatus,
		&p.ApprovalNotes, &p.ApprovedAt, &p.ApprovedBy, &p.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns profiles newest first, optionally filtered by approval
// status, together with the total number of matching rows.
func (r *ProfileRepository) List(ctx context.Context, f types.ProfileFilter) ([]*types.Profile, int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+adminProfileColumns+`, count(*) OVER ()
		 FROM profiles
		 WHERE ($1::text = '' OR approval_status::text = $1)
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		string(f.Status), f.Limit, f.Offset,
	)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	defer rows.Close()

	var (
		out   []*types.Profile
		total int64
	)
	for rows.Next() {
		p, err := scanAdminProfile(rows, &total)
		if err != nil {
			return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	return out, total, nil
}

// SetApproval records an admin decision on userID and returns the updated
// profile. Returns not_found_user when there is no such profile.
func (r *ProfileRepository) SetApproval(ctx context.Context, userID string, status types.ApprovalStatus, notes, adminID string, at time.Time) (*types.Profile, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE profiles
		 SET approval_status = $2, approval_notes = NULLIF($3, ''), approved_at = $4, approved_by = $5
		 WHERE id = $1
		 RETURNING `+adminProfileColumns,
		userID, string(status), notes, at, adminID,
	)
	p, err := scanAdminProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "User not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update user approval", err)
	}
	return p, nil
}

// Stats counts profiles per approval status and those created since.
func (r *ProfileRepository) Stats(ctx context.Context, since time.Time) (*types.ApprovalStats, error) {
	var s types.ApprovalStats
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE approval_status = 'pending'),
		        count(*) FILTER (WHERE approval_status = 'approved'),
		        count(*) FILTER (WHERE approval_status = 'rejected'),
		        count(*) FILTER (WHERE created_at >= $1)
		 FROM profiles`,
		since,
	).Scan(&s.Pending, &s.Approved, &s.Rejected, &s.TodaySignups)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count users", err)
	}
	return &s, nil
}
