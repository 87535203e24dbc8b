package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"codetutor/internal/types"
)

func TestProfileRepository_List(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	approved := created.Add(time.Hour)
	rows := newMockRows([][]any{
		{"user_2", "b@example.com", "Bee", types.PlanFree, false, types.ApprovalPending, "", nil, "", created, int64(2)},
		{"user_1", "a@example.com", "", types.PlanStandard, false, types.ApprovalPending, "looks fine", approved, "admin-1", created.Add(-time.Hour), int64(2)},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"pending", 50, 0}).Return(rows, nil)

	list, total, err := repo.List(context.Background(), types.ProfileFilter{Status: types.ApprovalPending, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, "Bee", list[0].Name)
	assert.Nil(t, list[0].ApprovedAt)
	require.NotNil(t, list[1].ApprovedAt)
	assert.Equal(t, approved, *list[1].ApprovedAt)
	assert.Equal(t, "admin-1", list[1].ApprovedBy)
	assert.True(t, rows.closed)
}

func TestProfileRepository_List_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)
	db.On("Query", mock.Anything, mock.Anything, []any{"", 10, 20}).Return(newMockRows(nil), nil)

	list, total, err := repo.List(context.Background(), types.ProfileFilter{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestProfileRepository_List_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("conn reset"))

	_, _, err := repo.List(context.Background(), types.ProfileFilter{Limit: 10})
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestProfileRepository_SetApproval(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	at := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	row := &mockRow{scanFn: func(dest ...any) error {
		require.Len(t, dest, 10)
		*dest[0].(*string) = "user_1"
		*dest[5].(*types.ApprovalStatus) = types.ApprovalApproved
		*dest[6].(*string) = "welcome"
		*dest[7].(**time.Time) = &at
		*dest[8].(*string) = "admin-1"
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"),
		[]any{"user_1", "approved", "welcome", at, "admin-1"}).Return(row)

	p, err := repo.SetApproval(context.Background(), "user_1", types.ApprovalApproved, "welcome", "admin-1", at)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, p.ApprovalStatus)
	assert.Equal(t, "admin-1", p.ApprovedBy)
	db.AssertExpectations(t)
}

func TestProfileRepository_SetApproval_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.SetApproval(context.Background(), "ghost", types.ApprovalRejected, "", "admin-1", time.Now())
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundUser))
}

func TestProfileRepository_Stats(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db)

	since := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = 4
		*dest[1].(*int64) = 10
		*dest[2].(*int64) = 1
		*dest[3].(*int64) = 2
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{since}).Return(row)

	s, err := repo.Stats(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalStats{Pending: 4, Approved: 10, Rejected: 1, TodaySignups: 2}, *s)
}
