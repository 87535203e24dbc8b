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

func TestAnalysisRepository_GetDetail(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)

	now := time.Now().UTC()
	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*string) = "an_1"
		*dest[1].(*string) = "user_1"
		*dest[2].(*string) = "fmt.Println(1)"
		*dest[4].(*string) = "go"
		*dest[9].(*time.Time) = now
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"an_1", "user_1"}).Return(row)

	rows := newMockRows([][]any{
		{"ex_1", "an_1", types.LevelBeginner, types.ModeExplain, "It prints.", "prints", []string{"fmt"}, 1, "model", int64(900), now},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"an_1"}).Return(rows, nil)

	d, err := repo.GetDetail(context.Background(), "user_1", "an_1")
	require.NoError(t, err)
	assert.Equal(t, "fmt.Println(1)", d.Code)
	require.Len(t, d.Explanations, 1)
	assert.Equal(t, types.LevelBeginner, d.Explanations[0].Level)
	assert.Equal(t, []string{"fmt"}, d.Explanations[0].KeyConcepts)
	assert.True(t, rows.closed)
}

func TestAnalysisRepository_GetDetail_OtherOwnerIsNotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAnalysisRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, []any{"an_1", "intruder"}).Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetDetail(context.Background(), "intruder", "an_1")
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundAnalysis))
	db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalysisRepository_Delete(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		err  error
		code types.ErrorCode
	}{
		{name: "deleted", tag: "DELETE 1"},
		{name: "not owned", tag: "DELETE 0", code: types.ErrCodeNotFoundAnalysis},
		{name: "db error", err: errors.New("boom"), code: types.ErrCodeInternalDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewAnalysisRepository(db)
			db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"an_1", "user_1"}).
				Return(pgconnTag(tt.tag), tt.err)

			err := repo.Delete(context.Background(), "user_1", "an_1")
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			assert.True(t, types.IsCode(err, tt.code), "err = %v", err)
		})
	}
}
