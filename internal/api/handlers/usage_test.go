package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codetutor/internal/core"
	"codetutor/internal/types"
)

type mockReporter struct {
	calls []string
	err   error
}

func (m *mockReporter) Summary(_ context.Context, userID string, plan types.PlanName) (*types.UsageSummary, error) {
	m.calls = append(m.calls, userID+"/"+string(plan))
	if m.err != nil {
		return nil, m.err
	}
	return &types.UsageSummary{
		UserID: userID,
		Plan:   plan,
		Counters: []types.UsageCounter{
			{Feature: types.FeatureAnalyses, PeriodKey: "2026-10-14", Count: 3, Limit: 50, ResetsAt: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)},
		},
	}, nil
}

func newUsageEnv(t *testing.T, actor *types.Actor, rep *mockReporter, profiles ProfileReader) *testEnv {
	t.Helper()
	h := NewUsageHandler(rep, profiles, discardLogger())
	return newTestEnv(t, actor, func(r chi.Router, s *core.Server) { h.RegisterRoutes(r, s) })
}

func TestUsage_Mine(t *testing.T) {
	rep := &mockReporter{}
	env := newUsageEnv(t, testActor, rep, nil)

	rec := env.do(http.MethodGet, "/v1/usage", "", true)
	assertStatus(t, rec, http.StatusOK)

	var out types.UsageSummary
	decodeData(t, rec, &out)
	assert.Equal(t, []string{"user-1/standard"}, rep.calls)
	require.Len(t, out.Counters, 1)
	assert.Equal(t, int64(3), out.Counters[0].Count)
	assert.Equal(t, []string{"user:user-1"}, env.limiters["general"].Keys)
}

func TestUsage_StoreFailure(t *testing.T) {
	rep := &mockReporter{err: types.NewAppError(types.ErrCodeStoreTimeout, "Usage store timed out", nil)}
	env := newUsageEnv(t, testActor, rep, nil)

	rec := env.do(http.MethodGet, "/v1/usage", "", true)
	assertStatus(t, rec, http.StatusServiceUnavailable)
}

func TestAdminUsage(t *testing.T) {
	admin := &types.Actor{UserID: "admin-1", Plan: types.PlanEnterprise, IsAdmin: true}
	profiles := &mockProfiles{byID: map[string]*types.Profile{
		"user-7": {UserID: "user-7", Plan: types.PlanProfessional},
	}}

	tests := []struct {
		name      string
		actor     *types.Actor
		path      string
		status    int
		code      types.ErrorCode
		wantCalls []string
	}{
		{name: "admin reads another user", actor: admin, path: "/v1/admin/users/user-7/usage", status: http.StatusOK, wantCalls: []string{"user-7/professional"}},
		{name: "unknown user", actor: admin, path: "/v1/admin/users/ghost/usage", status: http.StatusNotFound, code: types.ErrCodeNotFoundUser},
		{name: "non-admin", actor: testActor, path: "/v1/admin/users/user-7/usage", status: http.StatusForbidden, code: types.ErrCodePermissionAdminRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &mockReporter{}
			env := newUsageEnv(t, tt.actor, rep, profiles)

			rec := env.do(http.MethodGet, tt.path, "", true)
			assertStatus(t, rec, tt.status)
			if tt.code != "" {
				assert.Equal(t, string(tt.code), decode(t, rec).Code)
			}
			assert.Equal(t, tt.wantCalls, rep.calls)
			assert.Equal(t, []string{"ip:192.0.2.1"}, env.limiters["admin"].Keys)
		})
	}
}

func TestAdminUsage_WithoutProfilesUsesFreePlan(t *testing.T) {
	rep := &mockReporter{}
	env := newUsageEnv(t, &types.Actor{UserID: "admin-1", IsAdmin: true}, rep, nil)

	rec := env.do(http.MethodGet, "/v1/admin/users/user-7/usage", "", true)
	assertStatus(t, rec, http.StatusOK)
	assert.Equal(t, []string{"user-7/free"}, rep.calls)
}
