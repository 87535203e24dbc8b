package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"codetutor/internal/config"
	"codetutor/internal/core"
	"codetutor/internal/ratelimit"
	"codetutor/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type testEnv struct {
	srv      *core.Server
	auth     *core.MockAuthenticator
	limiters map[string]*core.MockRateLimiter
	quota    *core.MockQuotaChecker
	usage    *core.MockUsageRecorder
}

// newTestEnv builds a mounted server with permissive guards. The registrar
// mounts the handler under /v1.
func newTestEnv(t *testing.T, actor *types.Actor, registrar func(chi.Router, *core.Server)) *testEnv {
	t.Helper()

	cfg := &config.Config{Environment: "local"}
	cfg.Server.CorsAllowedOrigins = []string{"*"}
	cfg.Limits.MaxCodeSize = 1_000_000

	srv, err := core.NewServer(cfg, discardLogger())
	require.NoError(t, err)

	env := &testEnv{
		srv:      srv,
		auth:     &core.MockAuthenticator{Actor: actor},
		limiters: map[string]*core.MockRateLimiter{},
		quota:    &core.MockQuotaChecker{},
		usage:    &core.MockUsageRecorder{},
	}
	for name := range ratelimit.DefaultConfigs() {
		l := &core.MockRateLimiter{}
		env.limiters[name] = l
		srv.Limiters[name] = l
	}
	srv.Authenticator = env.auth
	srv.Quota = env.quota
	srv.Usage = env.usage
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) { registrar(r, srv) })
	srv.MountRoutes()
	return env
}

func (e *testEnv) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.RemoteAddr = "192.0.2.1:4000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer test-token")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decode(t, rec)
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// mockProfiles serves profiles from a map; missing ids are not found.
type mockProfiles struct {
	byID      map[string]*types.Profile
	createErr error
	getErr    error
	created   []*types.Profile
}

func (m *mockProfiles) GetByID(_ context.Context, userID string) (*types.Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if p, ok := m.byID[userID]; ok {
		return p, nil
	}
	return nil, types.NewAppError(types.ErrCodeAuthProfileNotFound, "User profile not found", nil)
}

func (m *mockProfiles) Create(_ context.Context, p *types.Profile) error {
	if m.createErr != nil {
		return m.createErr
	}
	if p.Plan == "" {
		p.Plan = types.PlanFree
	}
	m.created = append(m.created, p)
	return nil
}

var testActor = &types.Actor{UserID: "user-1", Email: "dev@example.com", Plan: types.PlanStandard}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (%s)", rec.Code, want, rec.Body.String())
	}
}
