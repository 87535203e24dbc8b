package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"

	"codetutor/internal/config"
	"codetutor/internal/core"
)

const testJWTSecret = "local-dev-jwt-secret-at-least-32-characters"

// buildTestServer runs the production wiring against in-process stores.
// redisURL may be empty.
func buildTestServer(t *testing.T, redisURL string) *core.Server {
	t.Helper()
	setTestEnv(t)
	t.Setenv("REDIS_URL", redisURL)

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	srv.MountRoutes()
	return srv
}

func get(srv *core.Server, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": "dev@example.com",
		"aud":   "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// TestHealthEndpoint verifies that the fully wired server responds with 200
// on GET /health with in-memory stores.
func TestHealthEndpoint(t *testing.T) {
	srv := buildTestServer(t, "")

	rec := get(srv, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health: got status %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("GET /health: got status=%v, want 'healthy'", resp["status"])
	}
}

func TestHealthEndpoint_ReportsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := buildTestServer(t, "redis://"+mr.Addr())

	rec := get(srv, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"redis"`) {
		t.Fatalf("GET /health = %d %s", rec.Code, rec.Body.String())
	}

	mr.Close()
	rec = get(srv, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /health with redis down = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := buildTestServer(t, "")
	get(srv, "/health", "")

	rec := get(srv, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "codetutor_http_requests_total") {
		t.Errorf("request counter missing from /metrics:\n%s", rec.Body.String())
	}
}

func TestUsageWithVerifiedToken(t *testing.T) {
	srv := buildTestServer(t, "")

	rec := get(srv, "/v1/usage", "not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: got %d, want 401", rec.Code)
	}

	rec = get(srv, "/v1/usage", signToken(t, "7b7e6a44-0000-4000-8000-000000000001"))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /v1/usage = %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data struct {
			Plan     string `json:"plan"`
			Counters []struct {
				Feature string `json:"feature"`
				Limit   int64  `json:"limit"`
			} `json:"counters"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Plan != "free" || len(body.Data.Counters) == 0 || body.Data.Counters[0].Limit != 5 {
		t.Errorf("usage = %+v", body.Data)
	}
}

func TestWithoutDatabase(t *testing.T) {
	srv := buildTestServer(t, "")
	token := signToken(t, "7b7e6a44-0000-4000-8000-000000000001")

	if rec := get(srv, "/v1/admin/stats", token); rec.Code != http.StatusNotFound {
		t.Errorf("GET /v1/admin/stats = %d, want 404 without a profile store", rec.Code)
	}
	if rec := get(srv, "/v1/analyze/7b7e6a44-0000-4000-8000-0000000000aa", token); rec.Code != http.StatusNotFound {
		t.Errorf("GET /v1/analyze/{id} = %d, want 404", rec.Code)
	}
}

func TestRateLimitSharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	srv := buildTestServer(t, "redis://"+mr.Addr())

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(`{"refreshToken":""}`))
		req.RemoteAddr = "198.51.100.4:1234"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 30; i++ {
		if rec := post(); rec.Code != http.StatusBadRequest {
			t.Fatalf("request %d: got %d, want 400", i+1, rec.Code)
		}
	}
	rec := post()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 31: got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if len(mr.Keys()) == 0 {
		t.Error("expected limiter state in redis")
	}
}

func TestInvalidPlanPoliciesAbortStartup(t *testing.T) {
	setTestEnv(t)
	t.Setenv("PLAN_POLICIES_JSON", `[{"plan":"free","dailyAnalysesLimit":-5}]`)

	cfg, err := config.LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	_, err = buildServer(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected an error for a negative limit")
	}
}

// TestIsLambdaEnvironment verifies Lambda environment detection logic.
func TestIsLambdaEnvironment(t *testing.T) {
	os.Unsetenv("AWS_LAMBDA_RUNTIME_API")
	os.Unsetenv("_LAMBDA_SERVER_PORT")

	if isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected false when no Lambda env vars are set")
	}

	t.Setenv("AWS_LAMBDA_RUNTIME_API", "localhost:8080")
	if !isLambdaEnvironment() {
		t.Error("isLambdaEnvironment: expected true when AWS_LAMBDA_RUNTIME_API is set")
	}
}

// TestNewLogger verifies that the logger factory handles various log levels.
func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		t.Run(level, func(t *testing.T) {
			if newLogger(level) == nil {
				t.Fatalf("newLogger(%q) returned nil", level)
			}
		})
	}
}

// setTestEnv sets the minimal environment variables required by
// config.LoadConfig for a local environment.
func setTestEnv(t *testing.T) {
	t.Helper()

	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "8080")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("SUPABASE_URL", "http://localhost:54321")
	t.Setenv("SUPABASE_ANON_KEY", "anon-dummy")
	t.Setenv("SUPABASE_JWT_SECRET", testJWTSecret)
	t.Setenv("SUPABASE_JWKS_URL", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-dummy")
	t.Setenv("METRICS_BACKEND", "prometheus")
	t.Setenv("METRIC_NAMESPACE", "codetutor")
	t.Setenv("PLAN_POLICIES_JSON", "")
}
