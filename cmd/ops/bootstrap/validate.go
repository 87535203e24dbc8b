package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"codetutor/internal/billing"
)

// ValidationResult is the outcome of checking one operator input.
type ValidationResult struct {
	Valid bool
	// Message says what was verified, or why the input was rejected.
	Message string
}

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a connection to dsn.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// RedisPinger dials the Redis server described by opts and sends PING.
type RedisPinger interface {
	Ping(ctx context.Context, opts *redis.Options) error
}

// PgxConnector verifies a DSN with pgx.Connect.
type PgxConnector struct{}

func (PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// GoRedisPinger verifies a Redis URL with a short-lived go-redis client.
type GoRedisPinger struct{}

func (GoRedisPinger) Ping(ctx context.Context, opts *redis.Options) error {
	client := redis.NewClient(opts)
	defer client.Close()
	return client.Ping(ctx).Err()
}

// Validator holds the network dependencies of the active probes.
type Validator struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector
	redis      RedisPinger

	// anthropicBaseURL is overridden in tests.
	anthropicBaseURL string
}

// NewValidator creates a Validator with production dependencies.
func NewValidator() *Validator {
	return &Validator{
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		dbConn:           PgxConnector{},
		redis:            GoRedisPinger{},
		anthropicBaseURL: defaultAnthropicBaseURL,
	}
}

// NewValidatorWithDeps creates a Validator with injected dependencies.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector, pinger RedisPinger) *Validator {
	return &Validator{
		httpClient:       httpClient,
		dbConn:           dbConn,
		redis:            pinger,
		anthropicBaseURL: defaultAnthropicBaseURL,
	}
}

// validateTimeout is the outer bound for each active probe, covering DNS
// and TLS as well as the request itself.
const validateTimeout = 15 * time.Second

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	minJWTSecretLength      = 32
)

var (
	anthropicKeyRegex = regexp.MustCompile(`^sk-ant-[A-Za-z0-9_-]{20,}$`)
	supabaseKeyRegex  = regexp.MustCompile(`^eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)
)

// ValidateDatabaseURL checks the scheme and then connects with pgx.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid URL format: %v", err)}
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme),
		}
	}
	if parsed.Hostname() == "" {
		return ValidationResult{Valid: false, Message: "database URL has no host"}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("connection failed: %v", err)}
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname()),
	}
}

// ValidateRedisURL parses a redis:// or rediss:// URL and sends PING.
func (v *Validator) ValidateRedisURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "Redis URL must not be empty"}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid Redis URL: %v", err)}
	}

	pingCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.redis.Ping(pingCtx, opts); err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("PING failed: %v", err)}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("Redis reachable (addr=%s, db=%d)", opts.Addr, opts.DB)}
}

// ValidateSupabaseURL accepts https URLs, and plain http only for a local
// Supabase stack.
func (v *Validator) ValidateSupabaseURL(_ context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "Supabase URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid Supabase URL %q", rawURL)}
	}

	switch {
	case parsed.Scheme == "https":
	case parsed.Scheme == "http" && isLocalHost(parsed.Hostname()):
	default:
		return ValidationResult{Valid: false, Message: "Supabase URL must use https (http is allowed only for localhost)"}
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return ValidationResult{Valid: false, Message: "Supabase URL must be the project root, without a path"}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("Supabase project URL accepted (%s)", parsed.Host)}
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ValidateSupabaseKey checks that key has the shape of a Supabase API key,
// which is a signed JWT.
func (v *Validator) ValidateSupabaseKey(_ context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Supabase key must not be empty"}
	}
	if !supabaseKeyRegex.MatchString(key) {
		return ValidationResult{Valid: false, Message: "Supabase key must be a JWT (eyJ...)"}
	}
	return ValidationResult{Valid: true, Message: "Supabase key format validated"}
}

// ValidateJWTSecret enforces the minimum length required for HS256 signing.
func (v *Validator) ValidateJWTSecret(_ context.Context, secret string) ValidationResult {
	secret = strings.TrimSpace(secret)
	if len(secret) < minJWTSecretLength {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("JWT secret must be at least %d characters, got %d", minJWTSecretLength, len(secret)),
		}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("JWT secret accepted (%d chars)", len(secret))}
}

// ValidateAnthropicKey checks the key format and then lists models, which
// verifies the key without spending tokens.
func (v *Validator) ValidateAnthropicKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Anthropic API key must not be empty"}
	}
	if !anthropicKeyRegex.MatchString(key) {
		return ValidationResult{Valid: false, Message: "Anthropic API key must start with sk-ant-"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, v.anthropicBaseURL+"/v1/models?limit=1", nil)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("User-Agent", "CodeTutor-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("Anthropic API probe failed: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusOK:
		return ValidationResult{Valid: true, Message: "Anthropic API key verified"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Anthropic API returned %d: key is invalid or revoked", resp.StatusCode),
		}
	default:
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Anthropic API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200)),
		}
	}
}

// ValidatePlanPolicies parses input exactly as the API does at startup.
func (v *Validator) ValidatePlanPolicies(_ context.Context, input string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{Valid: false, Message: "plan policies must not be empty"}
	}
	if _, err := billing.ParsePolicies([]byte(input)); err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid plan policies: %v", err)}
	}
	return ValidationResult{Valid: true, Message: "plan policies parsed"}
}

func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
