package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codetutor/internal/types"
)

// AuthUser is the subset of a Supabase Auth user the API exposes.
type AuthUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// AuthSession is a token set issued by Supabase Auth.
type AuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	TokenType    string    `json:"token_type"`
	User         *AuthUser `json:"user"`
}

// SignupResult is returned by Signup. Session is nil when the project
// requires email confirmation before the first login.
type SignupResult struct {
	User    AuthUser
	Session *AuthSession
}

// SupabaseAuthConfig holds the configuration for a SupabaseAuthClient.
type SupabaseAuthConfig struct {
	URL     string
	AnonKey types.SecretString
	// RecoveryRedirect is where the password reset link lands. Empty uses
	// the project's site URL.
	RecoveryRedirect string
	Logger           *slog.Logger
}

// SupabaseAuthClient talks to the Supabase Auth (GoTrue) REST API.
type SupabaseAuthClient struct {
	base     *BaseClient
	baseURL  string
	anonKey  types.SecretString
	redirect string
	logger   *slog.Logger
}

// NewSupabaseAuthClient creates a SupabaseAuthClient.
func NewSupabaseAuthClient(httpClient *http.Client, cfg SupabaseAuthConfig) *SupabaseAuthClient {
	base := NewBaseClient(
		httpClient,
		"supabase-auth",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    250 * time.Millisecond,
			MaxWait:    2 * time.Second,
		},
		"CodeTutor/1.0",
	)
	return NewSupabaseAuthClientWithBase(base, cfg)
}

// NewSupabaseAuthClientWithBase creates a SupabaseAuthClient with a
// pre-configured BaseClient.
func NewSupabaseAuthClientWithBase(base *BaseClient, cfg SupabaseAuthConfig) *SupabaseAuthClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SupabaseAuthClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.URL, "/") + "/auth/v1",
		anonKey:  cfg.AnonKey,
		redirect: cfg.RecoveryRedirect,
		logger:   logger,
	}
}

// Signup registers a new email/password user. name is stored in the user
// metadata.
func (c *SupabaseAuthClient) Signup(ctx context.Context, email, password, name string) (*SignupResult, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]any{"name": name},
	}

	var raw json.RawMessage
	if err := c.post(ctx, "Signup", "/signup", payload, &raw); err != nil {
		return nil, err
	}

	// With auto-confirm the response is a session; otherwise it is the user.
	var session AuthSession
	if err := json.Unmarshal(raw, &session); err == nil && session.AccessToken != "" && session.User != nil {
		return &SignupResult{User: *session.User, Session: &session}, nil
	}

	var user AuthUser
	if err := json.Unmarshal(raw, &user); err != nil || user.ID == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamSupabase, "failed to decode signup response", err)
	}
	return &SignupResult{User: user}, nil
}

// Login exchanges email and password for a session.
func (c *SupabaseAuthClient) Login(ctx context.Context, email, password string) (*AuthSession, error) {
	var session AuthSession
	payload := map[string]string{"email": email, "password": password}
	if err := c.post(ctx, "Login", "/token?grant_type=password", payload, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" || session.User == nil {
		return nil, types.NewAppError(types.ErrCodeAuthInvalidCreds, "Login failed", nil)
	}
	return &session, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *SupabaseAuthClient) Refresh(ctx context.Context, refreshToken string) (*AuthSession, error) {
	var session AuthSession
	payload := map[string]string{"refresh_token": refreshToken}
	if err := c.post(ctx, "Refresh", "/token?grant_type=refresh_token", payload, &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid refresh token", nil)
	}
	return &session, nil
}

// Logout revokes the refresh tokens of the session behind accessToken.
func (c *SupabaseAuthClient) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, "Logout", http.MethodPost, "/logout", accessToken, nil, nil)
}

// RecoverPassword asks Supabase to email a password reset link to email.
func (c *SupabaseAuthClient) RecoverPassword(ctx context.Context, email string) error {
	path := "/recover"
	if c.redirect != "" {
		path += "?redirect_to=" + url.QueryEscape(c.redirect)
	}
	return c.do(ctx, "RecoverPassword", http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

// UpdatePassword sets a new password for the user of accessToken, which is
// the recovery token from the reset link.
func (c *SupabaseAuthClient) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return c.do(ctx, "UpdatePassword", http.MethodPut, "/user", accessToken, map[string]string{"password": password}, nil)
}

func (c *SupabaseAuthClient) post(ctx context.Context, operation, path string, payload, out any) error {
	return c.do(ctx, operation, http.MethodPost, path, "", payload, out)
}

// do sends one GoTrue request. bearer authenticates as a user; empty
// authenticates with the anon key. A nil out discards the response body.
func (c *SupabaseAuthClient) do(ctx context.Context, operation, method, path, bearer string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize auth request", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create auth request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.anonKey.Unmask()
	}
	req.Header.Set("apikey", c.anonKey.Unmask())
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.base.Do(req)
	if err != nil {
		return wrapError("supabase", operation, err, types.ErrCodeUpstreamSupabase)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(ctx, resp, operation)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamSupabase, "failed to decode auth response", err)
	}
	return nil
}

// goTrueError covers both error shapes GoTrue has used over time.
type goTrueError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
}

func (e goTrueError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *SupabaseAuthClient) handleErrorResponse(ctx context.Context, resp *http.Response, operation string) *types.AppError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body goTrueError
	_ = json.Unmarshal(raw, &body)
	msg := body.text()

	c.logger.WarnContext(ctx, "supabase auth rejected request",
		"operation", operation,
		"status_code", resp.StatusCode,
		"error", msg,
	)

	cause := fmt.Errorf("supabase %s returned %d: %s", operation, resp.StatusCode, msg)

	switch {
	case operation == "Login" && resp.StatusCode < 500:
		return types.NewAppError(types.ErrCodeAuthInvalidCreds, "Invalid credentials", cause)
	case operation == "Refresh" && resp.StatusCode < 500:
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid refresh token", cause)
	case (operation == "Logout" || operation == "UpdatePassword") && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden):
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid or expired token", cause)
	case resp.StatusCode < 500 && msg != "":
		return types.NewAppError(types.ErrCodeValidationFailed, msg, cause)
	default:
		return types.NewAppError(types.ErrCodeUpstreamSupabase, "Authentication service error", cause)
	}
}
