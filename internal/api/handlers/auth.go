// Package handlers contains the HTTP handlers of the codetutor API.
//
// Each handler decodes and validates the request, delegates to a service or
// client, and writes the response envelope. Cross-cutting guards (rate
// limits, auth, quotas) are attached in RegisterRoutes from core.Server.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"codetutor/internal/core"
	"codetutor/internal/external"
	"codetutor/internal/ratelimit"
	"codetutor/internal/types"
)

const minPasswordLength = 8

// --- DTOs ---

// SignupRequest is the body of POST /v1/auth/signup.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name" validate:"max=100"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// ForgotPasswordRequest is the body of POST /v1/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /v1/auth/reset-password. Token is
// the recovery access token from the reset link.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// MessageResponse carries a confirmation with no other data.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserView is the public shape of a user.
type UserView struct {
	ID      string         `json:"id"`
	Email   string         `json:"email"`
	Name    string         `json:"name,omitempty"`
	Plan    types.PlanName `json:"plan"`
	IsAdmin bool           `json:"isAdmin,omitempty"`
}

// SessionView is the public shape of a token set.
type SessionView struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// AuthResponse is returned by signup, login and refresh.
type AuthResponse struct {
	User    *UserView    `json:"user,omitempty"`
	Session *SessionView `json:"session,omitempty"`
}

// --- Dependencies ---

// AuthGateway is the identity provider (Supabase Auth).
type AuthGateway interface {
	Signup(ctx context.Context, email, password, name string) (*external.SignupResult, error)
	Login(ctx context.Context, email, password string) (*external.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (*external.AuthSession, error)
	Logout(ctx context.Context, accessToken string) error
	RecoverPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, accessToken, password string) error
}

// ProfileStore reads and creates application profiles.
type ProfileStore interface {
	GetByID(ctx context.Context, userID string) (*types.Profile, error)
	Create(ctx context.Context, p *types.Profile) error
}

// AuthHandler proxies account flows to the identity provider.
type AuthHandler struct {
	gateway   AuthGateway
	profiles  ProfileStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler. profiles may be nil when the API
// runs without a database; users then always report the free plan.
func NewAuthHandler(gateway AuthGateway, profiles ProfileStore, v *core.Validator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{gateway: gateway, profiles: profiles, validator: v, logger: logger}
}

// RegisterRoutes mounts the /auth routes:
//
//	POST /auth/signup           signup limiter (IP)
//	POST /auth/login            login limiter (IP)
//	POST /auth/refresh          general limiter (IP)
//	POST /auth/logout           general limiter (IP)
//	GET  /auth/me               auth, general limiter (user)
//	POST /auth/forgot-password  signup limiter (IP)
//	POST /auth/reset-password   general limiter (IP)
func (h *AuthHandler) RegisterRoutes(r chi.Router, s *core.Server) {
	r.Route("/auth", func(r chi.Router) {
		r.With(s.RateLimit(ratelimit.Signup, core.ByClientIP)).Post("/signup", h.Signup)
		r.With(s.RateLimit(ratelimit.Login, core.ByClientIP)).Post("/login", h.Login)
		r.With(s.RateLimit(ratelimit.General, core.ByClientIP)).Post("/refresh", h.Refresh)
		r.With(s.RateLimit(ratelimit.General, core.ByClientIP)).Post("/logout", h.Logout)
		r.With(s.RequireAuth, s.RateLimit(ratelimit.General, core.ByUser)).Get("/me", h.Me)
		r.With(s.RateLimit(ratelimit.Signup, core.ByClientIP)).Post("/forgot-password", h.ForgotPassword)
		r.With(s.RateLimit(ratelimit.General, core.ByClientIP)).Post("/reset-password", h.ResetPassword)
	})
}

// Signup handles POST /v1/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validateCredentials(req.Email, req.Password); err != nil {
		core.Error(w, r, err)
		return
	}
	if len(req.Password) < minPasswordLength {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed, "Password must be at least 8 characters", nil))
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Name == "" {
		req.Name, _, _ = strings.Cut(req.Email, "@")
	}

	res, err := h.gateway.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.logger.WarnContext(r.Context(), "signup failed", "error", err)
		core.Error(w, r, err)
		return
	}

	user := &UserView{ID: res.User.ID, Email: res.User.Email, Name: req.Name, Plan: types.PlanFree}
	if h.profiles != nil {
		p := &types.Profile{UserID: res.User.ID, Email: res.User.Email}
		if err := h.profiles.Create(r.Context(), p); err != nil {
			// The auth user already exists, so signup still succeeds.
			h.logger.ErrorContext(r.Context(), "profile creation failed", "user_id", res.User.ID, "error", err)
		} else {
			user.Plan = p.Plan
		}
	}

	h.logger.InfoContext(r.Context(), "user registered", "user_id", res.User.ID)
	core.Success(w, r, http.StatusCreated, AuthResponse{User: user, Session: sessionView(res.Session)})
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := h.validateCredentials(req.Email, req.Password); err != nil {
		core.Error(w, r, err)
		return
	}

	session, err := h.gateway.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(r.Context(), "login failed", "client_ip", types.GetClientIP(r.Context()), "error", err)
		core.Error(w, r, err)
		return
	}

	user := &UserView{Email: req.Email, Plan: types.PlanFree}
	if session.User != nil {
		user.ID = session.User.ID
		user.Email = session.User.Email
		if name, ok := session.User.UserMetadata["name"].(string); ok {
			user.Name = name
		}
	}
	h.applyProfile(r.Context(), user)

	core.Success(w, r, http.StatusOK, AuthResponse{User: user, Session: sessionView(session)})
}

// Refresh handles POST /v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Refresh token is required", nil))
		return
	}

	session, err := h.gateway.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Success(w, r, http.StatusOK, AuthResponse{Session: sessionView(session)})
}

// Logout handles POST /v1/auth/logout. Clients drop their tokens either way;
// when a bearer token is sent its refresh tokens are revoked too, and a
// failed revocation is only logged.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := core.ExtractBearerToken(r.Header.Get("Authorization")); token != "" {
		if err := h.gateway.Logout(r.Context(), token); err != nil {
			h.logger.WarnContext(r.Context(), "session revocation failed", "error", err)
		}
	}
	core.Success(w, r, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// ForgotPassword handles POST /v1/auth/forgot-password. The response does
// not reveal whether the address has an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Email is required", nil))
		return
	}

	if err := h.gateway.RecoverPassword(r.Context(), req.Email); err != nil {
		h.logger.ErrorContext(r.Context(), "password reset request failed", "error", err)
	}
	core.Success(w, r, http.StatusOK, MessageResponse{Message: "If the email exists, a password reset link has been sent"})
}

// ResetPassword handles POST /v1/auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "Token and new password are required", nil))
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationFailed, "Password must be at least 8 characters", nil))
		return
	}

	if err := h.gateway.UpdatePassword(r.Context(), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		if types.IsCode(err, types.ErrCodeAuthTokenInvalid) {
			err = types.NewAppError(types.ErrCodeValidationFailed, "Invalid or expired token", err)
		}
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "password reset completed")
	core.Success(w, r, http.StatusOK, MessageResponse{Message: "Password reset successfully"})
}

// Me handles GET /v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
		return
	}
	core.Success(w, r, http.StatusOK, AuthResponse{User: &UserView{
		ID:      actor.UserID,
		Email:   actor.Email,
		Plan:    actor.Plan,
		IsAdmin: actor.IsAdmin,
	}})
}

func (h *AuthHandler) validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "Email and password are required", nil)
	}
	if !strings.Contains(email, "@") {
		return types.NewAppError(types.ErrCodeValidationInvalidEmail, "Invalid email address", nil)
	}
	return nil
}

// applyProfile fills plan and admin status from the profile. A missing
// profile leaves the free plan; login still succeeds.
func (h *AuthHandler) applyProfile(ctx context.Context, u *UserView) {
	if h.profiles == nil || u.ID == "" {
		return
	}
	p, err := h.profiles.GetByID(ctx, u.ID)
	if err != nil {
		h.logger.WarnContext(ctx, "profile lookup after login failed", "user_id", u.ID, "error", err)
		return
	}
	if p.Plan != "" {
		u.Plan = p.Plan
	}
	u.IsAdmin = p.IsAdmin
}

func sessionView(s *external.AuthSession) *SessionView {
	if s == nil {
		return nil
	}
	return &SessionView{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
	}
}
