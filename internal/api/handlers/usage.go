package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"codetutor/internal/core"
	"codetutor/internal/ratelimit"
	"codetutor/internal/types"
)

// UsageReporter builds the usage summary of a user.
type UsageReporter interface {
	Summary(ctx context.Context, userID string, plan types.PlanName) (*types.UsageSummary, error)
}

// ProfileReader looks up another user's profile for admin views.
type ProfileReader interface {
	GetByID(ctx context.Context, userID string) (*types.Profile, error)
}

// UsageHandler serves the usage summary endpoints.
type UsageHandler struct {
	reporter UsageReporter
	profiles ProfileReader
	logger   *slog.Logger
}

// NewUsageHandler creates a UsageHandler. Without profiles every target user
// of the admin view is reported on the free plan.
func NewUsageHandler(reporter UsageReporter, profiles ProfileReader, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{reporter: reporter, profiles: profiles, logger: logger}
}

// RegisterRoutes mounts:
//
//	GET /usage                        auth, general limiter (user)
//	GET /admin/users/{userID}/usage  admin limiter (IP), auth, admin gate
func (h *UsageHandler) RegisterRoutes(r chi.Router, s *core.Server) {
	r.With(s.RequireAuth, s.RateLimit(ratelimit.General, core.ByUser)).Get("/usage", h.Mine)

	r.Group(func(r chi.Router) {
		r.Use(adminChain(s)...)
		r.Get("/admin/users/{userID}/usage", h.ForUser)
	})
}

// Mine handles GET /v1/usage.
func (h *UsageHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
		return
	}
	h.writeSummary(w, r, actor.UserID, actor.Plan)
}

// ForUser handles GET /v1/admin/users/{userID}/usage.
func (h *UsageHandler) ForUser(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "userID is required", nil))
		return
	}

	plan := types.PlanFree
	if h.profiles != nil {
		p, err := h.profiles.GetByID(r.Context(), userID)
		switch {
		case types.IsCode(err, types.ErrCodeAuthProfileNotFound):
			core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundUser, "User not found", err))
			return
		case err != nil:
			core.Error(w, r, err)
			return
		}
		if p.Plan != "" {
			plan = p.Plan
		}
	}

	h.writeSummary(w, r, userID, plan)
}

func (h *UsageHandler) writeSummary(w http.ResponseWriter, r *http.Request, userID string, plan types.PlanName) {
	summary, err := h.reporter.Summary(r.Context(), userID, plan)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "usage summary failed", "user_id", userID, "error", err)
		core.Error(w, r, err)
		return
	}
	core.Success(w, r, http.StatusOK, summary)
}
