package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"codetutor/internal/core"
	"codetutor/internal/ratelimit"
	"codetutor/internal/types"
)

const (
	defaultUserPageSize = 50
	maxUserPageSize     = 100
)

// ApprovalRequest is the optional body of the approve and reject endpoints.
type ApprovalRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

// UserListResponse is returned by GET /v1/admin/users.
type UserListResponse struct {
	Users  []*types.Profile `json:"users"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// ApprovalResponse is returned by the approve and reject endpoints.
type ApprovalResponse struct {
	User    *types.Profile `json:"user"`
	Message string         `json:"message"`
}

// StatsResponse is returned by GET /v1/admin/stats.
type StatsResponse struct {
	Stats *types.ApprovalStats `json:"stats"`
}

// AdminStore is the profile data the admin endpoints work on.
type AdminStore interface {
	List(ctx context.Context, f types.ProfileFilter) ([]*types.Profile, int64, error)
	SetApproval(ctx context.Context, userID string, status types.ApprovalStatus, notes, adminID string, at time.Time) (*types.Profile, error)
	Stats(ctx context.Context, since time.Time) (*types.ApprovalStats, error)
}

// AdminHandler serves account review for administrators.
type AdminHandler struct {
	store     AdminStore
	validator *core.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(store AdminStore, v *core.Validator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: store, validator: v, logger: logger, now: time.Now}
}

// adminChain guards every /admin route: the admin limiter runs before auth
// so unauthenticated floods are limited too.
func adminChain(s *core.Server) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		s.RateLimit(ratelimit.Admin, core.ByClientIP),
		s.RequireAuth,
		s.RequireAdmin,
	}
}

// RegisterRoutes mounts, behind the admin chain:
//
//	GET  /admin/users?status=&limit=&offset=
//	GET  /admin/stats
//	POST /admin/users/{userID}/approve
//	POST /admin/users/{userID}/reject
func (h *AdminHandler) RegisterRoutes(r chi.Router, s *core.Server) {
	r.Group(func(r chi.Router) {
		r.Use(adminChain(s)...)
		r.Get("/admin/users", h.ListUsers)
		r.Get("/admin/stats", h.Stats)
		r.Post("/admin/users/{userID}/approve", h.decide(types.ApprovalApproved))
		r.Post("/admin/users/{userID}/reject", h.decide(types.ApprovalRejected))
	})
}

// ListUsers handles GET /v1/admin/users. An unknown status is ignored;
// limit is capped at 100.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	f := types.ProfileFilter{
		Status: types.ApprovalStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", defaultUserPageSize),
		Offset: queryInt(r, "offset", 0),
	}
	if !f.Status.Valid() {
		f.Status = ""
	}
	if f.Limit < 1 {
		f.Limit = defaultUserPageSize
	}
	f.Limit = min(f.Limit, maxUserPageSize)
	f.Offset = max(f.Offset, 0)

	users, total, err := h.store.List(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "user list failed", "error", err)
		core.Error(w, r, err)
		return
	}
	if users == nil {
		users = []*types.Profile{}
	}

	actor, _ := types.GetActor(r.Context())
	h.logger.InfoContext(r.Context(), "admin listed users", "admin_id", actor.UserID, "count", len(users))
	core.Success(w, r, http.StatusOK, UserListResponse{Users: users, Total: total, Limit: f.Limit, Offset: f.Offset})
}

// Stats handles GET /v1/admin/stats. Today starts at midnight UTC.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	today := h.now().UTC().Truncate(24 * time.Hour)
	stats, err := h.store.Stats(r.Context(), today)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "user stats failed", "error", err)
		core.Error(w, r, err)
		return
	}
	core.Success(w, r, http.StatusOK, StatsResponse{Stats: stats})
}

func (h *AdminHandler) decide(status types.ApprovalStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
			return
		}
		target := strings.TrimSpace(chi.URLParam(r, "userID"))
		if target == "" {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "userID is required", nil))
			return
		}

		var req ApprovalRequest
		if r.ContentLength != 0 {
			if err := core.DecodeJSON(w, r, &req); err != nil {
				core.Error(w, r, err)
				return
			}
		}
		if err := h.validator.ValidateStruct(&req); err != nil {
			core.Error(w, r, err)
			return
		}

		p, err := h.store.SetApproval(r.Context(), target, status, strings.TrimSpace(req.Notes), actor.UserID, h.now().UTC())
		if err != nil {
			if !types.IsCode(err, types.ErrCodeNotFoundUser) {
				h.logger.ErrorContext(r.Context(), "approval update failed", "target_user_id", target, "error", err)
			}
			core.Error(w, r, err)
			return
		}

		h.logger.InfoContext(r.Context(), "user approval changed",
			"admin_id", actor.UserID,
			"target_user_id", target,
			"status", status,
		)
		msg := "User approved successfully"
		if status == types.ApprovalRejected {
			msg = "User rejected successfully"
		}
		core.Success(w, r, http.StatusOK, ApprovalResponse{User: p, Message: msg})
	}
}
