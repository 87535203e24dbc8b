package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"codetutor/internal/analysis"
	"codetutor/internal/core"
	"codetutor/internal/ratelimit"
	"codetutor/internal/types"
)

// AnalyzeRequest is the body of the analysis endpoints.
type AnalyzeRequest struct {
	Code              string `json:"code"`
	Language          string `json:"language"`
	Level             string `json:"level"`
	FileName          string `json:"fileName" validate:"max=255"`
	FilePath          string `json:"filePath" validate:"max=1024"`
	IsClaudeGenerated bool   `json:"isClaudeGenerated"`
	DetectionMethod   string `json:"detectionMethod" validate:"omitempty,oneof=manual timestamp pattern"`
}

// HistoryResponse is returned by GET /v1/analyze/history.
type HistoryResponse struct {
	Analyses []*types.CodeAnalysis `json:"analyses"`
	Page     int                   `json:"page"`
	Limit    int                   `json:"limit"`
}

// Analyzer runs analyses and lists past ones.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	History(ctx context.Context, userID string, page, limit int) ([]*types.CodeAnalysis, error)
	Get(ctx context.Context, userID, id string) (*types.AnalysisDetail, error)
	Delete(ctx context.Context, userID, id string) error
}

// AnalysisResponse is returned by GET /v1/analyze/{id}.
type AnalysisResponse struct {
	Analysis *types.AnalysisDetail `json:"analysis"`
}

// AnalyzeHandler serves the quota-protected analysis endpoints.
type AnalyzeHandler struct {
	analyzer  Analyzer
	validator *core.Validator
	logger    *slog.Logger
}

// NewAnalyzeHandler creates an AnalyzeHandler.
func NewAnalyzeHandler(a Analyzer, v *core.Validator, logger *slog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: a, validator: v, logger: logger}
}

// RegisterRoutes mounts the analysis routes. The analyze limiter runs
// before auth; usage is recorded only for a successful, uncached result.
func (h *AnalyzeHandler) RegisterRoutes(r chi.Router, s *core.Server) {
	guarded := func(feature types.Feature) chi.Router {
		return r.With(
			s.RateLimit(ratelimit.Analyze, core.ByClientIP),
			s.RequireAuth,
			s.LimitCodeSize(s.MaxCodeSize()),
			s.PlanQuota(feature),
			s.RecordUsage(feature),
		)
	}

	guarded(types.FeatureAnalyses).Post("/analyze", h.handle(types.ModeExplain))
	guarded(types.FeatureTests).Post("/tests", h.handle(types.ModeTests))
	guarded(types.FeatureAPI).Post("/api/analyze", h.handle(types.ModeExplain))

	read := r.With(s.RequireAuth, s.RateLimit(ratelimit.General, core.ByUser))
	read.Get("/analyze/history", h.History)
	read.Get("/analyze/{id}", h.Get)
	read.Delete("/analyze/{id}", h.Delete)
}

func (h *AnalyzeHandler) handle(mode types.AnalysisMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
			return
		}

		var req AnalyzeRequest
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(&req); err != nil {
			core.Error(w, r, err)
			return
		}

		res, err := h.analyzer.Analyze(r.Context(), analysis.Request{
			UserID:            actor.UserID,
			Code:              req.Code,
			Language:          req.Language,
			Level:             types.ExplanationLevel(req.Level),
			Mode:              mode,
			FileName:          req.FileName,
			FilePath:          req.FilePath,
			IsClaudeGenerated: req.IsClaudeGenerated,
			DetectionMethod:   req.DetectionMethod,
		})
		if err != nil {
			core.Error(w, r, err)
			return
		}

		if res.Cached {
			core.SkipUsage(r.Context())
			core.Success(w, r, http.StatusOK, res)
			return
		}
		core.Success(w, r, http.StatusCreated, res)
	}
}

// History handles GET /v1/analyze/history?page=&limit=.
func (h *AnalyzeHandler) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	items, err := h.analyzer.History(r.Context(), actor.UserID, page, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history lookup failed", "user_id", actor.UserID, "error", err)
		core.Error(w, r, err)
		return
	}
	if items == nil {
		items = []*types.CodeAnalysis{}
	}
	core.Success(w, r, http.StatusOK, HistoryResponse{Analyses: items, Page: page, Limit: limit})
}

// Get handles GET /v1/analyze/{id}. Analyses of other users are reported as
// not found.
func (h *AnalyzeHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
		return
	}

	d, err := h.analyzer.Get(r.Context(), actor.UserID, chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Success(w, r, http.StatusOK, AnalysisResponse{Analysis: d})
}

// Delete handles DELETE /v1/analyze/{id}.
func (h *AnalyzeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
		return
	}

	if err := h.analyzer.Delete(r.Context(), actor.UserID, chi.URLParam(r, "id")); err != nil {
		if !types.IsCode(err, types.ErrCodeNotFoundAnalysis) {
			h.logger.ErrorContext(r.Context(), "analysis delete failed", "user_id", actor.UserID, "error", err)
		}
		core.Error(w, r, err)
		return
	}
	core.Success(w, r, http.StatusOK, MessageResponse{Message: "Analysis deleted successfully"})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
