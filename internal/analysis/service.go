// Package analysis implements the quota-protected operation: explaining (or
// writing tests for) a code snippet with the language model, with a per-user
// cache keyed by the code hash.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"codetutor/internal/external"
	"codetutor/internal/types"
)

// Completer generates text for a prompt.
type Completer interface {
	Complete(ctx context.Context, in external.CompletionRequest) (*external.Completion, error)
}

// Repository persists analyses and explanations.
type Repository interface {
	FindAnalysis(ctx context.Context, userID, codeHash, language string) (*types.CodeAnalysis, error)
	FindExplanation(ctx context.Context, analysisID string, level types.ExplanationLevel, mode types.AnalysisMode) (*types.Explanation, error)
	CreateAnalysis(ctx context.Context, a *types.CodeAnalysis) error
	CreateExplanation(ctx context.Context, e *types.Explanation) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*types.CodeAnalysis, error)
	GetDetail(ctx context.Context, userID, id string) (*types.AnalysisDetail, error)
	Delete(ctx context.Context, userID, id string) error
}

// Request is one analysis submission.
type Request struct {
	UserID            string
	Code              string
	Language          string
	Level             types.ExplanationLevel
	Mode              types.AnalysisMode
	FileName          string
	FilePath          string
	IsClaudeGenerated bool
	DetectionMethod   string
}

// Result is the outcome of Analyze. Cached results did no model call and
// must not be counted against the user's quota.
type Result struct {
	AnalysisID  string             `json:"analysisId"`
	Cached      bool               `json:"cached"`
	Explanation *types.Explanation `json:"explanation"`
}

// Service runs analyses.
type Service struct {
	ai        Completer
	repo      Repository
	maxTokens int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. repo may be nil, in which case nothing is
// cached or persisted.
func NewService(ai Completer, repo Repository, maxTokens int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ai:        ai,
		repo:      repo,
		maxTokens: maxTokens,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate normalizes req in place and reports the first invalid field.
func Validate(req *Request) error {
	req.Language = strings.TrimSpace(req.Language)
	if strings.TrimSpace(req.Code) == "" || req.Language == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "Code and language are required", nil)
	}

	if req.Level == "" {
		req.Level = types.LevelBeginner
	}
	switch req.Level {
	case types.LevelBeginner, types.LevelIntermediate, types.LevelAdvanced:
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidLevel,
			"Invalid level. Must be beginner, intermediate, or advanced", nil)
	}

	if req.Mode == "" {
		req.Mode = types.ModeExplain
	}
	if req.DetectionMethod == "" {
		req.DetectionMethod = "manual"
	}
	return nil
}

// HashCode returns the hex sha256 of code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Analyze returns a cached explanation when one exists for the same user,
// code, language, level and mode; otherwise it calls the model and stores
// the result.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	codeHash := HashCode(req.Code)

	var existing *types.CodeAnalysis
	if s.repo != nil {
		var err error
		existing, err = s.repo.FindAnalysis(ctx, req.UserID, codeHash, req.Language)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			cached, err := s.repo.FindExplanation(ctx, existing.ID, req.Level, req.Mode)
			if err != nil {
				return nil, err
			}
			if cached != nil {
				s.logger.InfoContext(ctx, "returning cached explanation",
					"analysis_id", existing.ID,
					"level", req.Level,
					"mode", req.Mode,
				)
				return &Result{AnalysisID: existing.ID, Cached: true, Explanation: cached}, nil
			}
		}
	}

	maxTokens := MaxTokensFor(req.Code, s.maxTokens)
	start := s.now()
	completion, err := s.ai.Complete(ctx, external.CompletionRequest{
		System:    systemPrompt,
		Prompt:    BuildPrompt(req.Code, req.Language, req.Level, req.Mode),
		MaxTokens: maxTokens,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "explanation generation failed", "language", req.Language, "error", err)
		return nil, err
	}
	elapsed := s.now().Sub(start)

	parsed := ParseResponse(completion.Text, req.Level)

	analysisID := uuid.NewString()
	if existing != nil {
		analysisID = existing.ID
	}
	explanation := &types.Explanation{
		AnalysisID:       analysisID,
		Level:            req.Level,
		Mode:             req.Mode,
		Content:          parsed.Content,
		Summary:          parsed.Summary,
		KeyConcepts:      parsed.KeyConcepts,
		ComplexityScore:  parsed.ComplexityScore,
		AIModel:          completion.Model,
		GenerationTimeMs: elapsed.Milliseconds(),
	}

	if s.repo == nil {
		explanation.ID = uuid.NewString()
		explanation.CreatedAt = s.now().UTC()
	} else {
		if existing == nil {
			a := &types.CodeAnalysis{
				ID:                analysisID,
				UserID:            req.UserID,
				Code:              req.Code,
				CodeHash:          codeHash,
				Language:          req.Language,
				FileName:          req.FileName,
				FilePath:          req.FilePath,
				IsClaudeGenerated: req.IsClaudeGenerated,
				DetectionMethod:   req.DetectionMethod,
			}
			if err := s.repo.CreateAnalysis(ctx, a); err != nil {
				return nil, err
			}
		}
		if err := s.repo.CreateExplanation(ctx, explanation); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "code analyzed",
		"user_id", req.UserID,
		"language", req.Language,
		"level", req.Level,
		"mode", req.Mode,
		"max_tokens", maxTokens,
		"generation_ms", explanation.GenerationTimeMs,
	)

	return &Result{AnalysisID: analysisID, Cached: false, Explanation: explanation}, nil
}

// History lists the user's analyses, newest first.
func (s *Service) History(ctx context.Context, userID string, page, limit int) ([]*types.CodeAnalysis, error) {
	if s.repo == nil {
		return []*types.CodeAnalysis{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}
	return s.repo.ListByUser(ctx, userID, limit, (page-1)*limit)
}

// Get returns one of the user's analyses with its explanations. Ids that
// are not UUIDs are reported as not found without a database round trip.
func (s *Service) Get(ctx context.Context, userID, id string) (*types.AnalysisDetail, error) {
	if s.repo == nil || !validID(id) {
		return nil, errAnalysisNotFound()
	}
	return s.repo.GetDetail(ctx, userID, id)
}

// Delete removes one of the user's analyses and its explanations.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if s.repo == nil || !validID(id) {
		return errAnalysisNotFound()
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "analysis deleted", "user_id", userID, "analysis_id", id)
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func errAnalysisNotFound() error {
	return types.NewAppError(types.ErrCodeNotFoundAnalysis, "Analysis not found", nil)
}
