package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"codetutor/internal/types"
)

// AnalysisRepository provides data access for the code_analyses and
// explanations tables.
type AnalysisRepository struct {
	db DBTX
}

// NewAnalysisRepository creates an AnalysisRepository backed by the given
// database connection (pool or transaction).
func NewAnalysisRepository(db DBTX) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// FindAnalysis returns the user's earlier analysis of the same code in the
// same language, or nil if there is none.
func (r *AnalysisRepository) FindAnalysis(ctx context.Context, userID, codeHash, language string) (*types.CodeAnalysis, error) {
	var a types.CodeAnalysis
	var fileName, filePath *string
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, code_hash, language, file_name, file_path,
		        is_claude_generated, detection_method, created_at
		 FROM code_analyses
		 WHERE user_id = $1 AND code_hash = $2 AND language = $3
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, codeHash, language,
	).Scan(
		&a.ID, &a.UserID, &a.CodeHash, &a.Language, &fileName, &filePath,
		&a.IsClaudeGenerated, &a.DetectionMethod, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up analysis", err)
	}
	if fileName != nil {
		a.FileName = *fileName
	}
	if filePath != nil {
		a.FilePath = *filePath
	}
	return &a, nil
}

// FindExplanation returns the explanation stored for an analysis at the given
// level and mode, or nil if none was generated yet.
func (r *AnalysisRepository) FindExplanation(ctx context.Context, analysisID string, level types.ExplanationLevel, mode types.AnalysisMode) (*types.Explanation, error) {
	var e types.Explanation
	err := r.db.QueryRow(ctx,
		`SELECT id, code_analysis_id, level, mode, content, summary, key_concepts,
		        complexity_score, ai_model, generation_time_ms, created_at
		 FROM explanations
		 WHERE code_analysis_id = $1 AND level = $2 AND mode = $3
		 LIMIT 1`,
		analysisID, level, mode,
	).Scan(
		&e.ID, &e.AnalysisID, &e.Level, &e.Mode, &e.Content, &e.Summary, &e.KeyConcepts,
		&e.ComplexityScore, &e.AIModel, &e.GenerationTimeMs, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up explanation", err)
	}
	return &e, nil
}

// CreateAnalysis inserts a. ID and CreatedAt are assigned when empty.
func (r *AnalysisRepository) CreateAnalysis(ctx context.Context, a *types.CodeAnalysis) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO code_analyses (id, user_id, code, code_hash, language, file_name,
		        file_path, is_claude_generated, detection_method, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)`,
		a.ID, a.UserID, a.Code, a.CodeHash, a.Language, a.FileName,
		a.FilePath, a.IsClaudeGenerated, a.DetectionMethod, a.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save code analysis", err)
	}
	return nil
}

// CreateExplanation inserts e. ID and CreatedAt are assigned when empty.
func (r *AnalysisRepository) CreateExplanation(ctx context.Context, e *types.Explanation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.KeyConcepts == nil {
		e.KeyConcepts = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO explanations (id, code_analysis_id, level, mode, content, summary,
		        key_concepts, complexity_score, ai_model, generation_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.AnalysisID, e.Level, e.Mode, e.Content, e.Summary,
		e.KeyConcepts, e.ComplexityScore, e.AIModel, e.GenerationTimeMs, e.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save explanation", err)
	}
	return nil
}

// ListByUser returns the user's analyses, newest first.
func (r *AnalysisRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*types.CodeAnalysis, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, code_hash, language, COALESCE(file_name, ''), COALESCE(file_path, ''),
		        is_claude_generated, detection_method, created_at
		 FROM code_analyses
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list analyses", err)
	}
	defer rows.Close()

	var out []*types.CodeAnalysis
	for rows.Next() {
		var a types.CodeAnalysis
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.CodeHash, &a.Language, &a.FileName, &a.FilePath,
			&a.IsClaudeGenerated, &a.DetectionMethod, &a.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan analysis", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list analyses", err)
	}
	return out, nil
}

// GetDetail returns the user's analysis id with its source and explanations,
// oldest explanation first. Returns not_found_analysis when the analysis
// does not exist or belongs to someone else.
func (r *AnalysisRepository) GetDetail(ctx context.Context, userID, id string) (*types.AnalysisDetail, error) {
	var d types.AnalysisDetail
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, code, code_hash, language, COALESCE(file_name, ''), COALESCE(file_path, ''),
		        is_claude_generated, detection_method, created_at
		 FROM code_analyses
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(
		&d.ID, &d.UserID, &d.Code, &d.CodeHash, &d.Language, &d.FileName, &d.FilePath,
		&d.IsClaudeGenerated, &d.DetectionMethod, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAnalysis, "Analysis not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load analysis", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, code_analysis_id, level, mode, content, summary, key_concepts,
		        complexity_score, ai_model, generation_time_ms, created_at
		 FROM explanations
		 WHERE code_analysis_id = $1
		 ORDER BY created_at`,
		d.ID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load explanations", err)
	}
	defer rows.Close()

	d.Explanations = []*types.Explanation{}
	for rows.Next() {
		var e types.Explanation
		if err := rows.Scan(
			&e.ID, &e.AnalysisID, &e.Level, &e.Mode, &e.Content, &e.Summary, &e.KeyConcepts,
			&e.ComplexityScore, &e.AIModel, &e.GenerationTimeMs, &e.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan explanation", err)
		}
		d.Explanations = append(d.Explanations, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load explanations", err)
	}
	return &d, nil
}

// Delete removes the user's analysis id. Explanations go with it through the
// foreign key cascade. Returns not_found_analysis when nothing owned by
// userID matched.
func (r *AnalysisRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM code_analyses WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete analysis", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAnalysis, "Analysis not found", nil)
	}
	return nil
}
