package types

import "time"

// Profile is the application-side user record kept next to the Supabase
// auth user. Plan and admin status are read from here on every request.
type Profile struct {
	UserID  string   `json:"id" db:"id"`
	Email   string   `json:"email" db:"email"`
	Plan    PlanName `json:"plan" db:"plan"`
	IsAdmin bool     `json:"is_admin" db:"is_admin"`

	// Admin review fields. Only the admin endpoints load them.
	Name           string         `json:"name,omitempty" db:"name"`
	ApprovalStatus ApprovalStatus `json:"approval_status,omitempty" db:"approval_status"`
	ApprovalNotes  string         `json:"approval_notes,omitempty" db:"approval_notes"`
	ApprovedAt     *time.Time     `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy     string         `json:"approved_by,omitempty" db:"approved_by"`
	CreatedAt      time.Time      `json:"created_at,omitzero" db:"created_at"`
}

// ProfileFilter selects profiles for the admin user list.
type ProfileFilter struct {
	Status ApprovalStatus
	Limit  int
	Offset int
}

// ApprovalStats counts profiles by approval state.
type ApprovalStats struct {
	Pending      int64 `json:"pending"`
	Approved     int64 `json:"approved"`
	Rejected     int64 `json:"rejected"`
	TodaySignups int64 `json:"todaySignups"`
}

// CodeAnalysis is one submitted snippet. CodeHash is the hex sha256 of Code
// and, together with UserID and Language, identifies cache hits.
type CodeAnalysis struct {
	ID                string    `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	Code              string    `json:"-" db:"code"`
	CodeHash          string    `json:"code_hash" db:"code_hash"`
	Language          string    `json:"language" db:"language"`
	FileName          string    `json:"file_name,omitempty" db:"file_name"`
	FilePath          string    `json:"file_path,omitempty" db:"file_path"`
	IsClaudeGenerated bool      `json:"is_claude_generated" db:"is_claude_generated"`
	DetectionMethod   string    `json:"detection_method" db:"detection_method"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// AnalysisDetail is one analysis with its source and every explanation
// generated for it.
type AnalysisDetail struct {
	CodeAnalysis
	Code         string         `json:"code"`
	Explanations []*Explanation `json:"explanations"`
}

// Explanation is the generated text for an analysis at one level.
type Explanation struct {
	ID               string           `json:"id" db:"id"`
	AnalysisID       string           `json:"analysis_id" db:"code_analysis_id"`
	Level            ExplanationLevel `json:"level" db:"level"`
	Mode             AnalysisMode     `json:"mode" db:"mode"`
	Content          string           `json:"content" db:"content"`
	Summary          string           `json:"summary" db:"summary"`
	KeyConcepts      []string         `json:"keyConcepts" db:"key_concepts"`
	ComplexityScore  int              `json:"complexityScore" db:"complexity_score"`
	AIModel          string           `json:"aiModel" db:"ai_model"`
	GenerationTimeMs int64            `json:"generationTimeMs" db:"generation_time_ms"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// UsageCounter is the snapshot of one quota period for one user.
type UsageCounter struct {
	Feature   Feature   `json:"feature"`
	PeriodKey string    `json:"period"`
	Count     int64     `json:"count"`
	Limit     Limit     `json:"limit"`
	ResetsAt  time.Time `json:"resets_at"`
}

// UsageSummary is returned by the usage endpoints.
type UsageSummary struct {
	UserID   string         `json:"user_id"`
	Plan     PlanName       `json:"plan"`
	Counters []UsageCounter `json:"counters"`
	Features FeatureFlags   `json:"features"`
}
