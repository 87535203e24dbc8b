package types

// PlanName identifies the subscription tier of a user.
type PlanName string

const (
	PlanFree         PlanName = "free"
	PlanStandard     PlanName = "standard"
	PlanProfessional PlanName = "professional"
	PlanEnterprise   PlanName = "enterprise"
)

// Feature identifies a plan-gated capability. Count-based features are
// limited per period; the rest are boolean flags on the plan.
type Feature string

const (
	FeatureAnalyses  Feature = "analyses"
	FeatureTests     Feature = "tests"
	FeatureExercises Feature = "exercises"
	FeatureProjects  Feature = "projects"
	FeatureAPI       Feature = "api"
)

// ExplanationLevel is the audience an explanation is written for.
type ExplanationLevel string

const (
	LevelBeginner     ExplanationLevel = "beginner"
	LevelIntermediate ExplanationLevel = "intermediate"
	LevelAdvanced     ExplanationLevel = "advanced"
)

// AnalysisMode selects what the model is asked to produce for a snippet.
type AnalysisMode string

const (
	ModeExplain AnalysisMode = "explain"
	ModeTests   AnalysisMode = "tests"
)

// ApprovalStatus is the admin review state of an account.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Valid reports whether s is one of the known approval states.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}
