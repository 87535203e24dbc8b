package types

import "strconv"

// Limit is a count ceiling for a quota period. Unlimited (-1) disables the
// ceiling and must be checked before any store read.
type Limit int64

// Unlimited is the sentinel for "no ceiling".
const Unlimited Limit = -1

// IsUnlimited reports whether l is the unlimited sentinel.
func (l Limit) IsUnlimited() bool {
	return l == Unlimited
}

// String renders the limit for messages and headers.
func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// FeatureFlags are the boolean capabilities granted by a plan.
type FeatureFlags struct {
	TestGeneration         bool `json:"testGeneration"`
	CustomizationExercises bool `json:"customizationExercises"`
	ProjectSimulations     bool `json:"projectSimulations"`
	APIAccess              bool `json:"apiAccess"`
}

// PlanPolicy holds the limits of one plan. Policies are static configuration
// and are never mutated after startup.
type PlanPolicy struct {
	Plan                PlanName     `json:"plan"`
	DailyAnalysesLimit  Limit        `json:"dailyAnalysesLimit"`
	APIRequestsPerMonth Limit        `json:"apiRequestsPerMonth"`
	Features            FeatureFlags `json:"features"`
}

// FeatureEnabled reports whether the policy grants the given feature.
// Analyses are always available (subject to the daily count).
func (p PlanPolicy) FeatureEnabled(f Feature) bool {
	switch f {
	case FeatureAnalyses:
		return true
	case FeatureTests:
		return p.Features.TestGeneration
	case FeatureExercises:
		return p.Features.CustomizationExercises
	case FeatureProjects:
		return p.Features.ProjectSimulations
	case FeatureAPI:
		return p.Features.APIAccess
	default:
		return false
	}
}
