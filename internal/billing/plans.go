// Package billing provides plan policy resolution.
package billing

import (
	"encoding/json"
	"fmt"

	"codetutor/internal/types"
)

// PolicyResolver maps a plan name to its limits.
// This is the single source of truth for what each plan allows.
type PolicyResolver interface {
	// Resolve returns the policy for the given plan. Unknown plans are a
	// configuration error (config_plan_unknown), never a silent fallback.
	Resolve(plan types.PlanName) (types.PlanPolicy, error)
}

// staticPolicyResolver is backed by an in-memory map built once at startup.
// The map is never written after construction, so concurrent reads are safe.
type staticPolicyResolver struct {
	policies map[types.PlanName]types.PlanPolicy
}

// planDefaults defines the built-in plan table:
//
//	| Plan         | Analyses/Day | API/Month | Tests | Exercises | Projects | API |
//	|--------------|--------------|-----------|-------|-----------|----------|-----|
//	| free         | 5            | 0         | No    | No        | No       | No  |
//	| standard     | 50           | 1,000     | Yes   | Yes       | No       | No  |
//	| professional | 200          | 10,000    | Yes   | Yes       | Yes      | Yes |
//	| enterprise   | unlimited    | unlimited | Yes   | Yes       | Yes      | Yes |
var planDefaults = []types.PlanPolicy{
	{
		Plan:                types.PlanFree,
		DailyAnalysesLimit:  5,
		APIRequestsPerMonth: 0,
	},
	{
		Plan:                types.PlanStandard,
		DailyAnalysesLimit:  50,
		APIRequestsPerMonth: 1000,
		Features: types.FeatureFlags{
			TestGeneration:         true,
			CustomizationExercises: true,
		},
	},
	{
		Plan:                types.PlanProfessional,
		DailyAnalysesLimit:  200,
		APIRequestsPerMonth: 10000,
		Features: types.FeatureFlags{
			TestGeneration:         true,
			CustomizationExercises: true,
			ProjectSimulations:     true,
			APIAccess:              true,
		},
	},
	{
		Plan:                types.PlanEnterprise,
		DailyAnalysesLimit:  types.Unlimited,
		APIRequestsPerMonth: types.Unlimited,
		Features: types.FeatureFlags{
			TestGeneration:         true,
			CustomizationExercises: true,
			ProjectSimulations:     true,
			APIAccess:              true,
		},
	},
}

// NewStaticPolicyResolver returns a PolicyResolver backed by the built-in
// plan table.
func NewStaticPolicyResolver() PolicyResolver {
	r, err := NewPolicyResolver(planDefaults)
	if err != nil {
		// planDefaults is a literal; failing here is a programming error.
		panic(err)
	}
	return r
}

// NewPolicyResolver validates and indexes the given policies. Each plan may
// appear once and every limit must be non-negative or Unlimited.
func NewPolicyResolver(policies []types.PlanPolicy) (PolicyResolver, error) {
	if len(policies) == 0 {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "no plan policies defined", nil)
	}

	m := make(map[types.PlanName]types.PlanPolicy, len(policies))
	for _, p := range policies {
		if p.Plan == "" {
			return nil, types.NewAppError(types.ErrCodeConfigInvalid, "plan policy without a plan name", nil)
		}
		if _, dup := m[p.Plan]; dup {
			return nil, types.NewAppError(types.ErrCodeConfigInvalid,
				fmt.Sprintf("plan %q defined more than once", p.Plan), nil)
		}
		if err := validateLimit(p.Plan, "dailyAnalysesLimit", p.DailyAnalysesLimit); err != nil {
			return nil, err
		}
		if err := validateLimit(p.Plan, "apiRequestsPerMonth", p.APIRequestsPerMonth); err != nil {
			return nil, err
		}
		m[p.Plan] = p
	}
	return &staticPolicyResolver{policies: m}, nil
}

// ParsePolicies decodes a JSON array of plan policies and builds a resolver
// from it. The result replaces the built-in table entirely.
func ParsePolicies(raw []byte) (PolicyResolver, error) {
	var policies []types.PlanPolicy
	if err := json.Unmarshal(raw, &policies); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "plan policies are not valid JSON", err)
	}
	return NewPolicyResolver(policies)
}

func validateLimit(plan types.PlanName, field string, l types.Limit) error {
	if l < 0 && !l.IsUnlimited() {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("plan %q: %s must be >= 0 or -1 (unlimited), got %d", plan, field, l), nil)
	}
	return nil
}

// Resolve returns the policy for plan or a config_plan_unknown error.
func (r *staticPolicyResolver) Resolve(plan types.PlanName) (types.PlanPolicy, error) {
	if p, ok := r.policies[plan]; ok {
		return p, nil
	}
	return types.PlanPolicy{}, types.NewAppError(
		types.ErrCodeConfigPlanUnknown,
		fmt.Sprintf("no policy configured for plan %q", plan),
		nil,
	)
}
