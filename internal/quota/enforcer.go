package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codetutor/internal/billing"
	"codetutor/internal/types"
)

// DefaultStoreTimeout bounds each store round trip made on the request path.
const DefaultStoreTimeout = 500 * time.Millisecond

// DenyReason explains a rejected Decision.
type DenyReason string

const (
	ReasonLimitReached    DenyReason = "limit_reached"
	ReasonFeatureDisabled DenyReason = "feature_disabled"
)

// Decision is the outcome of a pre-check. A Deny is a normal result, not an
// error; errors are reserved for configuration and store failures.
type Decision struct {
	Allowed    bool
	Reason     DenyReason
	Message    string
	Feature    types.Feature
	Limit      types.Limit
	Used       int64
	RetryAfter time.Duration
}

func allow(f types.Feature, limit types.Limit, used int64) Decision {
	return Decision{Allowed: true, Feature: f, Limit: limit, Used: used}
}

// LimitFor returns the count ceiling the policy puts on feature. Features
// that are only flag-gated have no count ceiling.
func LimitFor(p types.PlanPolicy, f types.Feature) types.Limit {
	switch f {
	case types.FeatureAnalyses:
		return p.DailyAnalysesLimit
	case types.FeatureAPI:
		return p.APIRequestsPerMonth
	default:
		return types.Unlimited
	}
}

// Enforcer is the admission gate run before protected work. The check is a
// snapshot read and never reserves capacity; concurrent requests for the
// same user may overshoot the limit by the number in flight.
type Enforcer struct {
	policies billing.PolicyResolver
	store    Store
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewEnforcer creates an Enforcer. A non-positive timeout selects
// DefaultStoreTimeout.
func NewEnforcer(policies billing.PolicyResolver, store Store, timeout time.Duration, logger *slog.Logger) *Enforcer {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Enforcer{
		policies: policies,
		store:    store,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Check decides whether userID on plan may perform one unit of feature.
//
// Order: feature flag, then the unlimited sentinel (no store read), then the
// current period's count against the limit.
func (e *Enforcer) Check(ctx context.Context, userID string, plan types.PlanName, feature types.Feature) (Decision, error) {
	policy, err := e.policies.Resolve(plan)
	if err != nil {
		return Decision{}, err
	}

	if !policy.FeatureEnabled(feature) {
		d := Decision{
			Reason:  ReasonFeatureDisabled,
			Message: featureDisabledMessage(feature),
			Feature: feature,
		}
		e.logger.WarnContext(ctx, "feature gate denied",
			"user_id", userID, "plan", plan, "feature", feature)
		return d, nil
	}

	limit := LimitFor(policy, feature)
	if limit.IsUnlimited() {
		return allow(feature, limit, 0), nil
	}

	now := e.now()
	key, period := NewKey(userID, feature, now)

	readCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	used, err := e.store.GetCount(readCtx, key)
	if err != nil {
		return Decision{}, StoreError("get", err)
	}

	if used >= int64(limit) {
		d := Decision{
			Reason:     ReasonLimitReached,
			Message:    limitReachedMessage(feature, limit),
			Feature:    feature,
			Limit:      limit,
			Used:       used,
			RetryAfter: period.RetryAfter(now),
		}
		e.logger.WarnContext(ctx, "quota denied",
			"user_id", userID, "plan", plan, "feature", feature,
			"period", key.Period, "used", used, "limit", int64(limit))
		return d, nil
	}

	return allow(feature, limit, used), nil
}

func limitReachedMessage(f types.Feature, limit types.Limit) string {
	if GranularityFor(f) == Monthly {
		return fmt.Sprintf("Monthly API limit reached (%d requests/month). Please upgrade your plan.", limit)
	}
	return fmt.Sprintf("Daily analysis limit reached (%d analyses/day). Please upgrade your plan.", limit)
}

func featureDisabledMessage(f types.Feature) string {
	switch f {
	case types.FeatureTests:
		return "Test generation is not available in your plan"
	case types.FeatureExercises:
		return "Customization exercises are not available in your plan"
	case types.FeatureProjects:
		return "Project simulations are not available in your plan"
	case types.FeatureAPI:
		return "API access is not available in your plan"
	default:
		return fmt.Sprintf("%s is not available in your plan", f)
	}
}
