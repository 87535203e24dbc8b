package quota

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"codetutor/internal/billing"
	"codetutor/internal/types"
)

// countedFeatures are the counters shown on the usage endpoints, in display
// order.
var countedFeatures = []types.Feature{
	types.FeatureAnalyses,
	types.FeatureTests,
	types.FeatureAPI,
}

// Reporter builds usage summaries from the current period counters.
type Reporter struct {
	policies billing.PolicyResolver
	store    Store
	timeout  time.Duration
	now      func() time.Time
}

// NewReporter creates a Reporter. A non-positive timeout selects
// DefaultStoreTimeout.
func NewReporter(policies billing.PolicyResolver, store Store, timeout time.Duration) *Reporter {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Reporter{
		policies: policies,
		store:    store,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Summary returns the current period counters for userID. The counters are
// read concurrently; any store failure fails the whole summary.
func (r *Reporter) Summary(ctx context.Context, userID string, plan types.PlanName) (*types.UsageSummary, error) {
	policy, err := r.policies.Resolve(plan)
	if err != nil {
		return nil, err
	}

	now := r.now()
	counters := make([]types.UsageCounter, len(countedFeatures))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range countedFeatures {
		key, period := NewKey(userID, f, now)
		g.Go(func() error {
			n, err := r.store.GetCount(gctx, key)
			if err != nil {
				return StoreError("get", err)
			}
			counters[i] = types.UsageCounter{
				Feature:   f,
				PeriodKey: period.Key,
				Count:     n,
				Limit:     LimitFor(policy, f),
				ResetsAt:  period.End,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.UsageSummary{
		UserID:   userID,
		Plan:     plan,
		Counters: counters,
		Features: policy.Features,
	}, nil
}
