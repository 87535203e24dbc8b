package core

import (
	"context"
	"sync"

	"codetutor/internal/quota"
	"codetutor/internal/ratelimit"
	"codetutor/internal/types"
)

// MockAuthenticator implements Authenticator for tests. ResolveTokenFunc,
// when set, takes precedence over Actor and Err.
type MockAuthenticator struct {
	Actor            *types.Actor
	Err              error
	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Actor, nil
}

// MockRateLimiter implements RateLimiter for tests. With neither field set
// every request is allowed.
type MockRateLimiter struct {
	ConsumeFunc func(ctx context.Context, clientKey string) (ratelimit.Decision, error)

	mu   sync.Mutex
	Keys []string
}

func (m *MockRateLimiter) Consume(ctx context.Context, clientKey string) (ratelimit.Decision, error) {
	m.mu.Lock()
	m.Keys = append(m.Keys, clientKey)
	m.mu.Unlock()

	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, clientKey)
	}
	return ratelimit.Decision{Allowed: true, Limit: 100, Remaining: 99}, nil
}

// MockQuotaChecker implements QuotaChecker for tests. Without CheckFunc
// every request is allowed.
type MockQuotaChecker struct {
	CheckFunc func(ctx context.Context, userID string, plan types.PlanName, feature types.Feature) (quota.Decision, error)

	mu       sync.Mutex
	Features []types.Feature
}

func (m *MockQuotaChecker) Check(ctx context.Context, userID string, plan types.PlanName, feature types.Feature) (quota.Decision, error) {
	m.mu.Lock()
	m.Features = append(m.Features, feature)
	m.mu.Unlock()

	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, userID, plan, feature)
	}
	return quota.Decision{Allowed: true, Feature: feature, Limit: types.Unlimited}, nil
}

// RecordCall is one MockUsageRecorder.Record invocation.
type RecordCall struct {
	UserID  string
	Feature types.Feature
}

// MockUsageRecorder implements UsageRecorder for tests, returning Err.
type MockUsageRecorder struct {
	Err error

	mu    sync.Mutex
	calls []RecordCall
}

func (m *MockUsageRecorder) Record(_ context.Context, userID string, feature types.Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, RecordCall{UserID: userID, Feature: feature})
	return m.Err
}

// Calls returns a copy of the recorded invocations.
func (m *MockUsageRecorder) Calls() []RecordCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordCall, len(m.calls))
	copy(out, m.calls)
	return out
}

var (
	_ Authenticator = (*MockAuthenticator)(nil)
	_ RateLimiter   = (*MockRateLimiter)(nil)
	_ QuotaChecker  = (*MockQuotaChecker)(nil)
	_ UsageRecorder = (*MockUsageRecorder)(nil)
)
