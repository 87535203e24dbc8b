package core

import (
	"context"

	"codetutor/internal/quota"
	"codetutor/internal/ratelimit"
	"codetutor/internal/types"
)

// Authenticator resolves a bearer access token to the calling Actor.
//
// Implementations return an auth_token_invalid or auth_token_expired
// AppError for rejected tokens; any other error is treated as an outage.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RateLimiter spends request points for a client key.
type RateLimiter interface {
	Consume(ctx context.Context, clientKey string) (ratelimit.Decision, error)
}

// QuotaChecker is the plan-quota pre-check run before protected work.
type QuotaChecker interface {
	Check(ctx context.Context, userID string, plan types.PlanName, feature types.Feature) (quota.Decision, error)
}

// UsageRecorder counts one unit of a feature after the work succeeded.
type UsageRecorder interface {
	Record(ctx context.Context, userID string, feature types.Feature) error
}
