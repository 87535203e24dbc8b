package auth

import (
	"context"
	"log/slog"

	"codetutor/internal/types"
)

// ProfileSource loads the application profile for an authenticated user.
type ProfileSource interface {
	GetByID(ctx context.Context, userID string) (*types.Profile, error)
}

// Authenticator turns a bearer token into a types.Actor.
type Authenticator struct {
	verifier TokenVerifier
	profiles ProfileSource
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator. With a nil ProfileSource every
// verified user is treated as a non-admin on the free plan.
func NewAuthenticator(verifier TokenVerifier, profiles ProfileSource, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{verifier: verifier, profiles: profiles, logger: logger}
}

// ResolveToken verifies token and attaches the user's plan and admin flag.
func (a *Authenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	claims, err := a.verifier.Verify(ctx, token)
	if err != nil {
		a.logger.WarnContext(ctx, "token verification failed", "error", err)
		return nil, err
	}

	actor := &types.Actor{
		UserID: claims.Subject,
		Email:  claims.Email,
		Plan:   types.PlanFree,
	}

	if a.profiles == nil {
		return actor, nil
	}

	profile, err := a.profiles.GetByID(ctx, claims.Subject)
	if err != nil {
		a.logger.ErrorContext(ctx, "profile fetch failed", "user_id", claims.Subject, "error", err)
		return nil, err
	}

	if profile.Plan != "" {
		actor.Plan = profile.Plan
	}
	actor.IsAdmin = profile.IsAdmin
	if actor.Email == "" {
		actor.Email = profile.Email
	}
	return actor, nil
}
