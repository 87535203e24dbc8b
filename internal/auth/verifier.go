// Package auth resolves Supabase access tokens into request actors.
//
// Tokens are verified locally: HS256 against the project JWT secret, or
// asymmetric keys fetched from the project JWKS endpoint. The plan and admin
// flag come from the profiles table, never from token claims.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codetutor/internal/types"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// Claims is the subset of a Supabase access token the API relies on.
type Claims struct {
	jwt.RegisteredClaims
	Email       string         `json:"email"`
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// JWTVerifier validates Supabase access tokens with golang-jwt.
type JWTVerifier struct {
	parser  *jwt.Parser
	keyFunc jwt.Keyfunc
}

// NewHS256Verifier verifies tokens signed with the project JWT secret.
func NewHS256Verifier(secret types.SecretString, audience string) (*JWTVerifier, error) {
	if !secret.IsSet() {
		return nil, errors.New("jwt secret must be set")
	}
	key := []byte(secret.Unmask())
	return &JWTVerifier{
		parser: newParser(audience, jwt.SigningMethodHS256.Name),
		keyFunc: func(*jwt.Token) (any, error) {
			return key, nil
		},
	}, nil
}

// NewJWKSVerifier verifies tokens against the keys served at jwksURL. The
// key set is refreshed in the background until ctx is cancelled.
func NewJWKSVerifier(ctx context.Context, jwksURL, audience string) (*JWTVerifier, error) {
	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}
	return &JWTVerifier{
		parser:  newParser(audience, jwt.SigningMethodRS256.Name, jwt.SigningMethodES256.Name),
		keyFunc: k.Keyfunc,
	}, nil
}

func newParser(audience string, methods ...string) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return jwt.NewParser(opts...)
}

// Verify parses and validates token. Expired tokens map to
// auth_token_expired, everything else to auth_token_invalid.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "Invalid or expired token", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid or expired token", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid or expired token", nil)
	}
	return claims, nil
}
