package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"codetutor/internal/types"
)

// RequireAuth resolves the bearer token to an Actor and stores it in the
// request context. Missing or rejected tokens get 401; an authenticator
// outage is passed through Error unchanged (usually 500 or 503).
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "Authentication is not configured", nil))
			return
		}

		token := ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "No token provided", nil))
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "Invalid or expired token", nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// RequireAdmin rejects callers whose profile is not flagged as admin. It
// must run after RequireAuth.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
			return
		}
		if !actor.IsAdmin {
			s.Logger.WarnContext(r.Context(), "admin access denied",
				slog.String("user_id", actor.UserID),
				slog.String("path", r.URL.Path),
			)
			Error(w, r, types.NewAppError(types.ErrCodePermissionAdminRequired, "Admin access required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractBearerToken returns the token from "Bearer <token>" (scheme is
// case-insensitive per RFC 7235), or "" when the header has another shape.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus() == http.StatusUnauthorized {
		s.Logger.WarnContext(r.Context(), "authentication failed",
			slog.String("path", r.URL.Path),
			slog.String("error_code", string(appErr.Code)),
		)
		Error(w, r, appErr)
		return
	}

	s.Logger.ErrorContext(r.Context(), "token resolution failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	Error(w, r, err)
}
