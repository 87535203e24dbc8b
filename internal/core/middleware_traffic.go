package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"codetutor/internal/quota"
	"codetutor/internal/types"
)

// KeyFunc derives the rate-limit client identity from a request.
type KeyFunc func(r *http.Request) string

// ByClientIP keys on the client address resolved by ClientIPMiddleware.
func ByClientIP(r *http.Request) string {
	return "ip:" + types.GetClientIP(r.Context())
}

// ByUser keys on the authenticated user, falling back to the client address
// for anonymous requests.
func ByUser(r *http.Request) string {
	if actor, ok := types.GetActor(r.Context()); ok && actor.UserID != "" {
		return "user:" + actor.UserID
	}
	return ByClientIP(r)
}

// RateLimit spends one point of the named limiter per request.
//
// Every response that reached the limiter carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset; a rejection adds Retry-After.
// When the limiter store fails the request is let through and the failure
// is logged, so a store outage never blocks traffic.
func (s *Server) RateLimit(name string, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter, ok := s.Limiters[name]
			if !ok || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := key(r)
			d, err := limiter.Consume(r.Context(), clientKey)
			if err != nil {
				s.Logger.ErrorContext(r.Context(), "rate limit store error",
					slog.String("limiter", name),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, d.Limit, d.Remaining, d.ResetAt)

			if !d.Allowed {
				retryAfter := d.RetryAfterSeconds()
				s.Logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("limiter", name),
					slog.String("client", clientKey),
					slog.Int("retry_after", retryAfter),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				s.metrics().RateLimitDenied(r.Context(), name)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				Error(w, r, types.NewAppError(types.ErrCodeRateLimit,
					fmt.Sprintf("Too many requests. Please try again in %d seconds.", retryAfter), nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, resetAt time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", resetAt.UTC().Format(time.RFC3339))
}

// PlanQuota admits the request only if the actor's plan enables feature and
// the current period's count is below the plan limit. It must run after
// RequireAuth.
//
// The check reserves nothing. A store failure rejects the request with 503
// rather than serving unmetered work.
func (s *Server) PlanQuota(feature types.Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Quota == nil {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := types.GetActor(r.Context())
			if !ok {
				Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authentication required", nil))
				return
			}

			d, err := s.Quota.Check(r.Context(), actor.UserID, actor.Plan, feature)
			if err != nil {
				s.Logger.ErrorContext(r.Context(), "quota check failed",
					slog.String("user_id", actor.UserID),
					slog.String("feature", string(feature)),
					slog.Any("error", err),
				)
				Error(w, r, err)
				return
			}

			if !d.Allowed {
				s.metrics().QuotaDenied(r.Context(), string(feature), string(d.Reason))
				Error(w, r, quotaDenial(w, d))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func quotaDenial(w http.ResponseWriter, d quota.Decision) *types.AppError {
	if d.Reason == quota.ReasonFeatureDisabled {
		return types.NewAppError(types.ErrCodeFeatureNotEnabled, d.Message, nil)
	}

	// Rounded up so a client never retries before the period boundary.
	secs := int64(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	return types.NewAppErrorWithDetails(types.ErrCodeLimitQuotaExceeded, d.Message, nil,
		map[string]any{
			"feature": d.Feature,
			"limit":   int64(d.Limit),
			"used":    d.Used,
		})
}

// usageMarkKey carries the per-request usageMark.
type usageMarkKey struct{}

type usageMark struct {
	skip bool
}

// SkipUsage tells RecordUsage not to count the current request, e.g. when
// the response was served from cache. It is a no-op outside RecordUsage.
func SkipUsage(ctx context.Context) {
	if m, ok := ctx.Value(usageMarkKey{}).(*usageMark); ok {
		m.skip = true
	}
}

// RecordUsage counts one unit of feature after the handler returns a 2xx
// response that was not marked with SkipUsage. Recording failures are
// reported to metrics and never change the response.
func (s *Server) RecordUsage(feature types.Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Usage == nil {
				next.ServeHTTP(w, r)
				return
			}

			mark := &usageMark{}
			ctx := context.WithValue(r.Context(), usageMarkKey{}, mark)
			rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rc, r.WithContext(ctx))

			if rc.statusCode < 200 || rc.statusCode > 299 || mark.skip {
				return
			}
			actor, ok := types.GetActor(ctx)
			if !ok {
				return
			}
			if err := s.Usage.Record(ctx, actor.UserID, feature); err != nil {
				s.metrics().UsageRecordFailed(ctx, string(feature))
			}
		})
	}
}

// LimitCodeSize rejects bodies whose "code" field exceeds maxChars
// characters with 413 and advertises the limit in X-Code-Size-Limit. Bodies
// that are not valid JSON pass through for the handler to reject.
func (s *Server) LimitCodeSize(maxChars int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Code-Size-Limit", strconv.Itoa(maxChars))

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
			if err != nil {
				var maxBytesErr *http.MaxBytesError
				if errors.As(err, &maxBytesErr) {
					Error(w, r, types.NewAppError(types.ErrCodePayloadCodeTooLarge,
						fmt.Sprintf("Code size too large. Maximum allowed is %dKB.", maxChars/1000), err))
					return
				}
				Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "failed to read request body", err))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var probe struct {
				Code string `json:"code"`
			}
			if json.Unmarshal(body, &probe) == nil {
				if size := utf8.RuneCountInString(probe.Code); size > maxChars {
					actor, _ := types.GetActor(r.Context())
					s.Logger.WarnContext(r.Context(), "code size exceeded limit",
						slog.String("user_id", actor.UserID),
						slog.Int("size", size),
						slog.Int("limit", maxChars),
					)
					Error(w, r, types.NewAppError(types.ErrCodePayloadCodeTooLarge,
						fmt.Sprintf("Code size too large. Maximum allowed is %dKB. Your code is %dKB.", maxChars/1000, size/1000), nil))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
