package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidLevel ErrorCode = "validation_invalid_level"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"
	ErrCodeValidationFailed       ErrorCode = "validation_failed"

	// Payload (413)
	ErrCodePayloadCodeTooLarge ErrorCode = "payload_code_too_large"

	// Auth (401)
	ErrCodeAuthTokenMissing    ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid    ErrorCode = "auth_token_invalid"
	ErrCodeAuthTokenExpired    ErrorCode = "auth_token_expired"
	ErrCodeAuthInvalidCreds    ErrorCode = "auth_invalid_credentials"
	ErrCodeAuthRequired        ErrorCode = "auth_required"
	ErrCodeAuthProfileNotFound ErrorCode = "auth_profile_not_found"

	// Permission / Feature gates (403)
	ErrCodePermissionAdminRequired ErrorCode = "permission_admin_required"
	ErrCodeFeatureNotEnabled       ErrorCode = "feature_not_enabled"

	// Limits (429)
	ErrCodeLimitQuotaExceeded ErrorCode = "limit_quota_exceeded"
	ErrCodeRateLimit          ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundAnalysis ErrorCode = "not_found_analysis"
	ErrCodeNotFoundUser     ErrorCode = "not_found_user"
	ErrCodeNotFoundRoute    ErrorCode = "not_found_route"

	// Configuration (500)
	ErrCodeConfigPlanUnknown ErrorCode = "config_plan_unknown"
	ErrCodeConfigInvalid     ErrorCode = "config_invalid"

	// Backing store (503)
	ErrCodeStoreUnavailable ErrorCode = "store_unavailable"
	ErrCodeStoreTimeout     ErrorCode = "store_timeout"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamAnthropic   ErrorCode = "upstream_anthropic_unavailable"
	ErrCodeUpstreamSupabase    ErrorCode = "upstream_supabase_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "payload_"):
		return http.StatusRequestEntityTooLarge // 413
	case s == string(ErrCodeAuthProfileNotFound):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "permission_"), strings.HasPrefix(s, "feature_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "limit_"), s == string(ErrCodeRateLimit):
		return http.StatusTooManyRequests // 429
	case s == string(ErrCodeUpstreamRateLimited):
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "store_"):
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "config_"), strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// IsCode reports whether err is (or wraps) an AppError carrying code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
