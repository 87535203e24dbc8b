package core

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codetutor/internal/types"
)

func TestSuccess_WrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Success(rec, req, http.StatusCreated, map[string]string{"id": "a1"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := `{"success":true,"data":{"id":"a1"}}`
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestJSON_MarshalFailureFallsBackTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, req, http.StatusOK, map[string]any{"bad": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestError_AppErrorUsesCodeAndMessage(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   types.ErrorCode
		msg    string
	}{
		{
			name:   "quota",
			err:    types.NewAppError(types.ErrCodeLimitQuotaExceeded, "Daily analysis limit reached (5 analyses/day). Please upgrade your plan.", nil),
			status: http.StatusTooManyRequests,
			code:   types.ErrCodeLimitQuotaExceeded,
			msg:    "Daily analysis limit reached (5 analyses/day). Please upgrade your plan.",
		},
		{
			name:   "feature",
			err:    types.NewAppError(types.ErrCodeFeatureNotEnabled, "Test generation is not available in your plan", nil),
			status: http.StatusForbidden,
			code:   types.ErrCodeFeatureNotEnabled,
			msg:    "Test generation is not available in your plan",
		},
		{
			name:   "wrapped store error",
			err:    fmt.Errorf("check: %w", types.NewAppError(types.ErrCodeStoreUnavailable, "Usage service is temporarily unavailable", errors.New("dial tcp 10.0.0.5:6379: refused"))),
			status: http.StatusServiceUnavailable,
			code:   types.ErrCodeStoreUnavailable,
			msg:    "Usage service is temporarily unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))

			Error(rec, req, tt.err)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			body := decodeError(t, rec)
			if body.Success {
				t.Error("success should be false")
			}
			if body.Error != tt.msg {
				t.Errorf("error = %q, want %q", body.Error, tt.msg)
			}
			if body.Code != string(tt.code) {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if body.RequestID != "req-1" {
				t.Errorf("request_id = %q", body.RequestID)
			}
			if strings.Contains(rec.Body.String(), "10.0.0.5") {
				t.Error("wrapped cause leaked into the response")
			}
		})
	}
}

func TestError_GenericErrorIsOpaque500(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(rec, req, errors.New("pq: relation usage_counters does not exist"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "Internal server error" {
		t.Errorf("error = %q", body.Error)
	}
	if strings.Contains(rec.Body.String(), "usage_counters") {
		t.Error("internal error text leaked")
	}
}

func TestDecodeJSON(t *testing.T) {
	type dst struct {
		Email string `json:"email"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"email":"a@b.co"}`},
		{name: "empty", body: ``, wantErr: "request body must not be empty"},
		{name: "syntax", body: `{"email":`, wantErr: "invalid JSON in request body"},
		{name: "bad syntax char", body: `{"email" "x"}`, wantErr: "malformed JSON in request body"},
		{name: "unknown field", body: `{"email":"a@b.co","admin":true}`, wantErr: `unknown field in request body: "admin"`},
		{name: "wrong type", body: `{"email":42}`, wantErr: "invalid value for field"},
		{name: "two objects", body: `{"email":"a"}{"email":"b"}`, wantErr: "request body must contain a single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var d dst
			err := DecodeJSON(rec, req, &d)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != types.ErrCodeValidationInvalidJSON {
				t.Errorf("code = %s", appErr.Code)
			}
			if appErr.Message != tt.wantErr {
				t.Errorf("message = %q, want %q", appErr.Message, tt.wantErr)
			}
		})
	}
}
