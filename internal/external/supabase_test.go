package external

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codetutor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSupabaseClient(t *testing.T, serverURL string) *SupabaseAuthClient {
	t.Helper()
	base := newTestClient(t, RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond})
	return NewSupabaseAuthClientWithBase(base, SupabaseAuthConfig{
		URL:     serverURL + "/",
		AnonKey: "anon-key",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestSupabaseLogin_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@example.com", body["email"])

		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"expires_at":1700000000,
			"token_type":"bearer","user":{"id":"u1","email":"a@example.com"}}`))
	}))
	defer server.Close()

	c := newTestSupabaseClient(t, server.URL)
	session, err := c.Login(context.Background(), "a@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "at", session.AccessToken)
	assert.Equal(t, "rt", session.RefreshToken)
	assert.Equal(t, int64(3600), session.ExpiresIn)
	assert.Equal(t, "u1", session.User.ID)
}

func TestSupabaseLogin_InvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	}))
	defer server.Close()

	c := newTestSupabaseClient(t, server.URL)
	_, err := c.Login(context.Background(), "a@example.com", "wrong")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthInvalidCreds, appErr.Code)
	assert.Equal(t, "Invalid credentials", appErr.Message)
}

func TestSupabaseSignup_ReturnsUserWhenConfirmationRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"name": "Ada"}, body["data"])
		w.Write([]byte(`{"id":"u2","email":"ada@example.com"}`))
	}))
	defer server.Close()

	c := newTestSupabaseClient(t, server.URL)
	res, err := c.Signup(context.Background(), "ada@example.com", "password123", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "u2", res.User.ID)
	assert.Nil(t, res.Session)
}

func TestSupabaseSignup_ReturnsSessionWhenAutoConfirmed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"at","user":{"id":"u3","email":"b@example.com"}}`))
	}))
	defer server.Close()

	c := newTestSupabaseClient(t, server.URL)
	res, err := c.Signup(context.Background(), "b@example.com", "password123", "")
	require.NoError(t, err)
	assert.Equal(t, "u3", res.User.ID)
	require.NotNil(t, res.Session)
	assert.Equal(t, "at", res.Session.AccessToken)
}

func TestSupabaseSignup_RejectedSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":422,"msg":"User already registered"}`))
	}))
	defer server.Close()

	c := newTestSupabaseClient(t, server.URL)
	_, err := c.Signup(context.Background(), "b@example.com", "password123", "")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationFailed, appErr.Code)
	assert.Equal(t, "User already registered", appErr.Message)
}

func TestSupabase_ServerErrorMapsToUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer server.Close()

	c := newTestSupabaseClient(t, server.URL)
	_, err := c.Refresh(context.Background(), "rt")
	assert.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, err.(*types.AppError).HTTPStatus())
}

func TestSupabaseLogout_UsesUserToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/logout", r.URL.Path)
		assert.Equal(t, "Bearer user-access", r.Header.Get("Authorization"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestSupabaseClient(t, server.URL)
	require.NoError(t, c.Logout(context.Background(), "user-access"))
}

func TestSupabaseRecoverPassword_SendsRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/recover", r.URL.Path)
		assert.Equal(t, "https://app.example.com/reset-password", r.URL.Query().Get("redirect_to"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@example.com", body["email"])
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	base := newTestClient(t, RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond})
	c := NewSupabaseAuthClientWithBase(base, SupabaseAuthConfig{
		URL:              server.URL,
		AnonKey:          "anon-key",
		RecoveryRedirect: "https://app.example.com/reset-password",
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, c.RecoverPassword(context.Background(), "a@example.com"))
}

func TestSupabaseUpdatePassword(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   types.ErrorCode
	}{
		{name: "updated", status: http.StatusOK, body: `{"id":"u1","email":"a@example.com"}`},
		{name: "expired recovery token", status: http.StatusUnauthorized, body: `{"msg":"invalid JWT"}`, code: types.ErrCodeAuthTokenInvalid},
		{name: "weak password", status: http.StatusUnprocessableEntity, body: `{"msg":"Password should be at least 8 characters"}`, code: types.ErrCodeValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/auth/v1/user", r.URL.Path)
				assert.Equal(t, "Bearer recovery-token", r.Header.Get("Authorization"))

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "n3w-passw0rd", body["password"])
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestSupabaseClient(t, server.URL)
			err := c.UpdatePassword(context.Background(), "recovery-token", "n3w-passw0rd")
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			assert.True(t, types.IsCode(err, tt.code), "err = %v", err)
		})
	}
}
