package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_enricher/internal/auth"
	"listing_enricher/internal/config"
	"listing_enricher/internal/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:   []byte("middleware-test-secret"),
			Issuer:   "listing-enricher",
			TokenTTL: time.Hour,
		},
	}
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		claims, ok := GetUserClaims(r.Context())
		if !ok || claims.Subject != userID {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(userID))
	})
}

func TestUserJWTMiddleware_ValidToken(t *testing.T) {
	cfg := testConfig()
	token, _, err := auth.GenerateUserToken("alice", cfg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/me/usage/openai", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	UserJWTMiddleware(cfg)(echoUser()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestUserJWTMiddleware_Rejects(t *testing.T) {
	cfg := testConfig()
	otherCfg := testConfig()
	otherCfg.JWT.Secret = []byte("another-secret")
	foreign, _, err := auth.GenerateUserToken("alice", otherCfg)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer abc.def.ghi"},
		{"foreign secret", "Bearer " + foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me/usage/openai", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
			UserJWTMiddleware(cfg)(next).ServeHTTP(w, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body utils.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGetUserID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := GetUserID(req.Context())
	assert.False(t, ok)

	id, ok := GetUserID(WithUserID(req.Context(), "bob"))
	assert.True(t, ok)
	assert.Equal(t, "bob", id)
}

func TestRequestLogMiddleware_PassesThrough(t *testing.T) {
	handler := RequestLogMiddleware(utils.NewLogger("http-test"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "short and stout", w.Body.String())
}
