// ABOUTME: Tests for the HTTP authentication middleware
// ABOUTME: Covers bearer validation, rejection paths, and anonymous single-tenant mode

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityEcho records the Identity seen by the downstream handler.
func identityEcho(got **Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	token, err := v.Generate("user-123", time.Hour)
	require.NoError(t, err)

	var got *Identity
	handler := Middleware(v)(identityEcho(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "user-123", got.UserID)
	assert.False(t, got.Anonymous)
}

func TestMiddleware_RejectsMissingAndMalformedHeaders(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer "},
		{"bad token", "Bearer garbage"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got *Identity
			handler := Middleware(v)(identityEcho(&got))

			req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, got, "handler must not run for a rejected request")
		})
	}
}

func TestMiddleware_RejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	token, err := v.Generate("user-123", -time.Minute)
	require.NoError(t, err)

	var got *Identity
	handler := Middleware(v)(identityEcho(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, got)
}

func TestMiddleware_AnonymousModeWithoutVerifier(t *testing.T) {
	var got *Identity
	handler := Middleware(nil)(identityEcho(&got))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.True(t, got.Anonymous)
	assert.Empty(t, got.UserID)
}
