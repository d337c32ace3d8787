package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/backoffice-realtime/internal/auth"
	"github.com/lorrc/backoffice-realtime/internal/infrastructure/logging"
)

func TestRequestID(t *testing.T) {
	var seen, logged string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		logged = logging.GetRequestID(r.Context())
	}))

	t.Run("keeps an incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, "req-1", seen)
		assert.Equal(t, "req-1", logged)
		assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	})

	t.Run("generates one when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})
}

func TestJWTMiddlewareAndRoles(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Minute, "test")
	var username string
	h := JWTMiddleware(tm)(RequireRole(auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		require.True(t, ok)
		username = claims.Username
		w.WriteHeader(http.StatusNoContent)
	})))

	serve := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	admin, err := tm.GenerateToken("root", auth.RoleAdmin)
	require.NoError(t, err)
	staff, err := tm.GenerateToken("clerk", auth.RoleStaff)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Equal(t, http.StatusUnauthorized, serve("Token "+admin))
	assert.Equal(t, http.StatusUnauthorized, serve("Bearer garbage"))
	assert.Equal(t, http.StatusForbidden, serve("Bearer "+staff))
	assert.Equal(t, http.StatusNoContent, serve("Bearer "+admin))
	assert.Equal(t, "root", username)
}

func TestRequireRole_NoClaims(t *testing.T) {
	h := RequireRole(auth.RoleStaff)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
		TTL:               time.Minute,
	})
	t.Cleanup(rl.Stop)

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serve := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve("203.0.113.7"))
	assert.Equal(t, http.StatusOK, serve("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, serve("203.0.113.7"))
	assert.Equal(t, http.StatusOK, serve("198.51.100.2"), "limits are per client")

	rl.Stop()
	rl.Stop()
}

func TestRecoveryLogger(t *testing.T) {
	h := RecoveryLogger(logging.NewLogger(logging.Config{Format: "json", Output: io.Discard}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error","code":"INTERNAL_ERROR"}`, rec.Body.String())
}
