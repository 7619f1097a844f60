package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GaneshKarthi2007/battery-shop/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
}

func TestLoginRateLimitReturns429(t *testing.T) {
	env := newTestEnv(t)
	body, err := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)

		if i < 5 {
			require.Equalf(t, http.StatusUnauthorized, rec.Code, "attempt %d before limit", i+1)
		} else {
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
}

func TestLoginLimiterEvictsIdleClients(t *testing.T) {
	limiter := newAttemptLimiter(5, 20*time.Millisecond)
	require.True(t, limiter.Allow("192.0.2.1"))

	// After a full window the idle client's entry is swept on the next call.
	time.Sleep(30 * time.Millisecond)
	require.True(t, limiter.Allow("192.0.2.2"))

	limiter.mu.Lock()
	_, stale := limiter.entries["192.0.2.1"]
	size := len(limiter.entries)
	limiter.mu.Unlock()
	require.False(t, stale)
	require.Equal(t, 1, size)
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	env := newTestEnv(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":%q,"password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.2:5000"
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
