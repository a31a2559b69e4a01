package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
	pkgredis "github.com/angelmondragon/certify-backend/pkg/redis"
)

type windowLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (l *windowLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (pkgredis.WindowDecision, error) {
	if l.err != nil {
		return pkgredis.WindowDecision{}, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = map[string]int64{}
	}
	l.counts[scope]++
	count := l.counts[scope]
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return pkgredis.WindowDecision{Allowed: count <= limit, Count: count, Remaining: remaining, ResetIn: window}, nil
}

func TestRateLimitBlocksPerIPWithRetryAfter(t *testing.T) {
	limiter := &windowLimiter{}
	policy := NewRateLimitPolicy("verify", 30*time.Second, 2, 0)
	handler := RateLimit(policy, limiter, nil)(okHandler())

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/verify/ABC", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "30", last.Header().Get("Retry-After"))
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, limiter.counts, "verify:ip:10.0.0.1")
}

func TestRateLimitSeparatesClients(t *testing.T) {
	limiter := &windowLimiter{}
	handler := RateLimit(NewRateLimitPolicy("verify", time.Minute, 1, 0), limiter, nil)(okHandler())

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 172.16.0.1")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, http.StatusOK, resp.Code, ip)
	}
}

func TestRateLimitEmailDimensionPreservesBody(t *testing.T) {
	limiter := &windowLimiter{}
	policy := NewRateLimitPolicy("login", time.Minute, 0, 2)
	handler := RateLimit(policy, limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `"email":"Blocked@Example.com"`)
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"Blocked@Example.com","password":"secret"}`))
		req.RemoteAddr = "1.2.3.4:5678"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		if i < 2 {
			require.Equal(t, http.StatusOK, last.Code)
		}
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
	assert.Contains(t, limiter.counts, "login:email:"+hashValue("blocked@example.com"))
}

func TestRateLimitIPCheckedBeforeEmail(t *testing.T) {
	limiter := &windowLimiter{}
	handler := RateLimit(NewRateLimitPolicy("register", time.Minute, 1, 5), limiter, nil)(okHandler())

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(`{"email":"user`+string(rune('a'+i))+`@example.com"}`))
		req.RemoteAddr = "5.6.7.8:1234"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, want, resp.Code, "attempt %d", i)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	for name, handler := range map[string]http.Handler{
		"nil limiter": RateLimit(NewRateLimitPolicy("verify", time.Minute, 5, 0), nil, nil)(okHandler()),
		"zero limits": RateLimit(NewRateLimitPolicy("verify", time.Minute, 0, 0), &windowLimiter{err: errors.New("unused")}, nil)(okHandler()),
		"zero window": RateLimit(NewRateLimitPolicy("verify", 0, 5, 5), &windowLimiter{err: errors.New("unused")}, nil)(okHandler()),
	} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, resp.Code, name)
	}
}

func TestRateLimitStoreFailure(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("verify", time.Minute, 5, 0), &windowLimiter{err: errors.New("down")}, nil)(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " , 203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))
}
