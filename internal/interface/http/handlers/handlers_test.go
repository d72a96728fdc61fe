package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAPIKeyAuth(t *testing.T) {
	hash, err := HashAPIKey("s3cret")
	require.NoError(t, err)
	h := NewAPIKeyAuth(hash).Middleware(okHandler)

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", APIKeyHeader, "nope", http.StatusUnauthorized},
		{"header", APIKeyHeader, "s3cret", http.StatusOK},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAPIKeyAuth_DisabledWithoutHash(t *testing.T) {
	auth := NewAPIKeyAuth("")
	assert.False(t, auth.Enabled())

	rec := httptest.NewRecorder()
	auth.Middleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	h := rl.Middleware(okHandler)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// a different client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	for range 100 {
		assert.True(t, rl.Allow("x"))
	}
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimitMiddleware(4)(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	h := RequestLogger(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, logger.FromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("test")
	status := c.Check(context.Background())
	assert.True(t, status.Healthy)

	up := true
	c.AddCheck("store", func(context.Context) error { return nil })
	c.AddCheck("scheduler", NewFlagCheck(func() bool { return up }, "scheduler stopped"))
	status = c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Len(t, status.Checks, 2)

	up = false
	c.AddCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis, scheduler", status.Message)
	assert.Equal(t, "scheduler stopped", status.Checks["scheduler"].Message)

	c.RemoveCheck("redis")
	c.RemoveCheck("scheduler")
	assert.True(t, c.Check(context.Background()).Healthy)
}
