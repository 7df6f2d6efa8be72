package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetra-ai/vetra/internal/model"
)

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(context.Context, string) (bool, error) { return false, nil }
func (denyAllLimiter) Close() error                                { return nil }

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("limiter backend down")
}
func (brokenLimiter) Close() error { return nil }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareDeniesWithEnvelope(t *testing.T) {
	mw := Middleware(denyAllLimiter{}, IPKeyFunc, func(*http.Request) string { return "req-123" })
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/validations", nil)
	req.RemoteAddr = "203.0.113.9:41000"

	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-123", body.Meta.RequestID)
}

func TestMiddlewareSkipsEmptyKey(t *testing.T) {
	mw := Middleware(denyAllLimiter{}, func(*http.Request) string { return "" }, nil)
	rec := httptest.NewRecorder()

	mw(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareFailsOpenOnLimiterError(t *testing.T) {
	mw := Middleware(brokenLimiter{}, IPKeyFunc, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:41000"

	mw(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:41000"
	assert.Equal(t, "203.0.113.9", IPKeyFunc(req))

	// Spoofed forwarding headers are ignored.
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, "203.0.113.9", IPKeyFunc(req))
}
