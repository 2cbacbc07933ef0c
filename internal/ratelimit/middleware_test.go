package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidgate/pkg/platform/middleware/metadata"
	"pidgate/pkg/testutil"
)

type failingChecker struct{}

func (failingChecker) Check(context.Context, Class, string) (Result, error) {
	return Result{}, errors.New("redis: connection refused")
}

func limitedHandler(c Checker, class Class) http.Handler {
	mw := NewMiddleware(c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return metadata.ClientMetadata(mw.RateLimit(class)(ok))
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/proofs", nil)
	req.Header.Set("X-Forwarded-For", ip)
	return req
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiter(NewInMemoryBucketStore(),
		map[Class]Limit{ClassProof: {Requests: 2, Window: time.Minute}},
		WithClock(func() time.Time { return now }),
	)
	h := limitedHandler(limiter, ClassProof)

	for i := range 2 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestFrom("203.0.113.9"))
		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, []string{"1", "0"}[i], rr.Header().Get("X-RateLimit-Remaining"))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("203.0.113.9"))
	testutil.AssertError(t, rr, http.StatusTooManyRequests, "rate_limit_exceeded")
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	t.Run("other clients keep their own budget", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestFrom("198.51.100.20"))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}

func TestRateLimitUnconfiguredClassPasses(t *testing.T) {
	limiter := NewLimiter(NewInMemoryBucketStore(),
		map[Class]Limit{ClassProof: {Requests: 1, Window: time.Minute}, ClassSession: {}},
	)
	for _, class := range []Class{ClassAddress, ClassSession} {
		h := limitedHandler(limiter, class)
		for range 3 {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, requestFrom("203.0.113.9"))
			assert.Equal(t, http.StatusNoContent, rr.Code)
			assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	rr := httptest.NewRecorder()
	limitedHandler(failingChecker{}, ClassAddress).ServeHTTP(rr, requestFrom("203.0.113.9"))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Header().Get("Retry-After"))
}
