package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
	"pidgate/pkg/platform/middleware/metadata"
	"pidgate/pkg/requestcontext"
)

// Checker is satisfied by Limiter.
type Checker interface {
	Check(ctx context.Context, class Class, client string) (Result, error)
}

type Middleware struct {
	limiter Checker
	logger  *slog.Logger
}

func NewMiddleware(limiter Checker, logger *slog.Logger) *Middleware {
	return &Middleware{limiter: limiter, logger: logger}
}

// RateLimit limits class per client IP. Store failures let the request
// through.
func (m *Middleware) RateLimit(class Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			res, err := m.limiter.Check(ctx, class, metadata.GetClientIP(ctx))
			if err != nil {
				m.logger.WarnContext(ctx, "rate limit check failed",
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			if res.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			if !res.Allowed {
				retry := int(math.Ceil(res.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteError(ctx, w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
