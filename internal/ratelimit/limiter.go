package ratelimit

import (
	"context"
	"time"

	"pidgate/internal/ratelimit/metrics"
)

// Limiter applies a per-class Limit to client keys.
type Limiter struct {
	store   BucketStore
	limits  map[Class]Limit
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Limiter)

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

func NewLimiter(store BucketStore, limits map[Class]Limit, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		limits: limits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request from client in class. Classes without a limit
// always pass.
func (l *Limiter) Check(ctx context.Context, class Class, client string) (Result, error) {
	limit, ok := l.limits[class]
	if !ok || limit.Requests <= 0 {
		return Result{Allowed: true}, nil
	}
	res, err := l.store.Allow(ctx, string(class)+":"+client, limit, l.now())
	if err != nil {
		return Result{}, err
	}
	if l.metrics != nil {
		l.metrics.ObserveDecision(string(class), res.Allowed)
	}
	return res, nil
}
