package ratelimit

import (
	"context"
	"sync"
	"time"
)

// BucketStore records requests under key and reports whether one more fits.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit Limit, now time.Time) (Result, error)
}

// InMemoryBucketStore keeps one sliding window of timestamps per key. It is
// per-process; use RedisBucketStore when several replicas share limits.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{buckets: make(map[string][]time.Time)}
}

func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit Limit, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := prune(s.buckets[key], now.Add(-limit.Window))
	if len(hits) >= limit.Requests {
		s.buckets[key] = hits
		reset := hits[0].Add(limit.Window)
		return Result{
			Limit:      limit.Requests,
			ResetAt:    reset,
			RetryAfter: reset.Sub(now),
		}, nil
	}

	hits = append(hits, now)
	s.buckets[key] = hits
	return Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(hits),
		ResetAt:   hits[0].Add(limit.Window),
	}, nil
}

// prune drops timestamps at or before cutoff. Timestamps are in order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
