package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the sorted set to the window, then adds the request
// only if it fits. Scores are unix milliseconds. Returns
// {allowed, count, oldestScore}.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then first = tonumber(oldest[2]) end
if count >= limit then
  return {0, count, first}
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, count + 1, first}
`)

// RedisBucketStore shares sliding windows across replicas.
type RedisBucketStore struct {
	client *redis.Client
	prefix string
}

func NewRedisBucketStore(client *redis.Client, prefix string) *RedisBucketStore {
	return &RedisBucketStore{client: client, prefix: prefix}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit Limit, now time.Time) (Result, error) {
	nowMs := now.UnixMilli()
	windowMs := limit.Window.Milliseconds()
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	raw, err := slidingWindow.Run(ctx, s.client, []string{s.prefix + key},
		nowMs, windowMs, limit.Requests, member).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("rate limit script returned %d values", len(raw))
	}

	reset := time.UnixMilli(raw[2]).Add(limit.Window)
	if raw[0] == 0 {
		return Result{
			Limit:      limit.Requests,
			ResetAt:    reset,
			RetryAfter: reset.Sub(now),
		}, nil
	}
	return Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - int(raw[1]),
		ResetAt:   reset,
	}, nil
}
