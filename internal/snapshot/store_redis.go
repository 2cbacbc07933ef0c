package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pidgate/pkg/platform/sentinel"
)

// RedisStore keeps msgpack-encoded records under per-version keys plus two
// sorted sets indexing them by version and by publish time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces all keys, e.g. per deployment.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "snapshot"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) recordKey(kind string, version uint64) string {
	return fmt.Sprintf("%s:%s:v:%d", s.prefix, kind, version)
}

func (s *RedisStore) versionsKey(kind string) string {
	return fmt.Sprintf("%s:%s:versions", s.prefix, kind)
}

func (s *RedisStore) timesKey(kind string) string {
	return fmt.Sprintf("%s:%s:times", s.prefix, kind)
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	latest, err := s.Latest(ctx, rec.Kind)
	switch {
	case err == nil && latest.Version >= rec.Version:
		return fmt.Errorf("snapshot %s v%d: %w", rec.Kind, rec.Version, sentinel.ErrConflict)
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return err
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.recordKey(rec.Kind, rec.Version), data, 0).Result()
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	if !created {
		return fmt.Errorf("snapshot %s v%d: %w", rec.Kind, rec.Version, sentinel.ErrConflict)
	}

	member := strconv.FormatUint(rec.Version, 10)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.versionsKey(rec.Kind), redis.Z{Score: float64(rec.Version), Member: member})
		pipe.ZAdd(ctx, s.timesKey(rec.Kind), redis.Z{Score: float64(rec.Timestamp.UnixNano()), Member: member})
		return nil
	})
	if err != nil {
		return fmt.Errorf("index snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, kind string, version uint64) (Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(kind, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get snapshot: %w", err)
	}
	return decodeRecord(data)
}

func (s *RedisStore) Latest(ctx context.Context, kind string) (Record, error) {
	members, err := s.client.ZRevRange(ctx, s.versionsKey(kind), 0, 0).Result()
	if err != nil {
		return Record{}, fmt.Errorf("latest snapshot: %w", err)
	}
	if len(members) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return s.getMember(ctx, kind, members[0])
}

func (s *RedisStore) AtOrBefore(ctx context.Context, kind string, t time.Time) (Record, error) {
	members, err := s.client.ZRevRangeByScore(ctx, s.timesKey(kind), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(t.UnixNano(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return Record{}, fmt.Errorf("snapshot at time: %w", err)
	}
	if len(members) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return s.getMember(ctx, kind, members[0])
}

func (s *RedisStore) List(ctx context.Context, kind string, limit int) ([]Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := s.client.ZRevRange(ctx, s.versionsKey(kind), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	out := make([]Record, 0, len(members))
	for _, m := range members {
		rec, err := s.getMember(ctx, kind, m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) getMember(ctx context.Context, kind, member string) (Record, error) {
	version, err := strconv.ParseUint(member, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("corrupt snapshot index member %q: %w", member, err)
	}
	return s.Get(ctx, kind, version)
}
