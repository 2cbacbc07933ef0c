package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidgate/pkg/platform/sentinel"
)

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryStore()
	publisher := NewPublisher(store, WithClock(func() time.Time { return now }))

	entry, err := publisher.Emit(ctx, Entry{PID: "JP-13-113-01", Requestor: "did:pid:carrier", Action: ActionResolve, Outcome: OutcomeGranted})
	require.NoError(t, err)
	assert.False(t, entry.ID.IsNil())
	assert.Equal(t, now, entry.Timestamp)

	_, err = publisher.Emit(ctx, Entry{PID: "JP-13-113-02", Requestor: "did:pid:carrier", Action: ActionResolve, Outcome: OutcomeDenied, Reason: "no policy"})
	require.NoError(t, err)
	_, err = publisher.Emit(ctx, Entry{PID: "JP-13-113-01", Requestor: "did:pid:other", Action: ActionResolve, Outcome: OutcomeDenied})
	require.NoError(t, err)

	t.Run("list by pid newest first", func(t *testing.T) {
		entries, err := publisher.ListByPID(ctx, "JP-13-113-01")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "did:pid:other", entries[0].Requestor)
		assert.Equal(t, entry.ID, entries[1].ID)
	})

	t.Run("list recent respects limit", func(t *testing.T) {
		entries, err := publisher.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "did:pid:other", entries[0].Requestor)
	})

	t.Run("ids are write once", func(t *testing.T) {
		err := store.Append(ctx, entry)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})
}

type failingStore struct{ InMemoryStore }

func (*failingStore) Append(context.Context, Entry) error { return errors.New("disk full") }

func TestPublisherSurfacesStoreFailure(t *testing.T) {
	publisher := NewPublisher(&failingStore{}, WithQueue(1))
	_, err := publisher.Emit(context.Background(), Entry{PID: "JP-13-113-01"})
	require.Error(t, err)
	assert.Empty(t, publisher.Queue(), "nothing is forwarded for an entry that was not stored")
}

type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
	fail    bool
}

func (s *recordingSink) Publish(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		s.fail = false
		return errors.New("broker down")
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestWorkerForwardsToSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := NewPublisher(NewInMemoryStore(), WithQueue(8))
	sink := &recordingSink{fail: true}
	worker := NewWorker(sink, publisher.Queue(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	for range 3 {
		_, err := publisher.Emit(ctx, Entry{PID: "JP-13-113-01", Outcome: OutcomeGranted})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 10*time.Millisecond,
		"first publish fails and is skipped")

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	publisher := NewPublisher(NewInMemoryStore(), WithQueue(1), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	for range 3 {
		_, err := publisher.Emit(context.Background(), Entry{PID: "JP-13-113-01"})
		require.NoError(t, err)
	}
	assert.Len(t, publisher.Queue(), 1)

	entries, err := publisher.ListByPID(context.Background(), "JP-13-113-01")
	require.NoError(t, err)
	assert.Len(t, entries, 3, "store is authoritative regardless of fan-out")
}
