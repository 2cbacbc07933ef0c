package audit

import (
	"context"
	"slices"
	"sync"

	"pidgate/pkg/platform/sentinel"
)

// Store is append-only. It has no update or delete.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByPID(ctx context.Context, pid string) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}

type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[string]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.ID.String()
	if _, ok := s.ids[key]; ok {
		return sentinel.ErrConflict
	}
	s.ids[key] = struct{}{}
	s.entries = append(s.entries, entry)
	return nil
}

// ListByPID returns the entries for pid, newest first.
func (s *InMemoryStore) ListByPID(_ context.Context, pid string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].PID == pid {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

// ListRecent returns up to limit entries, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.entries)-limit, 0)
	out := slices.Clone(s.entries[start:])
	slices.Reverse(out)
	return out, nil
}
