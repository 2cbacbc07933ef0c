package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pidgate/pkg/platform/sentinel"
)

// InMemoryStore keeps records per kind in version order.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

func (s *InMemoryStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.records[rec.Kind]
	if n := len(recs); n > 0 && recs[n-1].Version >= rec.Version {
		return fmt.Errorf("snapshot %s v%d: %w", rec.Kind, rec.Version, sentinel.ErrConflict)
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	s.records[rec.Kind] = append(recs, rec)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, kind string, version uint64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[kind]
	i := sort.Search(len(recs), func(i int) bool { return recs[i].Version >= version })
	if i < len(recs) && recs[i].Version == version {
		return recs[i], nil
	}
	return Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) Latest(_ context.Context, kind string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[kind]
	if len(recs) == 0 {
		return Record{}, sentinel.ErrNotFound
	}
	return recs[len(recs)-1], nil
}

func (s *InMemoryStore) AtOrBefore(_ context.Context, kind string, t time.Time) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[kind]
	for i := len(recs) - 1; i >= 0; i-- {
		if !recs[i].Timestamp.After(t) {
			return recs[i], nil
		}
	}
	return Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) List(_ context.Context, kind string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.records[kind]
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	out := make([]Record, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}
