package address

import (
	"context"
	"fmt"
	"sync"

	"pidgate/pkg/platform/sentinel"
)

type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, pid string) (Record, error)
	Update(ctx context.Context, rec Record) error
}

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.PID]; ok {
		return fmt.Errorf("address record %s: %w", rec.PID, sentinel.ErrConflict)
	}
	s.records[rec.PID] = rec
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, pid string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[pid]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) Update(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.PID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[rec.PID] = rec
	return nil
}
