// README: In-memory venue store for unit tests and dev mode.
package venue

import (
	"context"
	"sync"

	"nasta/internal/types"
)

type MemStore struct {
	mu     sync.RWMutex
	venues map[types.ID]*Venue
}

func NewMemStore() *MemStore {
	return &MemStore{venues: make(map[types.ID]*Venue)}
}

func (s *MemStore) Put(v *Venue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.venues[v.ID] = &cp
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.venues[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemStore) UpdateRating(_ context.Context, id types.ID, average float64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.venues[id]
	if !ok {
		return ErrNotFound
	}
	v.AverageRating = average
	v.RatingCount = count
	return nil
}

var _ Store = (*MemStore)(nil)
