// README: In-memory driver store; TryAcquire is guarded by one mutex, same contract as Postgres.
package matching

import (
	"context"
	"sync"

	"nasta/internal/types"
)

type MemDriverStore struct {
	mu      sync.Mutex
	drivers map[types.ID]*Driver
}

func NewMemDriverStore() *MemDriverStore {
	return &MemDriverStore{drivers: make(map[types.ID]*Driver)}
}

func (s *MemDriverStore) Put(d *Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.drivers[d.ID] = &cp
}

func (s *MemDriverStore) Get(_ context.Context, id types.ID) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrDriverNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemDriverStore) ListByIDs(_ context.Context, ids []types.ID) ([]Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Driver
	for _, id := range ids {
		if d, ok := s.drivers[id]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemDriverStore) TryAcquire(_ context.Context, id types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok || !d.Matchable() {
		return false, nil
	}
	d.IsAvailable = false
	return true, nil
}

func (s *MemDriverStore) Release(_ context.Context, id types.ID, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrDriverNotFound
	}
	d.IsAvailable = true
	if completed {
		d.CompletedDeliveries++
	}
	return nil
}

func (s *MemDriverStore) SetDuty(_ context.Context, id types.ID, onDuty bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrDriverNotFound
	}
	d.IsOnDuty = onDuty
	if !onDuty {
		d.IsAvailable = false
	}
	return nil
}

func (s *MemDriverStore) UpdateRating(_ context.Context, id types.ID, average float64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrDriverNotFound
	}
	d.AverageRating = average
	d.RatingCount = count
	return nil
}

var _ DriverStore = (*MemDriverStore)(nil)
