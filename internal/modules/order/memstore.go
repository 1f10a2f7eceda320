// README: In-memory order store with the same version-guarded update contract as Postgres.
package order

import (
	"context"
	"sync"
	"time"

	"nasta/internal/types"
)

type MemStore struct {
	mu     sync.Mutex
	orders map[types.ID]*Order
}

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[types.ID]*Order)}
}

func (s *MemStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(o)
	s.orders[o.ID] = cp
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(o), nil
}

func (s *MemStore) Update(_ context.Context, o *Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.orders[o.ID]
	if !ok {
		return false, ErrNotFound
	}
	if stored.Version != o.Version {
		return false, nil
	}
	o.Version++
	o.UpdatedAt = time.Now()
	s.orders[o.ID] = clone(o)
	return true, nil
}

func (s *MemStore) VenueRatingStats(_ context.Context, venueID types.ID) (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum, count int
	for _, o := range s.orders {
		if o.VenueID == venueID && o.VenueRating != nil && !o.IsDeleted {
			sum += *o.VenueRating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

func (s *MemStore) DriverRatingStats(_ context.Context, driverID types.ID) (float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum, count int
	for _, o := range s.orders {
		if o.DriverID != nil && *o.DriverID == driverID && o.DriverRating != nil && !o.IsDeleted {
			sum += *o.DriverRating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

// clone deep-copies the aggregate so callers never share slices or pointers
// with the stored copy.
func clone(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	cp.TrackingUpdates = append([]TrackingUpdate(nil), o.TrackingUpdates...)
	if o.DriverID != nil {
		d := *o.DriverID
		cp.DriverID = &d
	}
	if o.Cancellation != nil {
		c := *o.Cancellation
		cp.Cancellation = &c
	}
	if o.ActualDeliveryTime != nil {
		t := *o.ActualDeliveryTime
		cp.ActualDeliveryTime = &t
	}
	cp.Rating = cloneInt(o.Rating)
	cp.DriverRating = cloneInt(o.DriverRating)
	cp.VenueRating = cloneInt(o.VenueRating)
	return &cp
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

var _ Store = (*MemStore)(nil)
