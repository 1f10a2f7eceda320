// README: In-memory GEO index with the same contract as the Redis-backed store.
package location

import (
	"context"
	"sync"

	"nasta/internal/types"
)

// MemGeoIndex is a mutex-guarded spatial index used by unit tests and the
// in-memory dev mode. Nearby does a linear haversine scan, which is fine for
// the candidate counts a single venue sees.
type MemGeoIndex struct {
	mu        sync.RWMutex
	positions map[types.ID]types.Point
}

func NewMemGeoIndex() *MemGeoIndex {
	return &MemGeoIndex{positions: make(map[types.ID]types.Point)}
}

func (m *MemGeoIndex) SetGeo(_ context.Context, driverID types.ID, pos types.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[driverID] = pos
	return nil
}

func (m *MemGeoIndex) RemoveGeo(_ context.Context, driverID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, driverID)
	return nil
}

func (m *MemGeoIndex) Nearby(_ context.Context, p types.Point, radiusKm float64) ([]NearbyID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []NearbyID
	for id, pos := range m.positions {
		d := HaversineKm(p, pos)
		if d <= radiusKm {
			out = append(out, NearbyID{ID: id, DistanceKm: d})
		}
	}
	SortByDistance(out, func(n NearbyID) float64 { return n.DistanceKm })
	return out, nil
}
