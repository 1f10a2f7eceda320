// README: GEO index read path — nearest-first driver candidates.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"nasta/internal/types"
)

// NearbyID is one GEO index hit with its distance from the search origin.
type NearbyID struct {
	ID         types.ID
	DistanceKm float64
}

// Nearby returns driver IDs within radiusKm of p, ordered nearest-first.
// Distances are rounded to 2 decimal places.
func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyID, error) {
	results, err := s.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyID, len(results))
	for i, r := range results {
		out[i] = NearbyID{ID: types.ID(r.Name), DistanceKm: Round2(r.Dist)}
	}
	return out, nil
}
