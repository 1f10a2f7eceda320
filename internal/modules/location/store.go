// README: Location store — Redis GEO for live positions, Postgres for snapshots.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"nasta/internal/types"
)

const driverGeoKey = "nasta:drivers:geo"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

// SetGeo upserts the driver's live position in the GEO index. Positions are
// eventually consistent; matching tolerates a few seconds of staleness.
func (s *Store) SetGeo(ctx context.Context, driverID types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

// RemoveGeo drops the driver from the GEO index (off duty, suspended).
func (s *Store) RemoveGeo(ctx context.Context, driverID types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(driverID)).Err()
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO driver_location_snapshots (driver_id, lat, lng, recorded_at)
        VALUES ($1, $2, $3, $4)`,
		string(snap.DriverID),
		snap.Position.Lat, snap.Position.Lng,
		snap.RecordedAt,
	)
	return err
}
