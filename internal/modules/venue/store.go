// README: Venue store backed by PostgreSQL; fee config is stored as JSONB.
package venue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nasta/internal/types"
)

var ErrNotFound = errors.New("venue not found")

// Store is the venue read/rating contract the order engine depends on.
type Store interface {
	Get(ctx context.Context, id types.ID) (*Venue, error)
	// UpdateRating overwrites the venue's running average after a recompute.
	UpdateRating(ctx context.Context, id types.ID, average float64, count int) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Venue, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, business_id, name, lat, lng, delivery_radius_km, is_open,
               average_rating, rating_count, fee_config
        FROM venues
        WHERE id = $1`, string(id),
	)

	var v Venue
	var feeConfig []byte
	err := row.Scan(
		&v.ID, &v.BusinessID, &v.Name, &v.Location.Lat, &v.Location.Lng,
		&v.DeliveryRadiusKm, &v.IsOpen, &v.AverageRating, &v.RatingCount, &feeConfig,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(feeConfig) > 0 {
		if err := json.Unmarshal(feeConfig, &v.FeeConfig); err != nil {
			return nil, err
		}
	}
	if v.FeeConfig.Currency == "" {
		v.FeeConfig.Currency = "USD"
	}
	return &v, nil
}

func (s *PGStore) UpdateRating(ctx context.Context, id types.ID, average float64, count int) error {
	_, err := s.db.Exec(ctx, `
        UPDATE venues SET average_rating = $1, rating_count = $2 WHERE id = $3`,
		average, count, string(id),
	)
	return err
}

var _ Store = (*PGStore)(nil)
