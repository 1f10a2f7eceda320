// README: Driver store backed by PostgreSQL; Acquire is a compare-and-swap on availability.
package matching

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nasta/internal/types"
)

var ErrDriverNotFound = errors.New("driver not found")

// DriverStore is the persistence contract for driver availability and stats.
type DriverStore interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	ListByIDs(ctx context.Context, ids []types.ID) ([]Driver, error)
	// TryAcquire flips is_available true->false for a matchable driver.
	// It reports false when the driver is busy, off duty or not active —
	// the conditional write is what makes assignment exclusive.
	TryAcquire(ctx context.Context, id types.ID) (bool, error)
	// Release makes the driver available again; completed also bumps the
	// completed-delivery counter.
	Release(ctx context.Context, id types.ID, completed bool) error
	// SetDuty toggles on-duty state. Going off duty also clears availability
	// so the driver cannot be acquired mid-shift-end.
	SetDuty(ctx context.Context, id types.ID, onDuty bool) error
	UpdateRating(ctx context.Context, id types.ID, average float64, count int) error
}

type PGDriverStore struct {
	db *pgxpool.Pool
}

func NewPGDriverStore(db *pgxpool.Pool) *PGDriverStore {
	return &PGDriverStore{db: db}
}

const driverColumns = `id, name, lat, lng, is_available, is_on_duty, status,
       max_delivery_radius_km, completed_deliveries, average_rating, rating_count`

func (s *PGDriverStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDriverNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PGDriverStore) ListByIDs(ctx context.Context, ids []types.ID) ([]Driver, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PGDriverStore) TryAcquire(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE drivers
        SET is_available = FALSE
        WHERE id = $1 AND is_available AND is_on_duty AND status = 'active'`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGDriverStore) Release(ctx context.Context, id types.ID, completed bool) error {
	_, err := s.db.Exec(ctx, `
        UPDATE drivers
        SET is_available = TRUE,
            completed_deliveries = completed_deliveries + CASE WHEN $2 THEN 1 ELSE 0 END
        WHERE id = $1`,
		string(id), completed,
	)
	return err
}

func (s *PGDriverStore) SetDuty(ctx context.Context, id types.ID, onDuty bool) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE drivers
        SET is_on_duty = $2,
            is_available = CASE WHEN $2 THEN is_available ELSE FALSE END
        WHERE id = $1`,
		string(id), onDuty,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

func (s *PGDriverStore) UpdateRating(ctx context.Context, id types.ID, average float64, count int) error {
	_, err := s.db.Exec(ctx, `
        UPDATE drivers SET average_rating = $1, rating_count = $2 WHERE id = $3`,
		average, count, string(id),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*Driver, error) {
	var d Driver
	err := row.Scan(
		&d.ID, &d.Name, &d.CurrentLocation.Lat, &d.CurrentLocation.Lng,
		&d.IsAvailable, &d.IsOnDuty, &d.Status,
		&d.MaxDeliveryRadiusKm, &d.CompletedDeliveries, &d.AverageRating, &d.RatingCount,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

var _ DriverStore = (*PGDriverStore)(nil)
