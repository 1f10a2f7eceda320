// README: Order store backed by PostgreSQL; updates are version-guarded (optimistic concurrency).
package order

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nasta/internal/types"
)

var ErrNotFound = errors.New("order not found")

// Store is the order persistence contract. Update applies the whole mutable
// aggregate conditionally on the version the caller loaded; false means the
// order changed underneath and the caller should re-read and retry.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	Update(ctx context.Context, o *Order) (bool, error)
	// VenueRatingStats recomputes the mean venue rating over all rated,
	// non-deleted orders for the venue.
	VenueRatingStats(ctx context.Context, venueID types.ID) (avg float64, count int, err error)
	DriverRatingStats(ctx context.Context, driverID types.ID) (avg float64, count int, err error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	fee, err := json.Marshal(o.FeeBreakdown)
	if err != nil {
		return err
	}
	tracking, err := json.Marshal(o.TrackingUpdates)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        INSERT INTO orders (
            id, customer_id, venue_id, driver_id, items,
            dropoff_lat, dropoff_lng, dropoff_address, distance_km,
            subtotal, tax, tip, discount, fee_breakdown, total_amount,
            payment_method, payment_status, delivery_status,
            tracking_updates, is_deleted, created_at, updated_at, version
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9,
            $10, $11, $12, $13, $14, $15,
            $16, $17, $18,
            $19, $20, $21, $22, $23
        )`,
		string(o.ID), string(o.CustomerID), string(o.VenueID), idPtr(o.DriverID), items,
		o.DropoffLocation.Lat, o.DropoffLocation.Lng, o.DropoffAddress, o.DistanceKm,
		o.Subtotal, o.Tax, o.Tip, o.Discount, fee, o.TotalAmount,
		o.PaymentMethod, string(o.PaymentStatus), string(o.DeliveryStatus),
		tracking, o.IsDeleted, o.CreatedAt, o.UpdatedAt, o.Version,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, customer_id, venue_id, driver_id, items,
               dropoff_lat, dropoff_lng, dropoff_address, distance_km,
               subtotal, tax, tip, discount, fee_breakdown, total_amount,
               payment_method, payment_status, delivery_status,
               tracking_updates, cancellation, actual_delivery_time,
               rating, driver_rating, venue_rating,
               is_deleted, created_at, updated_at, version
        FROM orders
        WHERE id = $1`, string(id),
	)

	var o Order
	var driverID *string
	var items, fee, tracking, cancellation []byte
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.VenueID, &driverID, &items,
		&o.DropoffLocation.Lat, &o.DropoffLocation.Lng, &o.DropoffAddress, &o.DistanceKm,
		&o.Subtotal, &o.Tax, &o.Tip, &o.Discount, &fee, &o.TotalAmount,
		&o.PaymentMethod, &o.PaymentStatus, &o.DeliveryStatus,
		&tracking, &cancellation, &o.ActualDeliveryTime,
		&o.Rating, &o.DriverRating, &o.VenueRating,
		&o.IsDeleted, &o.CreatedAt, &o.UpdatedAt, &o.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID != nil {
		d := types.ID(*driverID)
		o.DriverID = &d
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	if len(fee) > 0 {
		if err := json.Unmarshal(fee, &o.FeeBreakdown); err != nil {
			return nil, err
		}
	}
	if len(tracking) > 0 {
		if err := json.Unmarshal(tracking, &o.TrackingUpdates); err != nil {
			return nil, err
		}
	}
	if len(cancellation) > 0 {
		var c Cancellation
		if err := json.Unmarshal(cancellation, &c); err != nil {
			return nil, err
		}
		o.Cancellation = &c
	}
	return &o, nil
}

// Update writes all mutable fields conditionally on the loaded version and
// bumps the version counter. On success the in-memory order is advanced to
// the stored version.
func (s *PGStore) Update(ctx context.Context, o *Order) (bool, error) {
	fee, err := json.Marshal(o.FeeBreakdown)
	if err != nil {
		return false, err
	}
	tracking, err := json.Marshal(o.TrackingUpdates)
	if err != nil {
		return false, err
	}
	var cancellation []byte
	if o.Cancellation != nil {
		if cancellation, err = json.Marshal(o.Cancellation); err != nil {
			return false, err
		}
	}

	now := time.Now()
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET driver_id = $1,
            fee_breakdown = $2,
            tip = $3,
            discount = $4,
            subtotal = $5,
            tax = $6,
            total_amount = $7,
            payment_status = $8,
            delivery_status = $9,
            tracking_updates = $10,
            cancellation = $11,
            actual_delivery_time = $12,
            rating = $13,
            driver_rating = $14,
            venue_rating = $15,
            is_deleted = $16,
            updated_at = $17,
            version = version + 1
        WHERE id = $18 AND version = $19`,
		idPtr(o.DriverID), fee, o.Tip, o.Discount, o.Subtotal, o.Tax, o.TotalAmount,
		string(o.PaymentStatus), string(o.DeliveryStatus),
		tracking, cancellation, o.ActualDeliveryTime,
		o.Rating, o.DriverRating, o.VenueRating,
		o.IsDeleted, now,
		string(o.ID), o.Version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	o.Version++
	o.UpdatedAt = now
	return true, nil
}

func (s *PGStore) VenueRatingStats(ctx context.Context, venueID types.ID) (float64, int, error) {
	return s.ratingStats(ctx, `
        SELECT COALESCE(AVG(venue_rating), 0), COUNT(venue_rating)
        FROM orders
        WHERE venue_id = $1 AND venue_rating IS NOT NULL AND NOT is_deleted`, string(venueID))
}

func (s *PGStore) DriverRatingStats(ctx context.Context, driverID types.ID) (float64, int, error) {
	return s.ratingStats(ctx, `
        SELECT COALESCE(AVG(driver_rating), 0), COUNT(driver_rating)
        FROM orders
        WHERE driver_id = $1 AND driver_rating IS NOT NULL AND NOT is_deleted`, string(driverID))
}

func (s *PGStore) ratingStats(ctx context.Context, query, id string) (float64, int, error) {
	var avg float64
	var count int
	if err := s.db.QueryRow(ctx, query, id).Scan(&avg, &count); err != nil {
		return 0, 0, err
	}
	return avg, count, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

var _ Store = (*PGStore)(nil)
