// README: Driver matcher — GEO search filtered to matchable drivers, plus exclusive acquire/release.
package matching

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"nasta/internal/config"
	"nasta/internal/modules/location"
	"nasta/internal/types"
)

var ErrDriverUnavailable = errors.New("driver unavailable")

// GeoIndex is the spatial read path. The Redis-backed location store and the
// in-memory index both satisfy it; candidate positions may be a few seconds
// stale, which matching tolerates.
type GeoIndex interface {
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]location.NearbyID, error)
}

type Service struct {
	geo     GeoIndex
	drivers DriverStore
	cfg     config.MatchingConfig
	log     *logrus.Logger
}

func NewService(geo GeoIndex, drivers DriverStore, cfg config.MatchingConfig, log *logrus.Logger) *Service {
	return &Service{geo: geo, drivers: drivers, cfg: cfg, log: log}
}

// FindNearby returns matchable drivers within radiusKm of p, nearest first.
// The GEO index may contain drivers that went busy or off duty since their
// last ping, so hits are re-checked against the driver store.
func (s *Service) FindNearby(ctx context.Context, p types.Point, radiusKm float64) ([]Candidate, error) {
	if radiusKm <= 0 {
		radiusKm = s.cfg.DefaultRadiusKm
	}
	hits, err := s.geo.Nearby(ctx, p, radiusKm)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]types.ID, len(hits))
	distance := make(map[types.ID]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		distance[h.ID] = h.DistanceKm
	}
	drivers, err := s.drivers.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[types.ID]Driver, len(drivers))
	for _, d := range drivers {
		byID[d.ID] = d
	}

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		d, ok := byID[h.ID]
		if !ok || !d.Matchable() {
			continue
		}
		if d.MaxDeliveryRadiusKm > 0 && h.DistanceKm > d.MaxDeliveryRadiusKm {
			continue
		}
		out = append(out, Candidate{Driver: d, DistanceKm: distance[h.ID]})
		if s.cfg.MaxCandidates > 0 && len(out) == s.cfg.MaxCandidates {
			break
		}
	}
	return out, nil
}

// Acquire exclusively reserves a driver for one assignment. At most one
// caller wins the compare-and-swap; everyone else gets ErrDriverUnavailable.
func (s *Service) Acquire(ctx context.Context, driverID types.ID) error {
	ok, err := s.drivers.TryAcquire(ctx, driverID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDriverUnavailable
	}
	return nil
}

// Release frees a reserved driver; completed also counts the delivery.
func (s *Service) Release(ctx context.Context, driverID types.ID, completed bool) error {
	if err := s.drivers.Release(ctx, driverID, completed); err != nil {
		s.log.WithError(err).WithField("driver_id", driverID).Error("driver release failed")
		return err
	}
	return nil
}

// SetDuty flips a driver's shift state. Off duty also revokes availability.
func (s *Service) SetDuty(ctx context.Context, driverID types.ID, onDuty bool) error {
	return s.drivers.SetDuty(ctx, driverID, onDuty)
}

// UpdateRating overwrites the driver's running average after a recompute pass.
func (s *Service) UpdateRating(ctx context.Context, driverID types.ID, average float64, count int) error {
	return s.drivers.UpdateRating(ctx, driverID, average, count)
}
