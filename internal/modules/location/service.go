// README: Location service handles high-frequency driver pings with periodic snapshot flushing.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"nasta/internal/types"
)

var ErrInvalidCoordinates = errors.New("coordinates out of range")

// GeoWriter is the live-index write path. *Store and *MemGeoIndex both satisfy it.
type GeoWriter interface {
	SetGeo(ctx context.Context, driverID types.ID, pos types.Point) error
	RemoveGeo(ctx context.Context, driverID types.ID) error
}

// SnapshotAppender persists periodic position snapshots for audit replay.
type SnapshotAppender interface {
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

type Service struct {
	geo       GeoWriter
	snapshots SnapshotAppender
	log       *logrus.Logger

	mu      sync.Mutex
	pending map[types.ID]types.Point
}

func NewService(geo GeoWriter, snapshots SnapshotAppender, log *logrus.Logger) *Service {
	return &Service{
		geo:       geo,
		snapshots: snapshots,
		log:       log,
		pending:   make(map[types.ID]types.Point),
	}
}

type Ping struct {
	DriverID types.ID
	Position types.Point
}

// RecordPing updates the live GEO index and remembers the latest position for
// the next snapshot flush. Only the most recent ping per driver is flushed.
func (s *Service) RecordPing(ctx context.Context, p Ping) error {
	if p.DriverID == "" || !p.Position.Valid() {
		return ErrInvalidCoordinates
	}
	if err := s.geo.SetGeo(ctx, p.DriverID, p.Position); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending[p.DriverID] = p.Position
	s.mu.Unlock()
	return nil
}

// Remove drops a driver from the live index when they go off duty.
func (s *Service) Remove(ctx context.Context, driverID types.ID) error {
	return s.geo.RemoveGeo(ctx, driverID)
}

// FlushSnapshots writes the latest buffered position per driver to Postgres.
func (s *Service) FlushSnapshots(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[types.ID]types.Point)
	s.mu.Unlock()

	now := time.Now()
	for id, pos := range batch {
		snap := Snapshot{DriverID: id, Position: pos, RecordedAt: now}
		if err := s.snapshots.AppendSnapshot(ctx, snap); err != nil {
			s.log.WithError(err).WithField("driver_id", id).Warn("location snapshot flush failed")
		}
	}
}

// RunSnapshotFlusher flushes buffered positions on the given interval until
// the context is cancelled.
func (s *Service) RunSnapshotFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushSnapshots(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			s.FlushSnapshots(ctx)
		}
	}
}
