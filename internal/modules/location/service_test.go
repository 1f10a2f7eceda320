// README: Location service tests — ping validation, live index updates, snapshot flushing.
package location

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"nasta/internal/types"
)

type captureAppender struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (c *captureAppender) AppendSnapshot(_ context.Context, snap Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, snap)
	return nil
}

func newLocationService() (*Service, *MemGeoIndex, *captureAppender) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	geo := NewMemGeoIndex()
	snaps := &captureAppender{}
	return NewService(geo, snaps, log), geo, snaps
}

func TestRecordPingUpdatesIndex(t *testing.T) {
	ctx := context.Background()
	svc, geo, _ := newLocationService()

	err := svc.RecordPing(ctx, Ping{DriverID: "d1", Position: types.Point{Lat: 40, Lng: -74}})
	if err != nil {
		t.Fatalf("record ping: %v", err)
	}

	hits, err := geo.Nearby(ctx, types.Point{Lat: 40, Lng: -74}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "d1" {
		t.Fatalf("hits = %+v, want d1", hits)
	}
}

func TestRecordPingRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newLocationService()

	cases := []Ping{
		{DriverID: "", Position: types.Point{Lat: 40, Lng: -74}},
		{DriverID: "d1", Position: types.Point{Lat: 91, Lng: 0}},
		{DriverID: "d1", Position: types.Point{Lat: 0, Lng: -181}},
	}
	for _, p := range cases {
		if err := svc.RecordPing(ctx, p); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("RecordPing(%+v): err = %v, want ErrInvalidCoordinates", p, err)
		}
	}
}

// Only the latest position per driver reaches the snapshot table.
func TestFlushSnapshotsKeepsLatest(t *testing.T) {
	ctx := context.Background()
	svc, _, snaps := newLocationService()

	positions := []types.Point{
		{Lat: 40.00, Lng: -74},
		{Lat: 40.01, Lng: -74},
		{Lat: 40.02, Lng: -74},
	}
	for _, p := range positions {
		if err := svc.RecordPing(ctx, Ping{DriverID: "d1", Position: p}); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.RecordPing(ctx, Ping{DriverID: "d2", Position: types.Point{Lat: 41, Lng: -74}}); err != nil {
		t.Fatal(err)
	}

	svc.FlushSnapshots(ctx)
	if len(snaps.snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2 (latest per driver)", len(snaps.snaps))
	}
	for _, s := range snaps.snaps {
		if s.DriverID == "d1" && s.Position != positions[len(positions)-1] {
			t.Errorf("d1 snapshot = %+v, want latest position", s.Position)
		}
	}

	// buffer is drained; a second flush writes nothing
	svc.FlushSnapshots(ctx)
	if len(snaps.snaps) != 2 {
		t.Fatalf("second flush appended snapshots: %d", len(snaps.snaps))
	}
}

func TestRemoveDropsDriverFromIndex(t *testing.T) {
	ctx := context.Background()
	svc, geo, _ := newLocationService()

	if err := svc.RecordPing(ctx, Ping{DriverID: "d1", Position: types.Point{Lat: 40, Lng: -74}}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Remove(ctx, "d1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	hits, err := geo.Nearby(ctx, types.Point{Lat: 40, Lng: -74}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits = %+v, want none", hits)
	}
}
