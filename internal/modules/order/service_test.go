// README: Order service tests — creation, lifecycle flow, dispatch, webhooks, rating.
package order

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"nasta/internal/config"
	"nasta/internal/modules/fees"
	"nasta/internal/modules/location"
	"nasta/internal/modules/matching"
	"nasta/internal/modules/payment"
	"nasta/internal/modules/venue"
	"nasta/internal/types"
)

func testFeeConfig() fees.Config {
	return fees.Config{
		Base:                 5,
		DistanceRates:        []fees.DistanceTier{{MinDistance: 0, MaxDistance: 5, RatePerKm: 1}},
		SmallOrderThreshold:  15,
		SmallOrderFee:        2,
		ServiceFeePercentage: 10,
		HandlingFee:          1,
		Currency:             "USD",
	}
}

type env struct {
	store   *MemStore
	venues  *venue.MemStore
	drivers *matching.MemDriverStore
	geo     *location.MemGeoIndex
	gateway *payment.MockGateway
	svc     *Service
}

// newTestEnv wires the service against in-memory stores: one open venue at
// (40, -74) with a 10 km radius and one matchable driver "d1".
func newTestEnv(t *testing.T) *env {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := NewMemStore()
	venues := venue.NewMemStore()
	drivers := matching.NewMemDriverStore()
	geo := location.NewMemGeoIndex()
	matcher := matching.NewService(geo, drivers, config.MatchingConfig{DefaultRadiusKm: 10, MaxCandidates: 20}, log)

	venues.Put(&venue.Venue{
		ID:               "v1",
		Name:             "Test Kitchen",
		Location:         types.Point{Lat: 40, Lng: -74},
		DeliveryRadiusKm: 10,
		IsOpen:           true,
		FeeConfig:        testFeeConfig(),
	})
	drivers.Put(&matching.Driver{ID: "d1", Name: "Driver One", IsAvailable: true, IsOnDuty: true, Status: matching.DriverActive})

	gateway := payment.NewMockGateway()
	svc := NewService(ServiceDeps{
		Store:           store,
		Venues:          venues,
		Drivers:         matcher,
		Gateway:         gateway,
		Log:             log,
		TaxRate:         0.10,
		DefaultRadiusKm: 10,
	})
	return &env{store: store, venues: venues, drivers: drivers, geo: geo, gateway: gateway, svc: svc}
}

// A gateway outage aborts creation; nothing partial is persisted.
func TestCreateOrderGatewayFailure(t *testing.T) {
	e := newTestEnv(t)
	e.gateway.FailNext = true

	if _, err := e.svc.Create(context.Background(), createCmd()); !errors.Is(err, payment.ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
	if len(e.store.orders) != 0 {
		t.Errorf("orders persisted after gateway failure: %d", len(e.store.orders))
	}
}

// dropoff ~3.34 km north of the test venue, inside its radius.
var nearDropoff = types.Point{Lat: 40.03, Lng: -74}

func createCmd() CreateCommand {
	return CreateCommand{
		CustomerID:    "c1",
		VenueID:       "v1",
		Items:         []Item{{MenuItemID: "m1", Name: "Noodles", Quantity: 2, UnitPrice: 7.5}},
		Dropoff:       nearDropoff,
		PaymentMethod: "card",
	}
}

func mustCreate(t *testing.T, e *env) *Order {
	t.Helper()
	o, err := e.svc.Create(context.Background(), createCmd())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func (e *env) seed(t *testing.T, o *Order) *Order {
	t.Helper()
	if err := e.store.Create(context.Background(), o); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

func assertStatus(t *testing.T, e *env, id types.ID, want Status) {
	t.Helper()
	o, err := e.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.DeliveryStatus != want {
		t.Fatalf("status = %s, want %s", o.DeliveryStatus, want)
	}
}

func TestCreateOrder(t *testing.T) {
	e := newTestEnv(t)
	o := mustCreate(t, e)

	if o.DeliveryStatus != StatusPending {
		t.Errorf("status = %s, want pending", o.DeliveryStatus)
	}
	if o.PaymentStatus != PaymentPending {
		t.Errorf("payment status = %s, want pending", o.PaymentStatus)
	}
	if o.PaymentIntentID == "" {
		t.Error("expected a payment intent to be created")
	}
	if o.DistanceKm != 3.34 {
		t.Errorf("distanceKm = %v, want 3.34", o.DistanceKm)
	}
	// subtotal 15, fee 5+3.34+1.5+1 = 10.84, tax 1.5
	if o.Subtotal != 15 {
		t.Errorf("subtotal = %v, want 15", o.Subtotal)
	}
	if o.FeeBreakdown.Total != 10.84 {
		t.Errorf("fee total = %v, want 10.84", o.FeeBreakdown.Total)
	}
	if o.Tax != 1.5 {
		t.Errorf("tax = %v, want 1.5", o.Tax)
	}
	if o.TotalAmount != 27.34 {
		t.Errorf("total = %v, want 27.34", o.TotalAmount)
	}
	if len(o.TrackingUpdates) != 1 || o.TrackingUpdates[0].Status != StatusPending {
		t.Errorf("expected one pending tracking update, got %+v", o.TrackingUpdates)
	}
}

func TestCreateOrderRejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	cmd := createCmd()
	cmd.Items = nil
	if _, err := e.svc.Create(ctx, cmd); !errors.Is(err, ErrInvalidItems) {
		t.Errorf("no items: err = %v, want ErrInvalidItems", err)
	}

	cmd = createCmd()
	cmd.Items[0].Quantity = 0
	if _, err := e.svc.Create(ctx, cmd); !errors.Is(err, ErrInvalidItems) {
		t.Errorf("zero quantity: err = %v, want ErrInvalidItems", err)
	}

	cmd = createCmd()
	cmd.Dropoff = types.Point{Lat: 91, Lng: 0}
	if _, err := e.svc.Create(ctx, cmd); !errors.Is(err, ErrValidation) {
		t.Errorf("bad coordinates: err = %v, want ErrValidation", err)
	}

	cmd = createCmd()
	cmd.Tip = -1
	if _, err := e.svc.Create(ctx, cmd); !errors.Is(err, ErrValidation) {
		t.Errorf("negative tip: err = %v, want ErrValidation", err)
	}

	cmd = createCmd()
	cmd.VenueID = "nope"
	if _, err := e.svc.Create(ctx, cmd); !errors.Is(err, venue.ErrNotFound) {
		t.Errorf("unknown venue: err = %v, want venue.ErrNotFound", err)
	}

	e.venues.Put(&venue.Venue{ID: "v_closed", Location: types.Point{Lat: 40, Lng: -74}, DeliveryRadiusKm: 10, IsOpen: false, FeeConfig: testFeeConfig()})
	cmd = createCmd()
	cmd.VenueID = "v_closed"
	if _, err := e.svc.Create(ctx, cmd); !errors.Is(err, ErrVenueUnavailable) {
		t.Errorf("closed venue: err = %v, want ErrVenueUnavailable", err)
	}
}

// A drop-off ~13.3 km away from a venue with a 10 km radius is rejected.
func TestCreateOrderOutOfDeliveryRange(t *testing.T) {
	e := newTestEnv(t)
	cmd := createCmd()
	cmd.Dropoff = types.Point{Lat: 40.12, Lng: -74}
	if _, err := e.svc.Create(context.Background(), cmd); !errors.Is(err, ErrOutOfDeliveryRange) {
		t.Errorf("err = %v, want ErrOutOfDeliveryRange", err)
	}
}

func TestOrderLifecycleHappyPath(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := mustCreate(t, e)

	// Payment confirmation auto-advances pending -> preparing.
	o2, err := e.svc.ApplyPaymentEvent(ctx, o.ID, payment.EventPaymentSucceeded)
	if err != nil {
		t.Fatalf("payment succeeded: %v", err)
	}
	if o2.PaymentStatus != PaymentPaid || o2.DeliveryStatus != StatusPreparing {
		t.Fatalf("after payment: %s/%s, want paid/preparing", o2.PaymentStatus, o2.DeliveryStatus)
	}

	steps := []struct {
		to    Status
		actor Actor
	}{
		{StatusReady, Actor{RoleVenue, "v1"}},
		{StatusDispatched, Actor{RoleDriver, "d1"}}, // self-accept
		{StatusInTransit, Actor{RoleDriver, "d1"}},
		{StatusDelivered, Actor{RoleDriver, "d1"}},
	}
	for _, step := range steps {
		if _, err := e.svc.UpdateStatus(ctx, UpdateStatusCommand{OrderID: o.ID, Status: step.to, Actor: step.actor}); err != nil {
			t.Fatalf("transition to %s: %v", step.to, err)
		}
		assertStatus(t, e, o.ID, step.to)
	}

	final, err := e.svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.DriverID == nil || *final.DriverID != "d1" {
		t.Errorf("driverID = %v, want d1", final.DriverID)
	}
	if final.ActualDeliveryTime == nil {
		t.Error("expected actual delivery time to be set")
	}
	// one tracking entry per status plus the payment-confirmation transition
	if len(final.TrackingUpdates) != 6 {
		t.Errorf("tracking updates = %d, want 6", len(final.TrackingUpdates))
	}

	d, err := e.drivers.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsAvailable {
		t.Error("driver should be released after delivery")
	}
	if d.CompletedDeliveries != 1 {
		t.Errorf("completed deliveries = %d, want 1", d.CompletedDeliveries)
	}
}

// Venue staff cannot jump pending -> ready; the order must pass preparing.
func TestUpdateStatusSkipRejected(t *testing.T) {
	e := newTestEnv(t)
	o := mustCreate(t, e)

	_, err := e.svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: o.ID,
		Status:  StatusReady,
		Actor:   Actor{RoleVenue, "v1"},
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
	assertStatus(t, e, o.ID, StatusPending)
}

func TestUpdateStatusUnpaidRejected(t *testing.T) {
	e := newTestEnv(t)
	o := mustCreate(t, e)

	_, err := e.svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		OrderID: o.ID,
		Status:  StatusPreparing,
		Actor:   Actor{RoleVenue, "v1"},
	})
	if !errors.Is(err, ErrPaymentRequired) {
		t.Errorf("err = %v, want ErrPaymentRequired", err)
	}
}

func readyOrder(id, customer types.ID) *Order {
	return &Order{
		ID:              id,
		CustomerID:      customer,
		VenueID:         "v1",
		Items:           []Item{{MenuItemID: "m1", Name: "Noodles", Quantity: 1, UnitPrice: 10}},
		DropoffLocation: nearDropoff,
		PaymentStatus:   PaymentPaid,
		DeliveryStatus:  StatusReady,
	}
}

// One driver cannot hold two dispatched orders at once.
func TestAssignDriverExclusivity(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, readyOrder("oA", "c1"))
	e.seed(t, readyOrder("oB", "c2"))

	if _, err := e.svc.AssignDriver(ctx, AssignCommand{OrderID: "oA", DriverID: "d1", Actor: Actor{RoleVenue, "v1"}}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	assertStatus(t, e, "oA", StatusDispatched)

	_, err := e.svc.AssignDriver(ctx, AssignCommand{OrderID: "oB", DriverID: "d1", Actor: Actor{RoleVenue, "v1"}})
	if !errors.Is(err, matching.ErrDriverUnavailable) {
		t.Fatalf("second assign: err = %v, want ErrDriverUnavailable", err)
	}
	assertStatus(t, e, "oB", StatusReady)
}

func TestAssignDriverGuards(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// wrong venue
	e.seed(t, readyOrder("o1", "c1"))
	if _, err := e.svc.AssignDriver(ctx, AssignCommand{OrderID: "o1", DriverID: "d1", Actor: Actor{RoleVenue, "v2"}}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong venue: err = %v, want ErrUnauthorized", err)
	}

	// not ready yet
	pending := readyOrder("o2", "c1")
	pending.DeliveryStatus = StatusPreparing
	e.seed(t, pending)
	if _, err := e.svc.AssignDriver(ctx, AssignCommand{OrderID: "o2", DriverID: "d1", Actor: Actor{RoleVenue, "v1"}}); !errors.Is(err, ErrOrderNotReady) {
		t.Errorf("not ready: err = %v, want ErrOrderNotReady", err)
	}

	// unpaid
	unpaid := readyOrder("o3", "c1")
	unpaid.PaymentStatus = PaymentPending
	e.seed(t, unpaid)
	if _, err := e.svc.AssignDriver(ctx, AssignCommand{OrderID: "o3", DriverID: "d1", Actor: Actor{RoleVenue, "v1"}}); !errors.Is(err, ErrPaymentRequired) {
		t.Errorf("unpaid: err = %v, want ErrPaymentRequired", err)
	}
}

// Dispatch always goes through a driver: either self-accept or an explicit
// AssignDriver. A system caller must not be able to push a ready order to
// dispatched via UpdateStatus, which would commit it with no driver assigned.
func TestSystemCannotDispatchWithoutDriver(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seed(t, readyOrder("o1", "c1"))

	_, err := e.svc.UpdateStatus(ctx, UpdateStatusCommand{
		OrderID: "o1",
		Status:  StatusDispatched,
		Actor:   System,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	got, err := e.svc.Get(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if got.DeliveryStatus != StatusReady || got.DriverID != nil {
		t.Errorf("order = %s/driver %v, want ready with no driver", got.DeliveryStatus, got.DriverID)
	}

	// the system path to dispatch is AssignDriver with an explicit driver
	o, err := e.svc.AssignDriver(ctx, AssignCommand{OrderID: "o1", DriverID: "d1", Actor: System})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if o.DeliveryStatus != StatusDispatched || o.DriverID == nil || *o.DriverID != "d1" {
		t.Errorf("after assign: %s/driver %v, want dispatched/d1", o.DeliveryStatus, o.DriverID)
	}
}

func TestFindNearbyDrivers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := e.seed(t, readyOrder("o1", "c1"))

	if err := e.geo.SetGeo(ctx, "d1", types.Point{Lat: 40.031, Lng: -74}); err != nil {
		t.Fatal(err)
	}
	// off-duty driver in range must be filtered out
	e.drivers.Put(&matching.Driver{ID: "d2", IsAvailable: true, IsOnDuty: false, Status: matching.DriverActive})
	if err := e.geo.SetGeo(ctx, "d2", types.Point{Lat: 40.032, Lng: -74}); err != nil {
		t.Fatal(err)
	}

	candidates, err := e.svc.FindNearbyDrivers(ctx, o.ID, 0)
	if err != nil {
		t.Fatalf("find nearby: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Driver.ID != "d1" {
		t.Fatalf("candidates = %+v, want just d1", candidates)
	}
}

// A delivered order can no longer be cancelled.
func TestCancelDeliveredRejected(t *testing.T) {
	e := newTestEnv(t)
	delivered := readyOrder("o1", "c1")
	delivered.DeliveryStatus = StatusDelivered
	e.seed(t, delivered)

	_, err := e.svc.Cancel(context.Background(), CancelCommand{
		OrderID: "o1",
		Actor:   Actor{RoleCustomer, "c1"},
		Reason:  "changed my mind",
	})
	if !errors.Is(err, ErrNotCancellable) {
		t.Errorf("err = %v, want ErrNotCancellable", err)
	}
}

func TestCancelRecordsCancellation(t *testing.T) {
	e := newTestEnv(t)
	preparing := readyOrder("o1", "c1")
	preparing.DeliveryStatus = StatusPreparing
	e.seed(t, preparing)

	o, err := e.svc.Cancel(context.Background(), CancelCommand{
		OrderID: "o1",
		Actor:   Actor{RoleCustomer, "c1"},
		Reason:  "too slow",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.DeliveryStatus != StatusFailed {
		t.Errorf("status = %s, want failed", o.DeliveryStatus)
	}
	if o.Cancellation == nil || o.Cancellation.Reason != "too slow" || o.Cancellation.CancelledBy != RoleCustomer {
		t.Errorf("cancellation = %+v", o.Cancellation)
	}
}

func TestApplyPaymentEventIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := mustCreate(t, e)

	first, err := e.svc.ApplyPaymentEvent(ctx, o.ID, payment.EventPaymentSucceeded)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	second, err := e.svc.ApplyPaymentEvent(ctx, o.ID, payment.EventPaymentSucceeded)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if second.DeliveryStatus != first.DeliveryStatus || second.PaymentStatus != first.PaymentStatus {
		t.Errorf("redelivery changed state: %+v vs %+v", second, first)
	}
	if len(second.TrackingUpdates) != len(first.TrackingUpdates) {
		t.Errorf("redelivery appended tracking updates: %d vs %d", len(second.TrackingUpdates), len(first.TrackingUpdates))
	}
}

func TestApplyPaymentEventFailureFailsOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	o := mustCreate(t, e)

	got, err := e.svc.ApplyPaymentEvent(ctx, o.ID, payment.EventPaymentFailed)
	if err != nil {
		t.Fatalf("payment failed event: %v", err)
	}
	if got.PaymentStatus != PaymentFailed || got.DeliveryStatus != StatusFailed {
		t.Errorf("got %s/%s, want failed/failed", got.PaymentStatus, got.DeliveryStatus)
	}
	if got.Cancellation == nil || got.Cancellation.CancelledBy != RoleSystem {
		t.Errorf("cancellation = %+v, want system cancellation", got.Cancellation)
	}
}

func TestApplyPaymentEventRefund(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	preparing := readyOrder("o1", "c1")
	preparing.DeliveryStatus = StatusPreparing
	e.seed(t, preparing)

	got, err := e.svc.ApplyPaymentEvent(ctx, "o1", payment.EventChargeRefunded)
	if err != nil {
		t.Fatalf("refund event: %v", err)
	}
	if got.PaymentStatus != PaymentRefunded || got.DeliveryStatus != StatusFailed {
		t.Errorf("got %s/%s, want refunded/failed", got.PaymentStatus, got.DeliveryStatus)
	}
}

// A payment confirmation for an order already past pending only flips the
// payment status; the delivery status is untouched.
func TestApplyPaymentEventAfterTerminal(t *testing.T) {
	e := newTestEnv(t)
	delivered := readyOrder("o1", "c1")
	delivered.DeliveryStatus = StatusDelivered
	delivered.PaymentStatus = PaymentPending
	e.seed(t, delivered)

	got, err := e.svc.ApplyPaymentEvent(context.Background(), "o1", payment.EventPaymentSucceeded)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.DeliveryStatus != StatusDelivered || got.PaymentStatus != PaymentPaid {
		t.Errorf("got %s/%s, want delivered/paid", got.DeliveryStatus, got.PaymentStatus)
	}
}

func TestApplyPaymentEventUnknownType(t *testing.T) {
	e := newTestEnv(t)
	o := mustCreate(t, e)
	if _, err := e.svc.ApplyPaymentEvent(context.Background(), o.ID, payment.EventType("charge.disputed")); !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func intPtr(v int) *int { return &v }

func TestRate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	driverID := types.ID("d1")
	delivered := readyOrder("o1", "c1")
	delivered.DeliveryStatus = StatusDelivered
	delivered.DriverID = &driverID
	e.seed(t, delivered)

	o, err := e.svc.Rate(ctx, RateCommand{
		OrderID:      "o1",
		CustomerID:   "c1",
		Rating:       5,
		DriverRating: intPtr(4),
		VenueRating:  intPtr(3),
	})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if o.Rating == nil || *o.Rating != 5 {
		t.Errorf("rating = %v, want 5", o.Rating)
	}

	v, err := e.venues.Get(ctx, "v1")
	if err != nil {
		t.Fatal(err)
	}
	if v.AverageRating != 3 || v.RatingCount != 1 {
		t.Errorf("venue rating = %v/%d, want 3/1", v.AverageRating, v.RatingCount)
	}
	d, err := e.drivers.Get(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if d.AverageRating != 4 || d.RatingCount != 1 {
		t.Errorf("driver rating = %v/%d, want 4/1", d.AverageRating, d.RatingCount)
	}

	// ratings are write-once
	if _, err := e.svc.Rate(ctx, RateCommand{OrderID: "o1", CustomerID: "c1", Rating: 2}); !errors.Is(err, ErrAlreadyRated) {
		t.Errorf("second rate: err = %v, want ErrAlreadyRated", err)
	}
}

func TestRateRejections(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	delivered := readyOrder("o1", "c1")
	delivered.DeliveryStatus = StatusDelivered
	e.seed(t, delivered)
	inTransit := readyOrder("o2", "c1")
	inTransit.DeliveryStatus = StatusInTransit
	e.seed(t, inTransit)

	if _, err := e.svc.Rate(ctx, RateCommand{OrderID: "o1", CustomerID: "c1", Rating: 6}); !errors.Is(err, ErrValidation) {
		t.Errorf("rating 6: err = %v, want ErrValidation", err)
	}
	if _, err := e.svc.Rate(ctx, RateCommand{OrderID: "o1", CustomerID: "c2", Rating: 5}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong customer: err = %v, want ErrUnauthorized", err)
	}
	if _, err := e.svc.Rate(ctx, RateCommand{OrderID: "o2", CustomerID: "c1", Rating: 5}); !errors.Is(err, ErrNotDelivered) {
		t.Errorf("not delivered: err = %v, want ErrNotDelivered", err)
	}
}

func TestGetSoftDeletedHidden(t *testing.T) {
	e := newTestEnv(t)
	gone := readyOrder("o1", "c1")
	gone.IsDeleted = true
	e.seed(t, gone)

	if _, err := e.svc.Get(context.Background(), "o1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
