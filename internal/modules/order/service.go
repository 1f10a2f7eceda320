// README: Order aggregate — creation, status updates, dispatch, cancellation, rating, webhooks.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nasta/internal/metrics"
	"nasta/internal/modules/fees"
	"nasta/internal/modules/location"
	"nasta/internal/modules/matching"
	"nasta/internal/modules/payment"
	"nasta/internal/modules/venue"
	"nasta/internal/types"
)

var (
	ErrConcurrentModification = errors.New("order modified concurrently")
	ErrOutOfDeliveryRange     = errors.New("dropoff outside venue delivery radius")
	ErrVenueUnavailable       = errors.New("venue unavailable")
	ErrOrderNotReady          = errors.New("order not ready for dispatch")
	ErrNotCancellable         = errors.New("order not cancellable")
	ErrNotDelivered           = errors.New("order not delivered")
	ErrAlreadyRated           = errors.New("order already rated")
)

// externalCallTimeout bounds geocoding and payment-gateway calls made during
// order creation, so a slow collaborator fails the request cleanly instead of
// hanging it.
const externalCallTimeout = 3 * time.Second

// Drivers is the slice of the matching service the aggregate needs.
type Drivers interface {
	FindNearby(ctx context.Context, p types.Point, radiusKm float64) ([]matching.Candidate, error)
	Acquire(ctx context.Context, driverID types.ID) error
	Release(ctx context.Context, driverID types.ID, completed bool) error
	UpdateRating(ctx context.Context, driverID types.ID, average float64, count int) error
}

// Geocoder resolves coordinates to a postal address. Nil disables the lookup.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p types.Point) (string, error)
}

type Service struct {
	store    Store
	venues   venue.Store
	drivers  Drivers
	gateway  payment.Gateway
	geocoder Geocoder
	pub      Publisher
	met      *metrics.Metrics
	log      *logrus.Logger

	taxRate         float64
	defaultRadiusKm float64
}

type ServiceDeps struct {
	Store    Store
	Venues   venue.Store
	Drivers  Drivers
	Gateway  payment.Gateway
	Geocoder Geocoder
	Pub      Publisher
	Metrics  *metrics.Metrics
	Log      *logrus.Logger

	TaxRate         float64
	DefaultRadiusKm float64
}

func NewService(deps ServiceDeps) *Service {
	log := deps.Log
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		store:           deps.Store,
		venues:          deps.Venues,
		drivers:         deps.Drivers,
		gateway:         deps.Gateway,
		geocoder:        deps.Geocoder,
		pub:             deps.Pub,
		met:             deps.Metrics,
		log:             log,
		taxRate:         deps.TaxRate,
		defaultRadiusKm: deps.DefaultRadiusKm,
	}
}

type CreateCommand struct {
	CustomerID    types.ID
	VenueID       types.ID
	Items         []Item
	Dropoff       types.Point
	Tip           float64
	PaymentMethod string
}

// Create validates the request, prices it and persists the pending order.
// External collaborator failures abort the creation; nothing partial is
// written.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.CustomerID == "" || cmd.VenueID == "" || cmd.PaymentMethod == "" {
		return nil, ErrValidation
	}
	if !cmd.Dropoff.Valid() {
		return nil, fmt.Errorf("%w: dropoff coordinates", ErrValidation)
	}
	if cmd.Tip < 0 {
		return nil, fmt.Errorf("%w: negative tip", ErrValidation)
	}
	if err := ValidateItems(cmd.Items); err != nil {
		return nil, err
	}

	v, err := s.venues.Get(ctx, cmd.VenueID)
	if err != nil {
		return nil, err
	}
	if !v.IsOpen {
		return nil, ErrVenueUnavailable
	}

	distanceKm := location.HaversineKm(v.Location, cmd.Dropoff)
	radius := v.DeliveryRadiusKm
	if radius <= 0 {
		radius = s.defaultRadiusKm
	}
	if distanceKm > radius {
		return nil, ErrOutOfDeliveryRange
	}

	now := time.Now()
	o := &Order{
		ID:              types.ID(uuid.NewString()),
		CustomerID:      cmd.CustomerID,
		VenueID:         cmd.VenueID,
		Items:           cmd.Items,
		DropoffLocation: cmd.Dropoff,
		DistanceKm:      distanceKm,
		Tip:             cmd.Tip,
		FeeBreakdown:    fees.Calculate(v.FeeConfig, distanceKm, fees.Clock(now), ItemsSubtotal(cmd.Items)),
		PaymentMethod:   cmd.PaymentMethod,
		PaymentStatus:   PaymentPending,
		DeliveryStatus:  StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}
	o.RecomputeTotals(s.taxRate)
	o.TrackingUpdates = []TrackingUpdate{{
		Status:    StatusPending,
		ActorRole: RoleCustomer,
		Timestamp: now,
	}}

	if s.geocoder != nil {
		callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
		addr, err := s.geocoder.ReverseGeocode(callCtx, cmd.Dropoff)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("reverse geocode: %w", err)
		}
		o.DropoffAddress = addr
	}

	if s.gateway != nil {
		callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
		intent, err := s.gateway.CreateIntent(callCtx, o.ID, o.TotalAmount, o.FeeBreakdown.Currency)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("create payment intent: %w", err)
		}
		o.PaymentIntentID = intent.ID
	}

	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}

	s.met.Created(o.FeeBreakdown.Total)
	s.publish(o, "", StatusPending, RoleCustomer, now)
	s.log.WithFields(logrus.Fields{
		"order_id": o.ID,
		"venue_id": o.VenueID,
		"total":    o.TotalAmount,
	}).Info("order created")
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.IsDeleted {
		return nil, ErrNotFound
	}
	return o, nil
}

type UpdateStatusCommand struct {
	OrderID  types.ID
	Status   Status
	Actor    Actor
	Notes    string
	Location *types.Point
}

// UpdateStatus applies one state-machine transition. A concurrent update on
// the same order is retried once (re-read, re-validate, re-apply) before
// ErrConcurrentModification reaches the caller.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*Order, error) {
	var out *Order
	err := s.retryOnConflict(func() error {
		o, err := s.transition(ctx, cmd.OrderID, cmd.Status, cmd.Actor, cmd.Notes, cmd.Location, transitionHooks{})
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

type AssignCommand struct {
	OrderID  types.ID
	DriverID types.ID
	Actor    Actor
}

// AssignDriver dispatches a ready order to a specific driver. The driver
// acquire is a compare-and-swap, so two orders can never hold the same driver;
// if the subsequent order write loses a version race the driver is released
// again before the retry.
func (s *Service) AssignDriver(ctx context.Context, cmd AssignCommand) (*Order, error) {
	var out *Order
	err := s.retryOnConflict(func() error {
		o, err := s.store.Get(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if o.IsDeleted {
			return ErrNotFound
		}
		if !(cmd.Actor.Role == RoleSystem || (cmd.Actor.Role == RoleVenue && cmd.Actor.ID == o.VenueID)) {
			s.met.Rejected("unauthorized")
			return ErrUnauthorized
		}
		if o.DeliveryStatus != StatusReady {
			s.met.Rejected("order_not_ready")
			return ErrOrderNotReady
		}
		if o.PaymentStatus != PaymentPaid {
			s.met.Rejected("payment_required")
			return ErrPaymentRequired
		}

		if err := s.drivers.Acquire(ctx, cmd.DriverID); err != nil {
			s.met.Rejected("driver_unavailable")
			return err
		}

		now := time.Now()
		from := o.DeliveryStatus
		driverID := cmd.DriverID
		o.DriverID = &driverID
		o.DeliveryStatus = StatusDispatched
		o.TrackingUpdates = append(o.TrackingUpdates, TrackingUpdate{
			Status:    StatusDispatched,
			ActorRole: cmd.Actor.Role,
			Timestamp: now,
		})

		ok, err := s.store.Update(ctx, o)
		if err != nil || !ok {
			if relErr := s.drivers.Release(ctx, cmd.DriverID, false); relErr != nil {
				s.log.WithError(relErr).WithField("driver_id", cmd.DriverID).Error("rollback release failed")
			}
			if err != nil {
				return err
			}
			s.met.AssignConflict()
			return ErrConcurrentModification
		}

		s.met.Applied(string(StatusDispatched), string(cmd.Actor.Role))
		s.publish(o, from, StatusDispatched, cmd.Actor.Role, now)
		out = o
		return nil
	})
	return out, err
}

// FindNearbyDrivers returns matchable drivers near the order's drop-off,
// nearest first. maxDistanceMeters <= 0 falls back to the venue's delivery
// radius.
func (s *Service) FindNearbyDrivers(ctx context.Context, orderID types.ID, maxDistanceMeters float64) ([]matching.Candidate, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	radiusKm := maxDistanceMeters / 1000
	if radiusKm <= 0 {
		v, err := s.venues.Get(ctx, o.VenueID)
		if err != nil {
			return nil, err
		}
		radiusKm = v.DeliveryRadiusKm
	}
	candidates, err := s.drivers.FindNearby(ctx, o.DropoffLocation, radiusKm)
	if err != nil {
		return nil, err
	}
	s.met.Candidates(len(candidates))
	return candidates, nil
}

type CancelCommand struct {
	OrderID types.ID
	Actor   Actor
	Reason  string
}

// Cancel fails the order and records who cancelled it and why.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	var out *Order
	err := s.retryOnConflict(func() error {
		guard := func(o *Order) error {
			if !o.IsCancellable() {
				return ErrNotCancellable
			}
			return nil
		}
		mutate := func(o *Order) {
			o.Cancellation = &Cancellation{
				Reason:      cmd.Reason,
				CancelledBy: cmd.Actor.Role,
				Timestamp:   time.Now(),
			}
		}
		o, err := s.transition(ctx, cmd.OrderID, StatusFailed, cmd.Actor, cmd.Reason, nil,
			transitionHooks{guard: guard, mutate: mutate})
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

type RateCommand struct {
	OrderID      types.ID
	CustomerID   types.ID
	Rating       int
	DriverRating *int
	VenueRating  *int
}

// Rate records the customer's ratings, write-once and only after delivery,
// then recomputes the venue's and driver's running averages from scratch.
func (s *Service) Rate(ctx context.Context, cmd RateCommand) (*Order, error) {
	if !validRating(cmd.Rating) ||
		(cmd.DriverRating != nil && !validRating(*cmd.DriverRating)) ||
		(cmd.VenueRating != nil && !validRating(*cmd.VenueRating)) {
		return nil, fmt.Errorf("%w: ratings must be within [1,5]", ErrValidation)
	}

	var out *Order
	err := s.retryOnConflict(func() error {
		o, err := s.Get(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		if o.CustomerID != cmd.CustomerID {
			return ErrUnauthorized
		}
		if o.DeliveryStatus != StatusDelivered {
			return ErrNotDelivered
		}
		if o.Rated() {
			return ErrAlreadyRated
		}

		rating := cmd.Rating
		o.Rating = &rating
		o.DriverRating = cloneInt(cmd.DriverRating)
		o.VenueRating = cloneInt(cmd.VenueRating)

		ok, err := s.store.Update(ctx, o)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrentModification
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recomputeRatings(ctx, out)
	return out, nil
}

// recomputeRatings refreshes the venue/driver running averages. Failures are
// logged, not surfaced: the order's own rating is already committed and the
// next rating will recompute the same aggregate anyway.
func (s *Service) recomputeRatings(ctx context.Context, o *Order) {
	if o.VenueRating != nil {
		if avg, count, err := s.store.VenueRatingStats(ctx, o.VenueID); err != nil {
			s.log.WithError(err).WithField("venue_id", o.VenueID).Warn("venue rating recompute failed")
		} else if err := s.venues.UpdateRating(ctx, o.VenueID, avg, count); err != nil {
			s.log.WithError(err).WithField("venue_id", o.VenueID).Warn("venue rating update failed")
		}
	}
	if o.DriverRating != nil && o.DriverID != nil {
		if avg, count, err := s.store.DriverRatingStats(ctx, *o.DriverID); err != nil {
			s.log.WithError(err).WithField("driver_id", *o.DriverID).Warn("driver rating recompute failed")
		} else if err := s.drivers.UpdateRating(ctx, *o.DriverID, avg, count); err != nil {
			s.log.WithError(err).WithField("driver_id", *o.DriverID).Warn("driver rating update failed")
		}
	}
}

// ApplyPaymentEvent maps a gateway webhook event onto the aggregate:
// succeeded marks the order paid and auto-advances pending -> preparing;
// failed and refunded mark the payment and fail the order if it is still
// in flight. Redelivered events are idempotent.
func (s *Service) ApplyPaymentEvent(ctx context.Context, orderID types.ID, event payment.EventType) (*Order, error) {
	if !event.Known() {
		return nil, fmt.Errorf("%w: unknown payment event %q", ErrValidation, event)
	}

	var out *Order
	err := s.retryOnConflict(func() error {
		o, err := s.store.Get(ctx, orderID)
		if err != nil {
			return err
		}

		switch event {
		case payment.EventPaymentSucceeded:
			if o.PaymentStatus == PaymentPaid {
				out = o
				return nil
			}
			if o.DeliveryStatus == StatusPending {
				o, err = s.transition(ctx, orderID, StatusPreparing, System, "payment confirmed", nil,
					transitionHooks{pre: func(oo *Order) { oo.PaymentStatus = PaymentPaid }})
			} else {
				o, err = s.setPaymentStatus(ctx, o, PaymentPaid)
			}

		case payment.EventPaymentFailed:
			o, err = s.failForPayment(ctx, o, PaymentFailed, "payment failed")

		case payment.EventChargeRefunded:
			o, err = s.failForPayment(ctx, o, PaymentRefunded, "charge refunded")
		}
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// failForPayment records the payment status and fails the order if it has
// not reached a terminal state yet.
func (s *Service) failForPayment(ctx context.Context, o *Order, ps PaymentStatus, reason string) (*Order, error) {
	if o.PaymentStatus == ps && o.DeliveryStatus.Terminal() {
		return o, nil
	}
	if o.DeliveryStatus.Terminal() {
		return s.setPaymentStatus(ctx, o, ps)
	}
	return s.transition(ctx, o.ID, StatusFailed, System, reason, nil, transitionHooks{
		pre: func(oo *Order) { oo.PaymentStatus = ps },
		mutate: func(oo *Order) {
			if oo.Cancellation == nil {
				oo.Cancellation = &Cancellation{
					Reason:      reason,
					CancelledBy: RoleSystem,
					Timestamp:   time.Now(),
				}
			}
		},
	})
}

func (s *Service) setPaymentStatus(ctx context.Context, o *Order, ps PaymentStatus) (*Order, error) {
	o.PaymentStatus = ps
	ok, err := s.store.Update(ctx, o)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentModification
	}
	return o, nil
}

// transitionHooks customize the single write path. guard rejects before
// anything else (e.g. the cancellable check); pre mutates before the
// state-machine decision (payment status changes the decision depends on);
// mutate runs after the decision and is persisted with the transition.
type transitionHooks struct {
	guard  func(*Order) error
	pre    func(*Order)
	mutate func(*Order)
}

// transition is the single write path for state-machine edges: load, guard,
// decide, mutate, version-guarded persist, then side effects.
func (s *Service) transition(
	ctx context.Context,
	orderID types.ID,
	requested Status,
	actor Actor,
	notes string,
	loc *types.Point,
	hooks transitionHooks,
) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsDeleted {
		return nil, ErrNotFound
	}
	if hooks.guard != nil {
		if err := hooks.guard(o); err != nil {
			return nil, err
		}
	}
	if hooks.pre != nil {
		hooks.pre(o)
	}
	if err := Decide(o, requested, actor); err != nil {
		s.met.Rejected(rejectionReason(err))
		return nil, err
	}
	if hooks.mutate != nil {
		hooks.mutate(o)
	}

	// A driver self-accepting a ready order becomes the assigned driver;
	// the availability CAS keeps the assignment exclusive.
	acquired := false
	if requested == StatusDispatched && actor.Role == RoleDriver && o.DriverID == nil {
		if err := s.drivers.Acquire(ctx, actor.ID); err != nil {
			s.met.Rejected("driver_unavailable")
			return nil, err
		}
		driverID := actor.ID
		o.DriverID = &driverID
		acquired = true
	}

	now := time.Now()
	from := o.DeliveryStatus
	o.DeliveryStatus = requested
	o.TrackingUpdates = append(o.TrackingUpdates, TrackingUpdate{
		Status:    requested,
		ActorRole: actor.Role,
		Timestamp: now,
		Location:  loc,
		Notes:     notes,
	})
	if requested == StatusDelivered {
		o.ActualDeliveryTime = &now
	}

	ok, err := s.store.Update(ctx, o)
	if err != nil || !ok {
		if acquired {
			if relErr := s.drivers.Release(ctx, actor.ID, false); relErr != nil {
				s.log.WithError(relErr).WithField("driver_id", actor.ID).Error("rollback release failed")
			}
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrConcurrentModification
	}

	// Terminal transitions free the driver. Delivered also counts the
	// delivery on the driver's record.
	if o.DriverID != nil {
		switch requested {
		case StatusDelivered:
			if err := s.drivers.Release(ctx, *o.DriverID, true); err != nil {
				s.log.WithError(err).WithField("driver_id", *o.DriverID).Error("driver release failed")
			}
		case StatusFailed:
			if err := s.drivers.Release(ctx, *o.DriverID, false); err != nil {
				s.log.WithError(err).WithField("driver_id", *o.DriverID).Error("driver release failed")
			}
		}
	}

	s.met.Applied(string(requested), string(actor.Role))
	s.publish(o, from, requested, actor.Role, now)
	s.log.WithFields(logrus.Fields{
		"order_id": o.ID,
		"from":     from,
		"to":       requested,
		"role":     actor.Role,
	}).Info("order transition applied")
	return o, nil
}

// retryOnConflict runs fn and retries it exactly once if the optimistic
// write lost a version race. The retry re-reads and re-validates, so a
// transition that became illegal in the meantime fails with its own error.
func (s *Service) retryOnConflict(fn func() error) error {
	err := fn()
	if errors.Is(err, ErrConcurrentModification) {
		return fn()
	}
	return err
}

func (s *Service) publish(o *Order, from, to Status, role Role, at time.Time) {
	if s.pub == nil {
		return
	}
	s.pub.PublishStatusChanged(StatusChangedEvent{
		OrderID:    o.ID,
		VenueID:    o.VenueID,
		CustomerID: o.CustomerID,
		DriverID:   o.DriverID,
		From:       from,
		To:         to,
		ActorRole:  role,
		OccurredAt: at,
	})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrPaymentRequired):
		return "payment_required"
	default:
		return "other"
	}
}

func validRating(v int) bool {
	return v >= 1 && v <= 5
}
