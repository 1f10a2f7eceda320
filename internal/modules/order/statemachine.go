// README: Table-driven order state machine — transition edges, role permissions, payment gate.
package order

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("actor not authorized for this transition")
	ErrPaymentRequired   = errors.New("order not paid")
)

// AllowedTransitions is the delivery status flow as data. Delivered and
// failed are terminal and have no entry.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusPreparing, StatusFailed},
	StatusPreparing:  {StatusReady, StatusFailed},
	StatusReady:      {StatusDispatched, StatusFailed},
	StatusDispatched: {StatusInTransit, StatusFailed},
	StatusInTransit:  {StatusDelivered, StatusFailed},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

type edge struct {
	From, To Status
}

// edgeRoles maps each forward edge to the roles allowed to request it.
// Cancellation edges (any -> failed) are handled separately below because
// their rules depend on order state, not just the edge. Adding a role or a
// status is a data change here, not new branching.
var edgeRoles = map[edge][]Role{
	{StatusPending, StatusPreparing}:    {RoleVenue, RoleSystem},
	{StatusPreparing, StatusReady}:      {RoleVenue},
	{StatusReady, StatusDispatched}:     {RoleDriver},
	{StatusDispatched, StatusInTransit}: {RoleDriver},
	{StatusInTransit, StatusDelivered}:  {RoleDriver},
}

func roleAllowed(roles []Role, r Role) bool {
	for _, v := range roles {
		if v == r {
			return true
		}
	}
	return false
}

// Decide is the pure transition function: given the order's current state,
// the requested status and the acting caller it returns nil when the
// transition may be applied, or the typed rejection. It never mutates the
// order and performs no I/O.
func Decide(o *Order, requested Status, actor Actor) error {
	if !CanTransition(o.DeliveryStatus, requested) {
		return ErrInvalidTransition
	}

	if requested == StatusFailed {
		if err := authorizeFailure(o, actor); err != nil {
			return err
		}
	} else {
		roles, ok := edgeRoles[edge{o.DeliveryStatus, requested}]
		if !ok || !roleAllowed(roles, actor.Role) {
			return ErrUnauthorized
		}
		if err := authorizeIdentity(o, requested, actor); err != nil {
			return err
		}
	}

	// Payment gates every transition except failure: an unpaid order can be
	// cancelled but cannot move forward.
	if requested != StatusFailed && o.PaymentStatus != PaymentPaid {
		return ErrPaymentRequired
	}
	return nil
}

// authorizeIdentity enforces that the role's claimed identity matches the
// order: venue staff must act for the order's venue, drivers must be the
// assigned driver. The one exception is a driver self-accepting a ready
// order, where no driver is assigned yet.
func authorizeIdentity(o *Order, requested Status, actor Actor) error {
	switch actor.Role {
	case RoleVenue:
		if actor.ID != o.VenueID {
			return ErrUnauthorized
		}
	case RoleDriver:
		if o.DriverID == nil {
			if requested != StatusDispatched {
				return ErrUnauthorized
			}
			// self-accept: the acting driver becomes the assigned driver
			return nil
		}
		if *o.DriverID != actor.ID {
			return ErrUnauthorized
		}
	}
	return nil
}

// authorizeFailure gates any -> failed. Venue staff and the system may always
// fail a non-terminal order; the assigned driver may fail their own order;
// customers may only cancel while the order is still cancellable.
func authorizeFailure(o *Order, actor Actor) error {
	switch actor.Role {
	case RoleSystem:
		return nil
	case RoleVenue:
		if actor.ID != o.VenueID {
			return ErrUnauthorized
		}
		return nil
	case RoleDriver:
		if o.DriverID == nil || *o.DriverID != actor.ID {
			return ErrUnauthorized
		}
		return nil
	case RoleCustomer:
		if actor.ID != o.CustomerID || !o.IsCancellable() {
			return ErrUnauthorized
		}
		return nil
	}
	return ErrUnauthorized
}
