// README: Order aggregate, status definitions and pure derivation helpers.
package order

import (
	"errors"
	"time"

	"nasta/internal/modules/fees"
	"nasta/internal/modules/location"
	"nasta/internal/types"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPreparing  Status = "preparing"
	StatusReady      Status = "ready"
	StatusDispatched Status = "dispatched"
	StatusInTransit  Status = "in_transit"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVenue    Role = "venue"
	RoleDriver   Role = "driver"
	RoleSystem   Role = "system"
)

// Actor is the resolved caller identity: authentication happens upstream and
// hands us "role X, identity Y". For venue staff the ID is the venue ID.
type Actor struct {
	Role Role
	ID   types.ID
}

// System is the actor used for webhook-driven and internal transitions.
var System = Actor{Role: RoleSystem}

type Item struct {
	MenuItemID  types.ID  `json:"menuItemId"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unitPrice"`
	OptionCosts []float64 `json:"optionCosts,omitempty"`
}

// TrackingUpdate is one immutable entry in the order's append-only history.
type TrackingUpdate struct {
	Status    Status       `json:"status"`
	ActorRole Role         `json:"actorRole"`
	Timestamp time.Time    `json:"timestamp"`
	Location  *types.Point `json:"location,omitempty"`
	Notes     string       `json:"notes,omitempty"`
}

type Cancellation struct {
	Reason      string    `json:"reason"`
	CancelledBy Role      `json:"cancelledBy"`
	Timestamp   time.Time `json:"timestamp"`
}

type Order struct {
	ID              types.ID
	CustomerID      types.ID
	VenueID         types.ID
	DriverID        *types.ID
	Items           []Item
	DropoffLocation types.Point
	DropoffAddress  string
	DistanceKm      float64

	Subtotal     float64
	Tax          float64
	Tip          float64
	Discount     float64
	FeeBreakdown fees.Breakdown
	TotalAmount  float64

	PaymentMethod   string
	PaymentStatus   PaymentStatus
	PaymentIntentID string

	DeliveryStatus     Status
	TrackingUpdates    []TrackingUpdate
	Cancellation       *Cancellation
	ActualDeliveryTime *time.Time

	Rating       *int
	DriverRating *int
	VenueRating  *int

	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is the optimistic-concurrency counter; the store only applies
	// an update when the stored version still matches.
	Version int64
}

var (
	ErrValidation   = errors.New("validation error")
	ErrInvalidItems = errors.New("invalid order items")
)

// ValidateItems checks the client-supplied item list: at least one item, each
// with a positive quantity, a non-negative unit price and non-negative option
// costs.
func ValidateItems(items []Item) error {
	if len(items) == 0 {
		return ErrInvalidItems
	}
	for _, it := range items {
		if it.MenuItemID == "" || it.Name == "" {
			return ErrInvalidItems
		}
		if it.Quantity < 1 || it.UnitPrice < 0 {
			return ErrInvalidItems
		}
		for _, c := range it.OptionCosts {
			if c < 0 {
				return ErrInvalidItems
			}
		}
	}
	return nil
}

// ItemsSubtotal sums quantity * (unit price + option costs) over all items,
// at full precision.
func ItemsSubtotal(items []Item) float64 {
	var sum float64
	for _, it := range items {
		unit := it.UnitPrice
		for _, c := range it.OptionCosts {
			unit += c
		}
		sum += float64(it.Quantity) * unit
	}
	return sum
}

// RecomputeTotals derives subtotal, tax and the grand total from the items,
// fee breakdown, tip and discount. It is the only place totals are computed;
// nothing ever writes TotalAmount directly.
func (o *Order) RecomputeTotals(taxRate float64) {
	o.Subtotal = location.Round2(ItemsSubtotal(o.Items))
	o.Tax = location.Round2(o.Subtotal * taxRate)
	o.TotalAmount = location.Round2(o.Subtotal + o.FeeBreakdown.Total + o.Tax + o.Tip - o.Discount)
}

// IsCancellable reports whether a cancellation request may still be honored:
// the order exists (not soft-deleted), is not in a terminal state, and no
// cancellation has been recorded yet.
func (o *Order) IsCancellable() bool {
	return !o.IsDeleted && !o.DeliveryStatus.Terminal() && o.Cancellation == nil
}

// Rated reports whether any rating has been recorded. Ratings are write-once.
func (o *Order) Rated() bool {
	return o.Rating != nil || o.DriverRating != nil || o.VenueRating != nil
}
