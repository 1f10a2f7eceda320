// README: Lifecycle events emitted after applied transitions.
package order

import (
	"time"

	"nasta/internal/types"
)

// StatusChangedEvent is published after a transition commits. Consumers get
// at-least-once, fire-and-forget delivery; the order row is the source of
// truth.
type StatusChangedEvent struct {
	OrderID    types.ID  `json:"orderId"`
	VenueID    types.ID  `json:"venueId"`
	CustomerID types.ID  `json:"customerId"`
	DriverID   *types.ID `json:"driverId,omitempty"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	ActorRole  Role      `json:"actorRole"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers lifecycle events. Implementations must not block the
// request path; a nil publisher disables publishing.
type Publisher interface {
	PublishStatusChanged(ev StatusChangedEvent)
}
