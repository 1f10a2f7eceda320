// README: Payment gateway collaborator — consumed as an interface, never implemented here.
package payment

import (
	"context"
	"errors"

	"nasta/internal/types"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// EventType is a webhook event emitted by the gateway.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.failed"
	EventChargeRefunded   EventType = "charge.refunded"
)

// Known reports whether the webhook event type is one we consume.
func (e EventType) Known() bool {
	switch e {
	case EventPaymentSucceeded, EventPaymentFailed, EventChargeRefunded:
		return true
	}
	return false
}

// Intent is the gateway-side payment object tied to one order.
type Intent struct {
	ID       string
	OrderID  types.ID
	Amount   float64
	Currency string
}

// Gateway creates, confirms and refunds payments. Implementations wrap the
// real provider SDK; callers must bound calls with a timeout context.
type Gateway interface {
	CreateIntent(ctx context.Context, orderID types.ID, amount float64, currency string) (*Intent, error)
	Refund(ctx context.Context, intentID string, amount float64) error
}
