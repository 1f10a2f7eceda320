// README: Mock gateway tests.
package payment

import (
	"context"
	"errors"
	"testing"
)

func TestMockGatewayCreateAndRefund(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway()

	in, err := g.CreateIntent(ctx, "o1", 27.34, "USD")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if in.ID == "" || in.OrderID != "o1" || in.Amount != 27.34 {
		t.Fatalf("intent = %+v", in)
	}

	if err := g.Refund(ctx, in.ID, 10); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if err := g.Refund(ctx, in.ID, 5); err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if got := g.Refunded(in.ID); got != 15 {
		t.Errorf("refunded = %v, want 15", got)
	}

	if err := g.Refund(ctx, "pi_missing", 1); err == nil {
		t.Error("expected error refunding unknown intent")
	}
}

func TestMockGatewayFailNext(t *testing.T) {
	ctx := context.Background()
	g := NewMockGateway()
	g.FailNext = true

	if _, err := g.CreateIntent(ctx, "o1", 10, "USD"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
	// the failure is one-shot
	if _, err := g.CreateIntent(ctx, "o1", 10, "USD"); err != nil {
		t.Fatalf("second call: %v", err)
	}
}

func TestEventTypeKnown(t *testing.T) {
	known := []EventType{EventPaymentSucceeded, EventPaymentFailed, EventChargeRefunded}
	for _, e := range known {
		if !e.Known() {
			t.Errorf("%s should be known", e)
		}
	}
	if EventType("charge.disputed").Known() {
		t.Error("charge.disputed should be unknown")
	}
}
