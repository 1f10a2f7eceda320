// README: Deterministic in-memory gateway for tests and dev mode.
package payment

import (
	"context"
	"fmt"
	"sync"

	"nasta/internal/types"
)

// MockGateway records intents and refunds in memory. Safe for concurrent use.
type MockGateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*Intent
	refunds map[string]float64

	// FailNext forces the next call to return ErrGatewayUnavailable,
	// letting tests exercise the abort-without-partial-write path.
	FailNext bool
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		intents: make(map[string]*Intent),
		refunds: make(map[string]float64),
	}
}

func (g *MockGateway) CreateIntent(_ context.Context, orderID types.ID, amount float64, currency string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailNext {
		g.FailNext = false
		return nil, ErrGatewayUnavailable
	}
	g.seq++
	in := &Intent{
		ID:       fmt.Sprintf("pi_mock_%06d", g.seq),
		OrderID:  orderID,
		Amount:   amount,
		Currency: currency,
	}
	g.intents[in.ID] = in
	return in, nil
}

func (g *MockGateway) Refund(_ context.Context, intentID string, amount float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailNext {
		g.FailNext = false
		return ErrGatewayUnavailable
	}
	if _, ok := g.intents[intentID]; !ok {
		return fmt.Errorf("unknown intent %s", intentID)
	}
	g.refunds[intentID] += amount
	return nil
}

// Refunded returns the total refunded for an intent.
func (g *MockGateway) Refunded(intentID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[intentID]
}

var _ Gateway = (*MockGateway)(nil)
