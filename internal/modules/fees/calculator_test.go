// README: Fee calculator tests (worked examples, surge, tier gaps, config validation).
package fees

import (
	"errors"
	"testing"
	"time"

	"nasta/internal/modules/location"
)

func baseConfig() Config {
	return Config{
		Base:                 5,
		DistanceRates:        []DistanceTier{{MinDistance: 0, MaxDistance: 5, RatePerKm: 1}},
		SmallOrderThreshold:  15,
		SmallOrderFee:        2,
		ServiceFeePercentage: 10,
		HandlingFee:          1,
		Currency:             "USD",
	}
}

// TestCalculateWorkedExample pins the documented pricing example:
// 3 km at 1/km, subtotal 10 below the 15 threshold, 10% service fee.
func TestCalculateWorkedExample(t *testing.T) {
	b := Calculate(baseConfig(), 3, "12:00", 10)

	if b.Base != 5 {
		t.Errorf("base = %v, want 5", b.Base)
	}
	if b.DistanceFee != 3 {
		t.Errorf("distanceFee = %v, want 3", b.DistanceFee)
	}
	if b.SurgeFee != 0 {
		t.Errorf("surgeFee = %v, want 0", b.SurgeFee)
	}
	if b.SmallOrderFee != 2 {
		t.Errorf("smallOrderFee = %v, want 2", b.SmallOrderFee)
	}
	if b.ServiceFee != 1 {
		t.Errorf("serviceFee = %v, want 1", b.ServiceFee)
	}
	if b.HandlingFee != 1 {
		t.Errorf("handlingFee = %v, want 1", b.HandlingFee)
	}
	if b.Total != 12 {
		t.Errorf("total = %v, want 12", b.Total)
	}
}

func TestCalculateDeterministic(t *testing.T) {
	cfg := baseConfig()
	first := Calculate(cfg, 4.2, "18:30", 23.45)
	for i := 0; i < 10; i++ {
		if got := Calculate(cfg, 4.2, "18:30", 23.45); got != first {
			t.Fatalf("run %d: breakdown %+v differs from %+v", i, got, first)
		}
	}
}

// Total must equal the sum of the rounded components, so receipts add up.
func TestCalculateTotalIsAdditive(t *testing.T) {
	cfg := baseConfig()
	cfg.SurgeWindows = []SurgeWindow{{StartTime: "17:00", EndTime: "20:00", Multiplier: 1.5}}
	cases := []struct {
		distance float64
		clock    string
		subtotal float64
	}{
		{0, "09:00", 50},
		{3.33, "17:30", 10.01},
		{4.999, "20:00", 14.99},
		{2.5, "16:59", 7.77},
	}
	for _, tc := range cases {
		b := Calculate(cfg, tc.distance, tc.clock, tc.subtotal)
		sum := b.Base + b.DistanceFee + b.SurgeFee + b.SmallOrderFee + b.ServiceFee + b.HandlingFee + b.ZoneFee
		if b.Total != location.Round2(sum) {
			t.Errorf("Calculate(%v, %s, %v): total %v != component sum %v", tc.distance, tc.clock, tc.subtotal, b.Total, sum)
		}
	}
}

func TestCalculateSurgeAppliesToBaseAndDistance(t *testing.T) {
	cfg := baseConfig()
	cfg.SurgeWindows = []SurgeWindow{{StartTime: "17:00", EndTime: "20:00", Multiplier: 1.5}}

	b := Calculate(cfg, 3, "18:00", 100)
	// 0.5 * (5 + 3) = 4
	if b.SurgeFee != 4 {
		t.Errorf("surgeFee = %v, want 4", b.SurgeFee)
	}

	// Boundary times are inclusive.
	for _, clock := range []string{"17:00", "20:00"} {
		if got := Calculate(cfg, 3, clock, 100).SurgeFee; got != 4 {
			t.Errorf("surgeFee at %s = %v, want 4", clock, got)
		}
	}
	if got := Calculate(cfg, 3, "20:01", 100).SurgeFee; got != 0 {
		t.Errorf("surgeFee at 20:01 = %v, want 0", got)
	}
}

// A distance outside every tier yields a zero distance fee, not an error.
func TestCalculateTierGapIsZeroFee(t *testing.T) {
	cfg := baseConfig()
	cfg.DistanceRates = []DistanceTier{
		{MinDistance: 0, MaxDistance: 2, RatePerKm: 1},
		{MinDistance: 4, MaxDistance: 8, RatePerKm: 2},
	}
	if got := Calculate(cfg, 3, "12:00", 100).DistanceFee; got != 0 {
		t.Errorf("distanceFee in gap = %v, want 0", got)
	}
	if got := Calculate(cfg, 5, "12:00", 100).DistanceFee; got != 10 {
		t.Errorf("distanceFee in second tier = %v, want 10", got)
	}
}

func TestCalculateSmallOrderThreshold(t *testing.T) {
	cfg := baseConfig()
	if got := Calculate(cfg, 1, "12:00", 14.99).SmallOrderFee; got != 2 {
		t.Errorf("smallOrderFee below threshold = %v, want 2", got)
	}
	// Exactly at the threshold no fee applies.
	if got := Calculate(cfg, 1, "12:00", 15).SmallOrderFee; got != 0 {
		t.Errorf("smallOrderFee at threshold = %v, want 0", got)
	}
}

func TestCalculateNegativeDistanceClamped(t *testing.T) {
	b := Calculate(baseConfig(), -3, "12:00", 100)
	if b.DistanceFee != 0 {
		t.Errorf("distanceFee = %v, want 0", b.DistanceFee)
	}
}

func TestClock(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC)
	if got := Clock(at); got != "09:05" {
		t.Errorf("Clock = %q, want 09:05", got)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad currency", func(c *Config) { c.Currency = "US" }, true},
		{"negative base", func(c *Config) { c.Base = -1 }, true},
		{"percentage above 100", func(c *Config) { c.ServiceFeePercentage = 101 }, true},
		{"inverted tier", func(c *Config) {
			c.DistanceRates = []DistanceTier{{MinDistance: 5, MaxDistance: 2, RatePerKm: 1}}
		}, true},
		{"overlapping tiers", func(c *Config) {
			c.DistanceRates = []DistanceTier{
				{MinDistance: 0, MaxDistance: 5, RatePerKm: 1},
				{MinDistance: 4, MaxDistance: 8, RatePerKm: 2},
			}
		}, true},
		{"tier gap allowed", func(c *Config) {
			c.DistanceRates = []DistanceTier{
				{MinDistance: 0, MaxDistance: 2, RatePerKm: 1},
				{MinDistance: 4, MaxDistance: 8, RatePerKm: 2},
			}
		}, false},
		{"malformed surge time", func(c *Config) {
			c.SurgeWindows = []SurgeWindow{{StartTime: "7:00", EndTime: "20:00", Multiplier: 1.5}}
		}, true},
		{"surge window inverted", func(c *Config) {
			c.SurgeWindows = []SurgeWindow{{StartTime: "20:00", EndTime: "17:00", Multiplier: 1.5}}
		}, true},
		{"surge multiplier below 1", func(c *Config) {
			c.SurgeWindows = []SurgeWindow{{StartTime: "17:00", EndTime: "20:00", Multiplier: 0.9}}
		}, true},
	}
	for _, tc := range cases {
		cfg := baseConfig()
		tc.mutate(&cfg)
		err := ValidateConfig(cfg)
		if tc.wantErr && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", tc.name, err)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
	}
}
