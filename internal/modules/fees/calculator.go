// README: Pure delivery-fee calculator. No I/O; identical inputs yield identical breakdowns.
package fees

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"nasta/internal/modules/location"
)

var ErrInvalidConfig = errors.New("invalid fee configuration")

// Clock formats t as the zero-padded local "HH:MM" string surge windows use.
func Clock(t time.Time) string {
	return t.Format("15:04")
}

// Calculate computes the itemized delivery fee for a venue config, a trip
// distance, a local clock time and an order subtotal.
//
// The surge multiplier applies to the base and distance fees. The breakdown
// reports it as a separate surgeFee component, (multiplier-1)*(base+distance),
// so the persisted components stay additive. Intermediate math uses full
// precision; rounding happens once per output component.
func Calculate(cfg Config, distanceKm float64, clock string, subtotal float64) Breakdown {
	if distanceKm < 0 {
		distanceKm = 0
	}

	distanceFee := ratePerKm(cfg.DistanceRates, distanceKm) * distanceKm
	multiplier := surgeMultiplier(cfg.SurgeWindows, clock)
	surgeFee := (multiplier - 1) * (cfg.Base + distanceFee)

	smallOrderFee := 0.0
	if subtotal < cfg.SmallOrderThreshold {
		smallOrderFee = cfg.SmallOrderFee
	}
	serviceFee := subtotal * cfg.ServiceFeePercentage / 100

	b := Breakdown{
		Base:          location.Round2(cfg.Base),
		DistanceFee:   location.Round2(distanceFee),
		SurgeFee:      location.Round2(surgeFee),
		SmallOrderFee: location.Round2(smallOrderFee),
		ServiceFee:    location.Round2(serviceFee),
		HandlingFee:   location.Round2(cfg.HandlingFee),
		ZoneFee:       location.Round2(cfg.ZoneFee),
		Currency:      cfg.Currency,
	}
	b.Total = location.Round2(b.Base + b.DistanceFee + b.SurgeFee + b.SmallOrderFee +
		b.ServiceFee + b.HandlingFee + b.ZoneFee)
	return b
}

// ratePerKm picks the first tier covering d. A distance no tier covers is a
// zero-fee gap rather than an error; ValidateConfig is where venues get told
// about holes in their tier table.
func ratePerKm(tiers []DistanceTier, d float64) float64 {
	for _, t := range tiers {
		if d >= t.MinDistance && d <= t.MaxDistance {
			return t.RatePerKm
		}
	}
	return 0
}

// surgeMultiplier returns the multiplier of the first window containing the
// clock time. Zero-padded "HH:MM" strings compare correctly as strings.
func surgeMultiplier(windows []SurgeWindow, clock string) float64 {
	if !validClock(clock) {
		return 1
	}
	for _, w := range windows {
		if clock >= w.StartTime && clock <= w.EndTime {
			return w.Multiplier
		}
	}
	return 1
}

func validClock(v string) bool {
	if len(v) != 5 || v[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", v)
	return err == nil
}

// ValidateConfig rejects configurations the calculator would silently
// misprice: negative amounts, bad percentages, inverted or overlapping
// distance tiers, malformed surge windows.
func ValidateConfig(cfg Config) error {
	if len(cfg.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidConfig)
	}
	if cfg.Base < 0 || cfg.SmallOrderFee < 0 || cfg.HandlingFee < 0 || cfg.ZoneFee < 0 || cfg.SmallOrderThreshold < 0 {
		return fmt.Errorf("%w: fee amounts must be non-negative", ErrInvalidConfig)
	}
	if cfg.ServiceFeePercentage < 0 || cfg.ServiceFeePercentage > 100 {
		return fmt.Errorf("%w: serviceFeePercentage must be within [0,100]", ErrInvalidConfig)
	}

	tiers := make([]DistanceTier, len(cfg.DistanceRates))
	copy(tiers, cfg.DistanceRates)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinDistance < tiers[j].MinDistance })
	for i, t := range tiers {
		if t.MinDistance < 0 || t.RatePerKm < 0 {
			return fmt.Errorf("%w: distance tier %d has negative values", ErrInvalidConfig, i)
		}
		if t.MaxDistance < t.MinDistance {
			return fmt.Errorf("%w: distance tier %d has maxDistance < minDistance", ErrInvalidConfig, i)
		}
		if i > 0 && t.MinDistance <= tiers[i-1].MaxDistance {
			return fmt.Errorf("%w: distance tiers %d and %d overlap", ErrInvalidConfig, i-1, i)
		}
	}

	for i, w := range cfg.SurgeWindows {
		if !validClock(w.StartTime) || !validClock(w.EndTime) {
			return fmt.Errorf("%w: surge window %d has malformed HH:MM time", ErrInvalidConfig, i)
		}
		if w.EndTime < w.StartTime {
			return fmt.Errorf("%w: surge window %d ends before it starts", ErrInvalidConfig, i)
		}
		if w.Multiplier < 1 {
			return fmt.Errorf("%w: surge window %d multiplier below 1", ErrInvalidConfig, i)
		}
	}
	return nil
}
