// README: Delivery fee configuration and itemized breakdown types.
package fees

// DistanceTier prices one distance band. Bands are inclusive on both ends and
// must not overlap.
type DistanceTier struct {
	MinDistance float64 `json:"minDistance"`
	MaxDistance float64 `json:"maxDistance"`
	RatePerKm   float64 `json:"ratePerKm"`
}

// SurgeWindow is a local time-of-day interval ("HH:MM", inclusive) during
// which base and distance fees are multiplied.
type SurgeWindow struct {
	StartTime  string  `json:"startTime"`
	EndTime    string  `json:"endTime"`
	Multiplier float64 `json:"multiplier"`
}

// Config is the venue-owned fee configuration, a read-only input here.
type Config struct {
	Base                 float64        `json:"base"`
	DistanceRates        []DistanceTier `json:"distanceRates"`
	SurgeWindows         []SurgeWindow  `json:"surgeWindows"`
	SmallOrderThreshold  float64        `json:"smallOrderThreshold"`
	SmallOrderFee        float64        `json:"smallOrderFee"`
	ServiceFeePercentage float64        `json:"serviceFeePercentage"`
	HandlingFee          float64        `json:"handlingFee"`
	ZoneFee              float64        `json:"zoneFee"`
	Currency             string         `json:"currency"`
}

// Breakdown is the itemized result. Every component is rounded to 2 decimal
// places and Total is the sum of the components, so receipts stay additive.
type Breakdown struct {
	Base          float64 `json:"base"`
	DistanceFee   float64 `json:"distanceFee"`
	SurgeFee      float64 `json:"surgeFee"`
	SmallOrderFee float64 `json:"smallOrderFee"`
	ServiceFee    float64 `json:"serviceFee"`
	HandlingFee   float64 `json:"handlingFee"`
	ZoneFee       float64 `json:"zoneFee"`
	Currency      string  `json:"currency"`
	Total         float64 `json:"total"`
}
