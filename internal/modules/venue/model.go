// README: Venue read model — location, radius and fee configuration for the order engine.
package venue

import (
	"nasta/internal/modules/fees"
	"nasta/internal/types"
)

// Venue is the slice of the venue document the order engine reads. Venue CRUD
// and onboarding are owned elsewhere.
type Venue struct {
	ID               types.ID
	BusinessID       types.ID
	Name             string
	Location         types.Point
	DeliveryRadiusKm float64
	IsOpen           bool
	AverageRating    float64
	RatingCount      int
	FeeConfig        fees.Config
}
