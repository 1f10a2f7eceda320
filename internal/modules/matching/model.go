// README: Driver read model and matching candidates.
package matching

import (
	"nasta/internal/types"
)

type DriverStatus string

const (
	DriverActive    DriverStatus = "active"
	DriverSuspended DriverStatus = "suspended"
	DriverInactive  DriverStatus = "inactive"
)

// Driver is the slice of the driver document the matcher reads and the two
// fields it mutates (availability, completed-delivery counter). The driver
// document itself is owned by driver management.
type Driver struct {
	ID                  types.ID
	Name                string
	CurrentLocation     types.Point
	IsAvailable         bool
	IsOnDuty            bool
	Status              DriverStatus
	MaxDeliveryRadiusKm float64
	CompletedDeliveries int
	AverageRating       float64
	RatingCount         int
}

// Matchable reports whether the driver may receive new assignments.
func (d *Driver) Matchable() bool {
	return d.IsAvailable && d.IsOnDuty && d.Status == DriverActive
}

// Candidate is one matchable driver ordered by distance from the drop-off.
type Candidate struct {
	Driver     Driver
	DistanceKm float64
}
