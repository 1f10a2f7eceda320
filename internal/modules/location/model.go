// README: Driver location snapshot for persistence and audit replay.
package location

import (
	"time"

	"nasta/internal/types"
)

type Snapshot struct {
	ID         int64
	DriverID   types.ID
	Position   types.Point
	RecordedAt time.Time
}
