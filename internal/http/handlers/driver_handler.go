// README: Driver handlers — duty toggle and location pings.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nasta/internal/http/middleware"
	"nasta/internal/modules/location"
	"nasta/internal/modules/matching"
	"nasta/internal/modules/order"
	"nasta/internal/types"
)

type DriverHandler struct {
	matching *matching.Service
	location *location.Service
}

func NewDriverHandler(matchingSvc *matching.Service, locationSvc *location.Service) *DriverHandler {
	return &DriverHandler{matching: matchingSvc, location: locationSvc}
}

func requireDriver(c *gin.Context) (types.ID, bool) {
	if middleware.CallerRole(c) != string(order.RoleDriver) {
		writeError(c, http.StatusForbidden, "driver role required")
		return "", false
	}
	return types.ID(middleware.CallerUID(c)), true
}

type dutyReq struct {
	OnDuty bool `json:"onDuty"`
}

// SetDuty toggles the authenticated driver's shift. Going off duty also drops
// the driver from the live GEO index so matching stops seeing them.
func (h *DriverHandler) SetDuty(c *gin.Context) {
	driverID, ok := requireDriver(c)
	if !ok {
		return
	}
	var req dutyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.matching.SetDuty(c.Request.Context(), driverID, req.OnDuty); err != nil {
		writeOrderError(c, err)
		return
	}
	if !req.OnDuty {
		if err := h.location.Remove(c.Request.Context(), driverID); err != nil {
			writeOrderError(c, err)
			return
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"onDuty": req.OnDuty})
}

type pingReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Ping records the authenticated driver's current position.
func (h *DriverHandler) Ping(c *gin.Context) {
	driverID, ok := requireDriver(c)
	if !ok {
		return
	}
	var req pingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.location.RecordPing(c.Request.Context(), location.Ping{
		DriverID: driverID,
		Position: types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
