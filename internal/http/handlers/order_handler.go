// README: Order handlers — create, fetch, status updates, dispatch, cancel, rate.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"nasta/internal/http/middleware"
	"nasta/internal/modules/fees"
	"nasta/internal/modules/order"
	"nasta/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	VenueID       string       `json:"venueId"`
	Items         []order.Item `json:"items"`
	DropoffLat    float64      `json:"dropoffLat"`
	DropoffLng    float64      `json:"dropoffLng"`
	Tip           float64      `json:"tip"`
	PaymentMethod string       `json:"paymentMethod"`
}

// orderView is the wire shape of an order. The aggregate itself has no JSON
// tags; the view keeps the API stable when internals move.
type orderView struct {
	ID              types.ID               `json:"id"`
	CustomerID      types.ID               `json:"customerId"`
	VenueID         types.ID               `json:"venueId"`
	DriverID        *types.ID              `json:"driverId,omitempty"`
	Items           []order.Item           `json:"items"`
	DropoffLocation types.Point            `json:"dropoffLocation"`
	DropoffAddress  string                 `json:"dropoffAddress,omitempty"`
	DistanceKm      float64                `json:"distanceKm"`
	Subtotal        float64                `json:"subtotal"`
	Tax             float64                `json:"tax"`
	Tip             float64                `json:"tip"`
	Discount        float64                `json:"discount"`
	FeeBreakdown    fees.Breakdown         `json:"feeBreakdown"`
	TotalAmount     float64                `json:"totalAmount"`
	PaymentMethod   string                 `json:"paymentMethod"`
	PaymentStatus   order.PaymentStatus    `json:"paymentStatus"`
	DeliveryStatus  order.Status           `json:"deliveryStatus"`
	TrackingUpdates []order.TrackingUpdate `json:"trackingUpdates"`
	Cancellation    *order.Cancellation    `json:"cancellation,omitempty"`
	Rating          *int                   `json:"rating,omitempty"`
	DriverRating    *int                   `json:"driverRating,omitempty"`
	VenueRating     *int                   `json:"venueRating,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	Version         int64                  `json:"version"`
}

func viewOf(o *order.Order) orderView {
	return orderView{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		VenueID:         o.VenueID,
		DriverID:        o.DriverID,
		Items:           o.Items,
		DropoffLocation: o.DropoffLocation,
		DropoffAddress:  o.DropoffAddress,
		DistanceKm:      o.DistanceKm,
		Subtotal:        o.Subtotal,
		Tax:             o.Tax,
		Tip:             o.Tip,
		Discount:        o.Discount,
		FeeBreakdown:    o.FeeBreakdown,
		TotalAmount:     o.TotalAmount,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		DeliveryStatus:  o.DeliveryStatus,
		TrackingUpdates: o.TrackingUpdates,
		Cancellation:    o.Cancellation,
		Rating:          o.Rating,
		DriverRating:    o.DriverRating,
		VenueRating:     o.VenueRating,
		CreatedAt:       o.CreatedAt,
		Version:         o.Version,
	}
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		CustomerID:    types.ID(middleware.CallerUID(c)),
		VenueID:       types.ID(req.VenueID),
		Items:         req.Items,
		Dropoff:       types.Point{Lat: req.DropoffLat, Lng: req.DropoffLng},
		Tip:           req.Tip,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, viewOf(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

type updateStatusReq struct {
	Status string   `json:"status"`
	Notes  string   `json:"notes"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var loc *types.Point
	if req.Lat != nil && req.Lng != nil {
		loc = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	o, err := h.order.UpdateStatus(c.Request.Context(), order.UpdateStatusCommand{
		OrderID:  types.ID(id),
		Status:   order.Status(req.Status),
		Actor:    middleware.CallerActor(c),
		Notes:    req.Notes,
		Location: loc,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

type assignDriverReq struct {
	DriverID string `json:"driverId"`
}

func (h *OrderHandler) AssignDriver(c *gin.Context) {
	id := c.Param("id")
	var req assignDriverReq
	if err := c.ShouldBindJSON(&req); err != nil || req.DriverID == "" {
		writeError(c, http.StatusBadRequest, "missing driverId")
		return
	}
	o, err := h.order.AssignDriver(c.Request.Context(), order.AssignCommand{
		OrderID:  types.ID(id),
		DriverID: types.ID(req.DriverID),
		Actor:    middleware.CallerActor(c),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

func (h *OrderHandler) NearbyDrivers(c *gin.Context) {
	id := c.Param("id")
	var maxMeters float64
	if raw := c.Query("max_distance_m"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			writeError(c, http.StatusBadRequest, "invalid max_distance_m")
			return
		}
		maxMeters = v
	}
	candidates, err := h.order.FindNearbyDrivers(c.Request.Context(), types.ID(id), maxMeters)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	type candidateView struct {
		DriverID   types.ID `json:"driverId"`
		Name       string   `json:"name"`
		DistanceKm float64  `json:"distanceKm"`
		Rating     float64  `json:"rating"`
	}
	out := make([]candidateView, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, candidateView{
			DriverID:   cand.Driver.ID,
			Name:       cand.Driver.Name,
			DistanceKm: cand.DistanceKm,
			Rating:     cand.Driver.AverageRating,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": out})
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.Cancel(c.Request.Context(), order.CancelCommand{
		OrderID: types.ID(id),
		Actor:   middleware.CallerActor(c),
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}

type rateReq struct {
	Rating       int  `json:"rating"`
	DriverRating *int `json:"driverRating"`
	VenueRating  *int `json:"venueRating"`
}

func (h *OrderHandler) Rate(c *gin.Context) {
	id := c.Param("id")
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.Rate(c.Request.Context(), order.RateCommand{
		OrderID:      types.ID(id),
		CustomerID:   types.ID(middleware.CallerUID(c)),
		Rating:       req.Rating,
		DriverRating: req.DriverRating,
		VenueRating:  req.VenueRating,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewOf(o))
}
