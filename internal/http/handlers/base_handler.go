// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nasta/internal/modules/matching"
	"nasta/internal/modules/order"
	"nasta/internal/modules/payment"
	"nasta/internal/modules/venue"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeOrderError maps the lifecycle error taxonomy onto HTTP statuses.
// Service errors may be wrapped, so matching uses errors.Is.
func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrValidation), errors.Is(err, order.ErrInvalidItems):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound), errors.Is(err, venue.ErrNotFound),
		errors.Is(err, matching.ErrDriverNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrUnauthorized):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrPaymentRequired):
		writeError(c, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrOrderNotReady),
		errors.Is(err, order.ErrNotCancellable), errors.Is(err, order.ErrNotDelivered),
		errors.Is(err, order.ErrAlreadyRated), errors.Is(err, order.ErrConcurrentModification),
		errors.Is(err, matching.ErrDriverUnavailable):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, order.ErrOutOfDeliveryRange), errors.Is(err, order.ErrVenueUnavailable):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, payment.ErrGatewayUnavailable):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
