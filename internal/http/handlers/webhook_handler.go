// README: Payment gateway webhook — maps gateway events onto the order lifecycle.
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"nasta/internal/modules/order"
	"nasta/internal/modules/payment"
	"nasta/internal/types"
)

type WebhookHandler struct {
	order  *order.Service
	secret string
}

// NewWebhookHandler builds the gateway webhook endpoint. An empty secret
// disables signature checking (local development only).
func NewWebhookHandler(svc *order.Service, secret string) *WebhookHandler {
	return &WebhookHandler{order: svc, secret: secret}
}

type webhookReq struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// Payment handles gateway event deliveries. The gateway retries until it gets
// a 2xx, so every outcome that must not be retried answers 200.
func (h *WebhookHandler) Payment(c *gin.Context) {
	if h.secret != "" {
		sig := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(sig), []byte(h.secret)) != 1 {
			writeError(c, http.StatusUnauthorized, "bad webhook signature")
			return
		}
	}
	var req webhookReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == "" {
		writeError(c, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	event := payment.EventType(req.Type)
	if !event.Known() {
		// Unknown event types are acknowledged so the gateway stops retrying.
		writeJSON(c, http.StatusOK, gin.H{"received": true, "handled": false})
		return
	}
	o, err := h.order.ApplyPaymentEvent(c.Request.Context(), types.ID(req.OrderID), event)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"received":       true,
		"handled":        true,
		"paymentStatus":  o.PaymentStatus,
		"deliveryStatus": o.DeliveryStatus,
	})
}
