// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"nasta/internal/http/handlers"
	"nasta/internal/http/middleware"
	"nasta/internal/infra"
	"nasta/internal/modules/location"
	"nasta/internal/modules/matching"
	"nasta/internal/modules/order"
)

type ServerDeps struct {
	Order    *order.Service
	Matching *matching.Service
	Location *location.Service
	// Verifier is nil in trusted-header mode (local development).
	Verifier      infra.TokenVerifier
	WebhookSecret string
	Log           *logrus.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Log), middleware.Logging(s.deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The gateway authenticates with a shared secret, not a user token.
	webhookHandler := handlers.NewWebhookHandler(s.deps.Order, s.deps.WebhookSecret)
	r.POST("/api/webhooks/payment", webhookHandler.Payment)

	auth := middleware.Auth(s.deps.Verifier)
	if s.deps.Verifier == nil {
		auth = middleware.TrustedHeaderAuth()
	}
	api := r.Group("/api", auth)

	orderHandler := handlers.NewOrderHandler(s.deps.Order)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/status", orderHandler.UpdateStatus)
	api.POST("/orders/:id/assign", orderHandler.AssignDriver)
	api.GET("/orders/:id/nearby-drivers", orderHandler.NearbyDrivers)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)
	api.POST("/orders/:id/rate", orderHandler.Rate)

	driverHandler := handlers.NewDriverHandler(s.deps.Matching, s.deps.Location)
	api.PUT("/drivers/duty", driverHandler.SetDuty)
	api.PUT("/drivers/location", driverHandler.Ping)

	return r
}
