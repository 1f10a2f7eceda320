// README: Entry point; loads config, wires services, starts HTTP server and background workers.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"nasta/internal/config"
	httptransport "nasta/internal/http"
	"nasta/internal/infra"
	"nasta/internal/maps"
	"nasta/internal/messaging/kafka"
	"nasta/internal/metrics"
	"nasta/internal/modules/location"
	"nasta/internal/modules/matching"
	"nasta/internal/modules/order"
	"nasta/internal/modules/payment"
	"nasta/internal/modules/venue"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
	} else {
		log.Warn("no firebase project configured, using trusted-header auth")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	locationStore := location.NewStore(dbPool, redisClient)
	locationSvc := location.NewService(locationStore, locationStore, log)

	driverStore := matching.NewPGDriverStore(dbPool)
	matchingSvc := matching.NewService(locationStore, driverStore, cfg.Matching, log)

	var geocoder order.Geocoder
	if cfg.Maps.APIKey != "" {
		geo, err := maps.NewGeocodeService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		geocoder = geo
	}

	var publisher order.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		asyncProducer, err := infra.NewKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatalf("kafka init: %v", err)
		}
		producer := kafka.NewProducer(asyncProducer, cfg.Kafka.Topic, log)
		defer producer.Close()
		publisher = producer
	}

	orderSvc := order.NewService(order.ServiceDeps{
		Store:           order.NewPGStore(dbPool),
		Venues:          venue.NewPGStore(dbPool),
		Drivers:         matchingSvc,
		Gateway:         payment.NewMockGateway(),
		Geocoder:        geocoder,
		Pub:             publisher,
		Metrics:         metrics.New(prometheus.DefaultRegisterer),
		Log:             log,
		TaxRate:         cfg.Orders.TaxRate,
		DefaultRadiusKm: cfg.Matching.DefaultRadiusKm,
	})

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Order:         orderSvc,
		Matching:      matchingSvc,
		Location:      locationSvc,
		Verifier:      verifier,
		WebhookSecret: cfg.Payment.WebhookSecret,
		Log:           log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go locationSvc.RunSnapshotFlusher(ctx, time.Duration(cfg.Orders.SnapshotSeconds)*time.Second)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server shutdown")
		}
	}()

	log.WithField("addr", cfg.HTTP.Addr).Info("starting api server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
