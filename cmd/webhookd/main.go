package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendwell/webhookd/internal/api"
	"github.com/vendwell/webhookd/internal/auth"
	"github.com/vendwell/webhookd/internal/config"
	"github.com/vendwell/webhookd/internal/db"
	"github.com/vendwell/webhookd/internal/health"
	"github.com/vendwell/webhookd/internal/logging"
	"github.com/vendwell/webhookd/internal/metrics"
	"github.com/vendwell/webhookd/internal/store/postgres"
	"github.com/vendwell/webhookd/internal/tracing"
	"github.com/vendwell/webhookd/internal/webhook"
)

const (
	tokenIssuer   = "webhookd"
	tokenAudience = "webhookd-admin"

	// Development fallback only; Validate() refuses an empty secret in
	// staging and production before this is ever reached.
	devSecret = "dev-secret-change-me"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New(cfg.AppName)

	if err := cfg.Validate(); err != nil {
		logger.Plain().WithError(err).Fatal("invalid configuration")
	}

	shutdown, err := tracing.InitTracing(ctx, cfg.AppName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	store := postgres.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Plain().WithError(err).Fatal("schema setup failed")
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// DLQ producer for exhausted deliveries
	var dlq webhook.DeadLetterPublisher
	var producer *nsq.Producer
	if cfg.NSQ.PublishDLQ {
		producer, err = nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer for DLQ creation failed")
		}
		defer producer.Stop()
		dlq = webhook.NewNSQDeadLetterPublisher(producer, cfg.NSQ.DLQTopic)
	}

	svc := webhook.NewService(store, webhook.ServiceConfig{
		Defaults: webhook.RegistryDefaults{
			MaxRetries:     cfg.Delivery.DefaultMaxRetries,
			TimeoutSeconds: cfg.Delivery.DefaultTimeoutSeconds,
		},
		Engine: webhook.EngineConfig{
			UserAgent:        cfg.Delivery.UserAgent,
			MaxResponseBytes: cfg.Delivery.MaxResponseBytes,
			TestTimeout:      cfg.Delivery.TestTimeout,
		},
		DLQ:    dlq,
		Logger: logger,
	})

	adminSecret := cfg.Auth.AdminSecret
	if adminSecret == "" {
		adminSecret = devSecret
		logger.Plain().Warn("ADMIN_API_SECRET not set, using development fallback")
	}
	validator, err := auth.NewValidator(adminSecret, tokenIssuer, tokenAudience)
	if err != nil {
		logger.Plain().WithError(err).Fatal("auth setup failed")
	}

	mux := http.NewServeMux()
	api.NewHandler(svc, logger).Register(mux)
	mux.HandleFunc("GET /healthz", health.HTTPHandler(pool))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         cfg.HTTPPort,
		Handler:      validator.HTTPMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Plain().WithField("addr", srv.Addr).Info("webhookd API server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("API server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down webhookd")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Plain().Info("webhookd stopped")
}
