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
	"github.com/robfig/cron/v3"

	"github.com/vendwell/webhookd/internal/config"
	"github.com/vendwell/webhookd/internal/db"
	"github.com/vendwell/webhookd/internal/health"
	"github.com/vendwell/webhookd/internal/logging"
	"github.com/vendwell/webhookd/internal/metrics"
	"github.com/vendwell/webhookd/internal/store/postgres"
	"github.com/vendwell/webhookd/internal/tracing"
	"github.com/vendwell/webhookd/internal/webhook"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("webhookd-retry-worker")

	if err := cfg.Validate(); err != nil {
		logger.Plain().WithError(err).Fatal("invalid configuration")
	}

	shutdown, err := tracing.InitTracing(ctx, "webhookd-retry-worker")
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

	var dlq webhook.DeadLetterPublisher
	if cfg.NSQ.PublishDLQ {
		producer, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
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

	// Health/metrics HTTP
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Retry.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("retry-worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("retry-worker HTTP server failed")
		}
	}()

	// Sweeps are skipped, not stacked, when a previous run overruns its slot.
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	_, err = c.AddFunc(cfg.Retry.PollSchedule, func() {
		swept, err := svc.RetryDue(ctx, time.Now().UTC(), cfg.Retry.BatchSize, cfg.Retry.Concurrency)
		if err != nil {
			logger.Plain().WithError(err).Error("retry sweep failed")
			return
		}
		if swept > 0 {
			logger.Plain().WithField("retried", swept).Info("retry sweep completed")
		}
	})
	if err != nil {
		logger.Plain().WithError(err).Fatal("invalid retry poll schedule")
	}

	_, err = c.AddFunc(cfg.Retry.CleanupSchedule, func() {
		res, err := svc.CleanupOldData(ctx, cfg.Retry.RetentionDays)
		if err != nil {
			logger.Plain().WithError(err).Error("retention cleanup failed")
			return
		}
		logger.Plain().WithFields(map[string]any{
			"deleted_events":     res.DeletedEvents,
			"deleted_deliveries": res.DeletedDeliveries,
			"deleted_logs":       res.DeletedLogs,
		}).Info("retention cleanup completed")
	})
	if err != nil {
		logger.Plain().WithError(err).Fatal("invalid cleanup schedule")
	}

	c.Start()
	logger.Plain().WithFields(map[string]any{
		"poll_schedule":    cfg.Retry.PollSchedule,
		"cleanup_schedule": cfg.Retry.CleanupSchedule,
	}).Info("retry worker started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down retry worker")
	<-c.Stop().Done()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("retry worker stopped")
}
