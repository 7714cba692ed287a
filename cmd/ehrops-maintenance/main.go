package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/ehrops/pkg/config"
	"github.com/platinummonkey/ehrops/pkg/contextkeys"
	"github.com/platinummonkey/ehrops/pkg/engine"
	"github.com/platinummonkey/ehrops/pkg/observability"
	"github.com/platinummonkey/ehrops/pkg/opsserver"
	"github.com/platinummonkey/ehrops/pkg/storage/postgres"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithFields(map[string]interface{}{
		"service":     "ehrops-maintenance",
		"environment": cfg.Environment,
		"version":     version,
	})

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Maintenance daemon exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	otel, err := observability.InitOTel(ctx, cfg.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	shutdown.Register("otel", otel.Shutdown)

	conn, err := postgres.NewConnectionManager(cfg.Database)
	if err != nil {
		return err
	}
	shutdown.Register("postgres", func(context.Context) error { return conn.Close() })

	rdb, err := postgres.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, seeding without a distributed lock")
		rdb = nil
	}
	if rdb != nil {
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	e, err := engine.New(engine.Options{
		DB:      conn.DB(),
		Redis:   rdb,
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	shutdown.Register("notifications", func(context.Context) error { return e.Close(cfg.Server.ShutdownTimeout) })

	if cfg.Maintenance.SeedOnStart {
		e.Initialize(ctx)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Maintenance.SweepSchedule, func() { sweep(e, logger) }); err != nil {
		return fmt.Errorf("failed to schedule invitation sweep: %w", err)
	}
	scheduler.Start()
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	logger.WithField("schedule", cfg.Maintenance.SweepSchedule).Info("Invitation sweep scheduled")

	health := observability.NewHealthChecker(conn.DB(), rdb, version)
	var metricsRegistry *prometheus.Registry
	if metrics != nil {
		metricsRegistry = registry
	}
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      opsserver.NewServer(e, health, metricsRegistry, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	shutdown.Register("ops-server", server.Shutdown)

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("Ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Shutting down gracefully")
	case err := <-serverErr:
		logger.WithError(err).Error("Ops server failed")
	}

	return shutdown.Shutdown(context.Background())
}

// sweep runs one scheduled expiry pass
func sweep(e *engine.Engine, logger *observability.Logger) {
	jobID := uuid.New().String()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = contextkeys.WithRequestID(ctx, jobID)

	jobLogger := logger.WithField("job_id", jobID)
	n, err := e.ExpireOldInvitations(ctx)
	if err != nil {
		jobLogger.WithError(err).Error("Invitation sweep failed")
		return
	}
	jobLogger.WithField("expired", n).Info("Invitation sweep completed")
}
