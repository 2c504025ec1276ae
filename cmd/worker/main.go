// Package main provides the entrypoint for the weather-route prefetch worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/weatherroute/weatherroute/internal/app"
	"github.com/weatherroute/weatherroute/internal/config"
	"github.com/weatherroute/weatherroute/internal/overlay"
	"github.com/weatherroute/weatherroute/internal/telemetry"
	"github.com/weatherroute/weatherroute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "weatherroute-worker"

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := cfg.NewLogger(serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting weather-route worker")

	if cfg.Worker.ProjectID == "" {
		log.Fatal().Msg("worker.project_id is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	// Warming keeps whatever groups succeed, whatever the API's policy is.
	isolate := overlay.FailurePolicyIsolate
	services, err := app.New(ctx, cfg, log, app.Options{Policy: &isolate})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer func() {
		if closeErr := services.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close services")
		}
	}()

	prefetchCfg := worker.DefaultPrefetchConfig()
	prefetchCfg.Concurrency = cfg.Worker.Workers
	prefetchCfg.Timeout = cfg.Worker.VesselTimeout
	prefetchCfg.Lookback = cfg.Worker.Lookback
	prefetchCfg.ThresholdMeters = cfg.Overlay.ThresholdMeters

	job := worker.NewPrefetchJob(worker.PrefetchJobConfig{
		Config:  prefetchCfg,
		Routes:  services.Travel,
		Sampler: services.Sampler,
		Logger:  log,
	})

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.Worker.ProjectID,
		SubscriptionName: cfg.Worker.SubscriptionID,
		PrefetchJob:      job,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Pub/Sub handler")
	}
	defer func() {
		if closeErr := handler.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close Pub/Sub client")
		}
	}()

	// Worker also exposes health endpoints for Cloud Run
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler:      healthMux(job, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go func() {
		log.Info().
			Str("subscription", cfg.Worker.SubscriptionID).
			Int("workers", prefetchCfg.Concurrency).
			Msg("worker started, waiting for messages")
		if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Pub/Sub receive stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Interface("metrics", job.MetricsSnapshot()).Msg("worker stopped")
}

func healthMux(job *worker.PrefetchJob, log zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": Version}, log)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := job.HealthCheck(r.Context()); err != nil {
			log.Warn().Err(err).Msg("readiness probe failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()}, log)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, log)
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, job.MetricsSnapshot(), log)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}
