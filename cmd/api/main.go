// Package main provides the entrypoint for the weather-route API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/weatherroute/weatherroute/internal/api"
	"github.com/weatherroute/weatherroute/internal/api/handler"
	"github.com/weatherroute/weatherroute/internal/api/middleware"
	"github.com/weatherroute/weatherroute/internal/app"
	"github.com/weatherroute/weatherroute/internal/config"
	"github.com/weatherroute/weatherroute/internal/telemetry"
	"github.com/weatherroute/weatherroute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "weatherroute-api"

	// A local .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := cfg.NewLogger(serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting weather-route API")

	ctx := context.Background()

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
	defer shutdownTelemetry(tp, log)

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	services, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer func() {
		if closeErr := services.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close services")
		}
	}()

	// Prefetch publishing is optional; without a project the endpoint returns 503.
	var publisher handler.PrefetchPublisher
	if cfg.Worker.ProjectID != "" {
		p, pubErr := worker.NewPublisher(ctx, cfg.Worker.ProjectID, cfg.Worker.TopicID)
		if pubErr != nil {
			log.Fatal().Err(pubErr).Msg("failed to create prefetch publisher")
		}
		defer func() {
			if closeErr := p.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close prefetch publisher")
			}
		}()
		publisher = p
		log.Info().
			Str("project_id", cfg.Worker.ProjectID).
			Str("topic_id", cfg.Worker.TopicID).
			Msg("prefetch publisher initialized")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:    Version,
		BuildTime:  BuildTime,
		Logger:     log,
		Metrics:    metrics,
		RequireTLS: cfg.Server.RequireTLS,
		Annotator:  services.Pipeline,
		Travel:     services.Travel,
		Publisher:  publisher,
		Cache:      services.Conditions,
		Registry:   services.Registry,
		Checks:     services.Checks,
	})

	server := &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func shutdownTelemetry(tp *telemetry.Provider, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown telemetry")
	}
}
