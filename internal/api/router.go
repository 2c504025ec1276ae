// Package api provides the HTTP API for the weather-route overlay.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/weatherroute/weatherroute/internal/api/handler"
	"github.com/weatherroute/weatherroute/internal/api/middleware"
	"github.com/weatherroute/weatherroute/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version    string
	BuildTime  string
	Logger     zerolog.Logger
	Metrics    *middleware.Metrics
	RequireTLS bool

	Annotator handler.RouteAnnotator
	Travel    handler.TravelHistory
	Publisher handler.PrefetchPublisher
	Cache     handler.ConditionsCache
	Registry  *resilience.Registry
	Checks    []handler.DependencyCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID)                                  // Generate/propagate request ID first
	r.Use(middleware.Tracing("/v1/ops/health", "/v1/ops/ready")) // Distributed tracing, probes excluded
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Cache:     cfg.Cache,
		Checks:    cfg.Checks,
		Logger:    cfg.Logger,
	})
	routeHandler := handler.NewWeatherRouteHandler(handler.WeatherRouteHandlerConfig{
		Annotator: cfg.Annotator,
		Travel:    cfg.Travel,
		Publisher: cfg.Publisher,
		Logger:    cfg.Logger,
	})
	metadataHandler := handler.NewMetadataHandler(cfg.Annotator.DefaultScale())

	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
			r.With(standardRateLimit).Delete("/conditions-cache", opsHandler.PurgeConditionsCache)
		})

		r.Route("/metadata", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/metrics", metadataHandler.ListMetrics)
		})

		// Ad-hoc overlay - fans out to the conditions backend
		r.With(expensiveRateLimit, middleware.RequireJSON).Post("/weather-routes:annotate", routeHandler.Annotate)

		r.Route("/vessels/{vesselId}", func(r chi.Router) {
			r.With(expensiveRateLimit).Get("/weather-route", routeHandler.GetVesselRoute)
			r.With(middleware.RateLimitByVessel(middleware.PrefetchRateLimit)).Post("/weather-route:prefetch", routeHandler.PrefetchRoute)
			r.With(middleware.RateLimitByVessel(middleware.IngestRateLimit), middleware.RequireJSON).Post("/travel-points", routeHandler.IngestPoints)
		})
	})

	return r
}
