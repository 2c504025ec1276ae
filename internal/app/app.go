// Package app wires the storage, conditions and overlay stack shared by the
// API server and the prefetch worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/weatherroute/weatherroute/internal/api/handler"
	"github.com/weatherroute/weatherroute/internal/conditions"
	"github.com/weatherroute/weatherroute/internal/conditions/backend"
	"github.com/weatherroute/weatherroute/internal/config"
	"github.com/weatherroute/weatherroute/internal/database"
	"github.com/weatherroute/weatherroute/internal/overlay"
	"github.com/weatherroute/weatherroute/internal/provider/resilience"
	"github.com/weatherroute/weatherroute/internal/timezone"
	"github.com/weatherroute/weatherroute/internal/travel"
)

// AutoTimezone selects per-coordinate zone lookup.
const AutoTimezone = "auto"

// Options tweaks how the stack is built.
type Options struct {
	// Policy overrides the configured failure policy when set.
	Policy *overlay.FailurePolicy

	// Registry tracks backend health (default: resilience.DefaultRegistry).
	Registry *resilience.Registry
}

// Services is the wired stack. Close releases its connections.
type Services struct {
	Travel     *travel.Service
	Conditions *conditions.Service
	Sampler    *overlay.Sampler
	Pipeline   *overlay.Pipeline
	Zoner      timezone.Zoner
	Registry   *resilience.Registry

	// Checks are the readiness probes for the configured dependencies.
	Checks []handler.DependencyCheck

	pool  *pgxpool.Pool
	redis *redis.Client
}

// New builds the stack from cfg. An empty database host selects the
// in-memory travel repository; an empty Redis address the in-memory cache.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Services, error) {
	s := &Services{Registry: opts.Registry}
	if s.Registry == nil {
		s.Registry = resilience.DefaultRegistry
	}

	repo, err := s.travelRepository(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	s.Travel = travel.NewService(travel.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})

	cache, err := s.conditionsCache(ctx, cfg.Redis, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	clientCfg := resilience.DefaultClientConfig(backend.ProviderName)
	clientCfg.Timeout = cfg.Conditions.Timeout
	clientCfg.MaxRetries = cfg.Conditions.MaxRetries
	clientCfg.Registry = s.Registry
	clientCfg.Logger = logger

	provider := backend.NewClient(backend.ClientConfig{
		BaseURL:    cfg.Conditions.BaseURL,
		Token:      cfg.Conditions.Token,
		HTTPClient: resilience.NewClient(clientCfg),
		Logger:     logger,
	})

	metrics, err := conditions.NewMetrics()
	if err != nil {
		logger.Warn().Err(err).Msg("conditions metrics disabled")
		metrics = nil
	}

	s.Conditions = conditions.NewService(conditions.ServiceConfig{
		Provider:        provider,
		Cache:           cache,
		Logger:          logger,
		Metrics:         metrics,
		CacheTTL:        cfg.Conditions.CacheTTL,
		CacheGridSize:   cfg.Conditions.CacheGridSize,
		StaleIfErrorTTL: cfg.Conditions.StaleIfErrorTTL,
	})

	if err := s.buildPipeline(cfg.Overlay, logger, opts); err != nil {
		_ = s.Close()
		return nil, err
	}

	logger.Info().
		Bool("postgres", s.pool != nil).
		Bool("redis", s.redis != nil).
		Str("conditions_url", cfg.Conditions.BaseURL).
		Str("timezone", cfg.Overlay.Timezone).
		Str("failure_policy", cfg.Overlay.FailurePolicy).
		Msg("weather-route services initialized")

	return s, nil
}

func (s *Services) travelRepository(ctx context.Context, cfg database.Config, logger zerolog.Logger) (travel.Repository, error) {
	if !cfg.Enabled() {
		logger.Warn().Msg("no database host configured, travel history is kept in memory")
		return travel.NewInMemoryRepository(), nil
	}

	if cfg.Migrate {
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, err
		}
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.pool = pool
	s.Checks = append(s.Checks, handler.DependencyCheck{Name: "database", Check: pool.Ping})

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("database connected")

	return travel.NewPostgresRepository(pool), nil
}

func (s *Services) conditionsCache(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (conditions.Cache, error) {
	if cfg.Addr == "" {
		return conditions.NewMemoryCache(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.redis = client
	s.Checks = append(s.Checks, handler.DependencyCheck{
		Name:  "redis",
		Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	})

	logger.Info().Str("addr", cfg.Addr).Msg("redis conditions cache connected")
	return conditions.NewRedisCache(client, cfg.Prefix), nil
}

func (s *Services) buildPipeline(cfg config.OverlayConfig, logger zerolog.Logger, opts Options) error {
	policy, err := overlay.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return err
	}
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	mode, err := overlay.ParseMatchMode(cfg.MatchMode)
	if err != nil {
		return err
	}

	var location *time.Location
	if cfg.Timezone == AutoTimezone {
		zones, err := timezone.NewService(time.UTC)
		if err != nil {
			return err
		}
		s.Zoner = zones
	} else {
		location, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("overlay timezone: %w", err)
		}
		s.Zoner = timezone.Fixed{Location: location}
	}

	s.Sampler = overlay.NewSampler(overlay.SamplerConfig{
		Fetcher:     s.Conditions,
		Zoner:       s.Zoner,
		Concurrency: cfg.Concurrency,
		Policy:      policy,
		Logger:      logger,
	})

	scale := cfg.ColorScale
	s.Pipeline, err = overlay.NewPipeline(overlay.PipelineConfig{
		Sampler: s.Sampler,
		Matcher: overlay.NewMatcher(overlay.MatcherConfig{
			Tolerance: cfg.Tolerance,
			Mode:      mode,
			Location:  location,
		}),
		ThresholdMeters: cfg.ThresholdMeters,
		Scale:           &scale,
		Logger:          logger,
	})
	return err
}

// Close releases the database pool and Redis client.
func (s *Services) Close() error {
	var result *multierror.Error
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close redis: %w", err))
		}
		s.redis = nil
	}
	return result.ErrorOrNil()
}
