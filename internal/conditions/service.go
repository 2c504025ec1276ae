package conditions

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Provider fetches conditions records from an upstream backend.
type Provider interface {
	// GetConditions fetches the hourly record for a location and date.
	GetConditions(ctx context.Context, q Query) (*Record, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the conditions service.
type ServiceConfig struct {
	// Provider is the conditions backend.
	Provider Provider

	// Cache stores records. Defaults to a MemoryCache.
	Cache Cache

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics is optional.
	Metrics *Metrics

	// CacheTTL is how long a record is served without refetching (default: 30 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.01).
	// Queries within the same cell and date share a record.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale records on backend errors (default: 6 hours).
	StaleIfErrorTTL time.Duration
}

// Service provides conditions records with caching. It is safe for
// concurrent use; concurrent misses for the same key share one backend call.
type Service struct {
	provider        Provider
	cache           Cache
	logger          zerolog.Logger
	metrics         *Metrics
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration

	group singleflight.Group
	now   func() time.Time

	hits           atomic.Int64
	misses         atomic.Int64
	staleServed    atomic.Int64
	providerErrors atomic.Int64
}

// NewService creates a new conditions service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.01 // ~1km at equator
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 6 * time.Hour
	}
	if staleIfErrorTTL < cacheTTL {
		staleIfErrorTTL = cacheTTL
	}

	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}

	return &Service{
		provider:        cfg.Provider,
		cache:           cache,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		now:             time.Now,
	}
}

// FetchConditions returns the record for q, from cache when fresh.
// On backend failure a cached record younger than the stale TTL is served.
func (s *Service) FetchConditions(ctx context.Context, q Query) (*Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := s.cacheKey(q)

	cached := s.lookup(ctx, key)
	if cached != nil && s.now().Sub(cached.FetchedAt) < s.cacheTTL {
		s.hits.Add(1)
		s.metrics.recordCacheHit()
		return cached.Record, nil
	}

	s.misses.Add(1)
	s.metrics.recordCacheMiss()

	// The shared call must outlive any one caller: a cancelled caller
	// leaves, the others keep waiting. The client timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.fetch(flightCtx, q, key, cached)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Record), nil
	}
}

func (s *Service) fetch(ctx context.Context, q Query, key string, cached *Entry) (*Record, error) {
	s.logger.Debug().
		Float64("lat", q.Latitude).
		Float64("lon", q.Longitude).
		Str("date", q.Date).
		Str("provider", s.provider.Name()).
		Msg("fetching conditions from provider")

	start := s.now()
	rec, err := s.provider.GetConditions(ctx, q)
	s.metrics.recordRequest(s.provider.Name(), s.now().Sub(start), err)

	if err != nil {
		s.providerErrors.Add(1)
		s.logger.Error().Err(err).
			Float64("lat", q.Latitude).
			Float64("lon", q.Longitude).
			Str("date", q.Date).
			Msg("failed to fetch conditions")

		if cached != nil && s.now().Before(cached.FetchedAt.Add(s.staleIfErrorTTL)) {
			s.staleServed.Add(1)
			s.metrics.recordStale()
			s.logger.Warn().
				Time("fetched_at", cached.FetchedAt).
				Msg("serving stale conditions due to provider error")
			return cached.Record, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	entry := &Entry{Record: rec, FetchedAt: s.now()}
	if err := s.cache.Set(ctx, key, entry, s.staleIfErrorTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to cache conditions")
	}

	return rec, nil
}

func (s *Service) lookup(ctx context.Context, key string) *Entry {
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("conditions cache lookup failed")
		return nil
	}
	if !ok {
		return nil
	}
	return entry
}

// cacheKey snaps the location to a grid cell and adds date and timezone.
func (s *Service) cacheKey(q Query) string {
	gridLat := math.Floor(q.Latitude/s.cacheGridSize) * s.cacheGridSize
	gridLon := math.Floor(q.Longitude/s.cacheGridSize) * s.cacheGridSize
	return fmt.Sprintf("%.4f:%.4f:%s:%s", gridLat, gridLon, q.Date, q.Timezone)
}

// InvalidateCache clears all cached records.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Purge(ctx)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats(ctx context.Context) CacheStats {
	entries, err := s.cache.Len(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to count conditions cache entries")
		entries = -1
	}

	return CacheStats{
		Entries:        entries,
		Hits:           s.hits.Load(),
		Misses:         s.misses.Load(),
		StaleServed:    s.staleServed.Load(),
		ProviderErrors: s.providerErrors.Load(),
		Provider:       s.provider.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Entries        int    `json:"entries"`
	Hits           int64  `json:"hits"`
	Misses         int64  `json:"misses"`
	StaleServed    int64  `json:"staleServed"`
	ProviderErrors int64  `json:"providerErrors"`
	Provider       string `json:"provider"`
}
