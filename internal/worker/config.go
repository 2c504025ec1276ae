// Package worker warms the conditions cache for vessel routes in the
// background, driven by Pub/Sub messages.
package worker

import (
	"time"

	"github.com/weatherroute/weatherroute/internal/travel"
)

// PrefetchConfig holds configuration for the prefetch job.
type PrefetchConfig struct {
	// Concurrency is the number of vessels prefetched at once.
	// Default: 3
	Concurrency int

	// Timeout bounds the prefetch of a single vessel.
	// Default: 30 seconds
	Timeout time.Duration

	// Lookback is the window used when a message carries no range, and the
	// activity window for selecting vessels in a fleet-wide prefetch.
	// Default: 24 hours
	Lookback time.Duration

	// ThresholdMeters is the grouping distance. It must match the API's so
	// the warmed cache keys are the ones the overlay will request.
	// Default: travel.DefaultThresholdMeters
	ThresholdMeters float64

	// HealthCheckPoint is fetched by health_check messages.
	HealthCheckPoint travel.Point
}

// DefaultPrefetchConfig returns the default prefetch configuration.
func DefaultPrefetchConfig() PrefetchConfig {
	return PrefetchConfig{
		Concurrency:     3,
		Timeout:         30 * time.Second,
		Lookback:        24 * time.Hour,
		ThresholdMeters: travel.DefaultThresholdMeters,
		// North Sea, off the Dutch coast
		HealthCheckPoint: travel.Point{Latitude: 52.6, Longitude: 3.9},
	}
}

func (c PrefetchConfig) withDefaults() PrefetchConfig {
	d := DefaultPrefetchConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Lookback <= 0 {
		c.Lookback = d.Lookback
	}
	if c.ThresholdMeters <= 0 {
		c.ThresholdMeters = d.ThresholdMeters
	}
	if c.HealthCheckPoint == (travel.Point{}) {
		c.HealthCheckPoint = d.HealthCheckPoint
	}
	return c
}

// PrefetchTarget is one vessel route to warm.
type PrefetchTarget struct {
	VesselID string
	Range    travel.Range
}
