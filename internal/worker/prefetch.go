package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/weatherroute/weatherroute/internal/overlay"
	"github.com/weatherroute/weatherroute/internal/telemetry"
	"github.com/weatherroute/weatherroute/internal/travel"
)

const tracerName = "weatherroute/worker"

// RouteSource loads vessel routes. *travel.Service implements it.
type RouteSource interface {
	Route(ctx context.Context, vesselID string, rng travel.Range) ([]travel.Point, error)
	ActiveVessels(ctx context.Context, since time.Time) ([]string, error)
}

// GroupSampler fetches conditions once per group. *overlay.Sampler implements it.
type GroupSampler interface {
	Sample(ctx context.Context, groups []travel.Group) (*overlay.SampleResult, error)
}

// PrefetchJob warms the conditions cache for vessel routes.
type PrefetchJob struct {
	config  PrefetchConfig
	routes  RouteSource
	sampler GroupSampler
	logger  zerolog.Logger
	now     func() time.Time

	metrics *PrefetchMetrics
}

// PrefetchMetrics tracks prefetch job statistics.
type PrefetchMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns     int64
	VesselsWarmed int64
	VesselsFailed int64
	GroupsWarmed  int64
	GroupsFailed  int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// PrefetchJobConfig holds configuration for creating a PrefetchJob.
type PrefetchJobConfig struct {
	Config  PrefetchConfig
	Routes  RouteSource
	Sampler GroupSampler
	Logger  zerolog.Logger
}

// NewPrefetchJob creates a new prefetch job processor.
func NewPrefetchJob(cfg PrefetchJobConfig) *PrefetchJob {
	return &PrefetchJob{
		config:  cfg.Config.withDefaults(),
		routes:  cfg.Routes,
		sampler: cfg.Sampler,
		logger:  cfg.Logger,
		now:     time.Now,
		metrics: &PrefetchMetrics{},
	}
}

// PrefetchResult contains the result of a prefetch run.
type PrefetchResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Vessels      int
	Successful   int
	Failed       int
	Points       int
	GroupsWarmed int
	GroupsFailed int
	Errors       []PrefetchError
}

// PrefetchError represents a vessel whose route could not be fully warmed.
type PrefetchError struct {
	VesselID string
	Error    string
}

// DefaultRange returns the lookback window ending now.
func (j *PrefetchJob) DefaultRange() travel.Range {
	now := j.now()
	return travel.Range{From: now.Add(-j.config.Lookback), To: now}
}

// RunActive prefetches every vessel that reported a position within the
// lookback window.
func (j *PrefetchJob) RunActive(ctx context.Context) (*PrefetchResult, error) {
	rng := j.DefaultRange()
	vessels, err := j.routes.ActiveVessels(ctx, rng.From)
	if err != nil {
		return nil, fmt.Errorf("listing active vessels: %w", err)
	}

	targets := make([]PrefetchTarget, len(vessels))
	for i, v := range vessels {
		targets[i] = PrefetchTarget{VesselID: v, Range: rng}
	}
	return j.Run(ctx, targets), nil
}

// Run prefetches the given targets with a bounded pool of workers.
func (j *PrefetchJob) Run(ctx context.Context, targets []PrefetchTarget) *PrefetchResult {
	startTime := time.Now()
	result := &PrefetchResult{
		StartTime: startTime,
		Vessels:   len(targets),
	}

	j.logger.Info().
		Int("vessels", len(targets)).
		Int("concurrency", j.config.Concurrency).
		Msg("starting route prefetch job")

	targetsChan := make(chan PrefetchTarget, len(targets))
	resultsChan := make(chan vesselResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.prefetchWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range targets {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for vr := range resultsChan {
		if vr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, PrefetchError{VesselID: vr.vesselID, Error: vr.err.Error()})
		} else {
			result.Successful++
		}
		result.Points += vr.points
		result.GroupsWarmed += vr.groupsWarmed
		result.GroupsFailed += vr.groupsFailed
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("groups_warmed", result.GroupsWarmed).
		Int("groups_failed", result.GroupsFailed).
		Msg("route prefetch job completed")

	return result
}

type vesselResult struct {
	vesselID     string
	points       int
	groupsWarmed int
	groupsFailed int
	err          error
}

func (j *PrefetchJob) prefetchWorker(ctx context.Context, targets <-chan PrefetchTarget, results chan<- vesselResult) {
	for target := range targets {
		if ctx.Err() != nil {
			results <- vesselResult{vesselID: target.VesselID, err: ctx.Err()}
			continue
		}
		results <- j.prefetchVessel(ctx, target)
	}
}

func (j *PrefetchJob) prefetchVessel(ctx context.Context, target PrefetchTarget) vesselResult {
	result := vesselResult{vesselID: target.VesselID}

	vesselCtx, span := telemetry.Tracer(tracerName).Start(ctx, "prefetch.vessel",
		trace.WithAttributes(attribute.String("vessel.id", target.VesselID)))
	defer func() {
		span.SetAttributes(
			attribute.Int("route.points", result.points),
			attribute.Int("route.groups_warmed", result.groupsWarmed),
			attribute.Int("route.groups_failed", result.groupsFailed),
		)
		if result.err != nil {
			span.RecordError(result.err)
			span.SetStatus(codes.Error, result.err.Error())
		}
		span.End()
	}()

	vesselCtx, cancel := context.WithTimeout(vesselCtx, j.config.Timeout)
	defer cancel()

	points, err := j.routes.Route(vesselCtx, target.VesselID, target.Range)
	if err != nil {
		result.err = fmt.Errorf("loading route: %w", err)
		return result
	}
	result.points = len(points)

	groups := travel.NewGrouper(j.config.ThresholdMeters).Group(points)
	if len(groups) == 0 {
		return result
	}

	sampled, err := j.sampler.Sample(vesselCtx, groups)
	if err != nil {
		result.err = err
		result.groupsFailed = len(groups)
		return result
	}

	result.groupsFailed = len(sampled.Failed())
	result.groupsWarmed = len(groups) - result.groupsFailed
	if result.groupsFailed > 0 {
		result.err = sampled.Err()
	}
	return result
}

// HealthCheck fetches conditions for the configured health check point.
func (j *PrefetchJob) HealthCheck(ctx context.Context) error {
	probe := j.config.HealthCheckPoint
	probe.Timestamp = j.now().Unix()

	checkCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	sampled, err := j.sampler.Sample(checkCtx, []travel.Group{{Points: []travel.Point{probe}}})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if err := sampled.Err(); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (j *PrefetchJob) updateMetrics(result *PrefetchResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.VesselsWarmed += int64(result.Successful)
	j.metrics.VesselsFailed += int64(result.Failed)
	j.metrics.GroupsWarmed += int64(result.GroupsWarmed)
	j.metrics.GroupsFailed += int64(result.GroupsFailed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *PrefetchJob) GetMetrics() PrefetchMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return PrefetchMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		VesselsWarmed:   j.metrics.VesselsWarmed,
		VesselsFailed:   j.metrics.VesselsFailed,
		GroupsWarmed:    j.metrics.GroupsWarmed,
		GroupsFailed:    j.metrics.GroupsFailed,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *PrefetchJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"vessels_warmed":    m.VesselsWarmed,
		"vessels_failed":    m.VesselsFailed,
		"groups_warmed":     m.GroupsWarmed,
		"groups_failed":     m.GroupsFailed,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
