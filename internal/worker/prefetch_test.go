package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherroute/weatherroute/internal/conditions"
	"github.com/weatherroute/weatherroute/internal/overlay"
	"github.com/weatherroute/weatherroute/internal/travel"
	"github.com/weatherroute/weatherroute/internal/worker"
)

// fakeRoutes is a RouteSource backed by a map.
type fakeRoutes struct {
	mu     sync.Mutex
	routes map[string][]travel.Point
	calls  []string
	since  time.Time
}

func (f *fakeRoutes) Route(_ context.Context, vesselID string, _ travel.Range) ([]travel.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, vesselID)
	points, ok := f.routes[vesselID]
	if !ok {
		return nil, travel.ErrVesselNotFound
	}
	return points, nil
}

func (f *fakeRoutes) ActiveVessels(_ context.Context, since time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = since
	ids := make([]string, 0, len(f.routes))
	for id := range f.routes {
		ids = append(ids, id)
	}
	return ids, nil
}

// Two groups: Rotterdam and, ~230 km away, Hamburg approaches.
func twoGroupRoute() []travel.Point {
	return []travel.Point{
		{Timestamp: 1700000000, Latitude: 51.95, Longitude: 4.05},
		{Timestamp: 1700003600, Latitude: 52.10, Longitude: 4.20},
		{Timestamp: 1700036000, Latitude: 53.90, Longitude: 8.60},
	}
}

func newJob(t *testing.T, routes *fakeRoutes, fetch overlay.FetcherFunc) *worker.PrefetchJob {
	t.Helper()
	sampler := overlay.NewSampler(overlay.SamplerConfig{Fetcher: fetch, Logger: zerolog.Nop()})
	return worker.NewPrefetchJob(worker.PrefetchJobConfig{
		Config:  worker.PrefetchConfig{Concurrency: 2, Timeout: time.Second},
		Routes:  routes,
		Sampler: sampler,
		Logger:  zerolog.Nop(),
	})
}

func okFetcher(calls *atomic.Int32) overlay.FetcherFunc {
	return func(_ context.Context, _ conditions.Query) (*conditions.Record, error) {
		calls.Add(1)
		return &conditions.Record{}, nil
	}
}

func TestDefaultPrefetchConfig(t *testing.T) {
	cfg := worker.DefaultPrefetchConfig()

	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Lookback)
	assert.InDelta(t, float64(travel.DefaultThresholdMeters), cfg.ThresholdMeters, 0)
	assert.NoError(t, cfg.HealthCheckPoint.Validate())
}

func TestPrefetchJob_Run_OneFetchPerGroup(t *testing.T) {
	var calls atomic.Int32
	routes := &fakeRoutes{routes: map[string][]travel.Point{
		"mv-aurora":   twoGroupRoute(),
		"mv-borealis": twoGroupRoute()[:1],
	}}
	job := newJob(t, routes, okFetcher(&calls))

	rng := job.DefaultRange()
	result := job.Run(context.Background(), []worker.PrefetchTarget{
		{VesselID: "mv-aurora", Range: rng},
		{VesselID: "mv-borealis", Range: rng},
	})

	assert.Equal(t, 2, result.Vessels)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 4, result.Points)
	assert.Equal(t, 3, result.GroupsWarmed)
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, result.Errors)
}

func TestPrefetchJob_Run_RecordsFailures(t *testing.T) {
	routes := &fakeRoutes{routes: map[string][]travel.Point{"mv-aurora": twoGroupRoute()}}
	fetch := overlay.FetcherFunc(func(_ context.Context, q conditions.Query) (*conditions.Record, error) {
		if q.Latitude > 53 {
			return nil, conditions.ErrProviderUnavailable
		}
		return &conditions.Record{}, nil
	})
	job := newJob(t, routes, fetch)

	rng := job.DefaultRange()
	result := job.Run(context.Background(), []worker.PrefetchTarget{
		{VesselID: "mv-aurora", Range: rng},
		{VesselID: "mv-ghost", Range: rng},
	})

	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 1, result.GroupsWarmed)
	assert.Equal(t, 1, result.GroupsFailed)
	require.Len(t, result.Errors, 2)

	byVessel := map[string]string{}
	for _, e := range result.Errors {
		byVessel[e.VesselID] = e.Error
	}
	assert.Contains(t, byVessel["mv-ghost"], travel.ErrVesselNotFound.Error())
	assert.Contains(t, byVessel["mv-aurora"], conditions.ErrProviderUnavailable.Error())

	metrics := job.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalRuns)
	assert.Equal(t, int64(2), metrics.VesselsFailed)
	assert.Equal(t, int64(1), metrics.GroupsFailed)
}

func TestPrefetchJob_RunActive(t *testing.T) {
	var calls atomic.Int32
	routes := &fakeRoutes{routes: map[string][]travel.Point{
		"mv-aurora":   twoGroupRoute(),
		"mv-borealis": twoGroupRoute(),
	}}
	job := newJob(t, routes, okFetcher(&calls))

	result, err := job.RunActive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Vessels)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, int32(4), calls.Load())
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), routes.since, time.Minute)
}

func TestPrefetchJob_HealthCheck(t *testing.T) {
	var calls atomic.Int32
	job := newJob(t, &fakeRoutes{}, okFetcher(&calls))
	require.NoError(t, job.HealthCheck(context.Background()))
	assert.Equal(t, int32(1), calls.Load())

	failing := newJob(t, &fakeRoutes{}, func(_ context.Context, _ conditions.Query) (*conditions.Record, error) {
		return nil, errors.New("backend down")
	})
	assert.Error(t, failing.HealthCheck(context.Background()))
}

func TestPrefetchJob_MetricsSnapshot(t *testing.T) {
	var calls atomic.Int32
	routes := &fakeRoutes{routes: map[string][]travel.Point{"mv-aurora": twoGroupRoute()}}
	job := newJob(t, routes, okFetcher(&calls))

	job.Run(context.Background(), []worker.PrefetchTarget{{VesselID: "mv-aurora", Range: job.DefaultRange()}})

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["total_runs"])
	assert.Equal(t, int64(1), snapshot["vessels_warmed"])
	assert.Equal(t, int64(2), snapshot["groups_warmed"])
	assert.NotEmpty(t, snapshot["last_run_duration"])
}

func TestDispatcher(t *testing.T) {
	var calls atomic.Int32
	routes := &fakeRoutes{routes: map[string][]travel.Point{"mv-aurora": twoGroupRoute()}}
	job := newJob(t, routes, okFetcher(&calls))
	d := worker.NewDispatcher(job, zerolog.Nop())
	ctx := context.Background()

	t.Run("prefetch one vessel", func(t *testing.T) {
		msg := worker.NewPrefetchMessage("mv-aurora", job.DefaultRange())
		assert.NotEmpty(t, msg.JobID)
		data, err := json.Marshal(msg)
		require.NoError(t, err)

		require.NoError(t, d.Dispatch(ctx, data))
	})

	t.Run("prefetch unknown vessel fails", func(t *testing.T) {
		data := []byte(`{"job_type":"prefetch_route","vessel_id":"mv-ghost"}`)
		err := d.Dispatch(ctx, data)
		require.Error(t, err)
		assert.NotErrorIs(t, err, worker.ErrMalformedMessage)
	})

	t.Run("fleet-wide prefetch", func(t *testing.T) {
		require.NoError(t, d.Dispatch(ctx, []byte(`{"job_type":"prefetch_route"}`)))
	})

	t.Run("health check", func(t *testing.T) {
		require.NoError(t, d.Dispatch(ctx, []byte(`{"job_type":"health_check"}`)))
	})

	t.Run("unknown job type is ignored", func(t *testing.T) {
		require.NoError(t, d.Dispatch(ctx, []byte(`{"job_type":"provider_refresh"}`)))
	})

	t.Run("malformed payload", func(t *testing.T) {
		assert.ErrorIs(t, d.Dispatch(ctx, []byte(`{not json`)), worker.ErrMalformedMessage)
	})

	t.Run("reversed range", func(t *testing.T) {
		data := []byte(`{"job_type":"prefetch_route","vessel_id":"mv-aurora","from":"2024-05-02T00:00:00Z","to":"2024-05-01T00:00:00Z"}`)
		assert.ErrorIs(t, d.Dispatch(ctx, data), worker.ErrMalformedMessage)
	})
}
