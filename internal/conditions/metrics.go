package conditions

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/weatherroute/weatherroute/internal/conditions"

// Metrics holds instruments for backend calls and cache lookups.
type Metrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	staleServed     metric.Int64Counter
}

// NewMetrics creates the conditions instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"conditions.backend.request.duration",
		metric.WithDescription("Duration of conditions backend requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"conditions.backend.request.total",
		metric.WithDescription("Total number of conditions backend requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"conditions.cache.hit",
		metric.WithDescription("Number of conditions cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"conditions.cache.miss",
		metric.WithDescription("Number of conditions cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	staleServed, err := meter.Int64Counter(
		"conditions.cache.stale_served",
		metric.WithDescription("Number of stale records served after a backend error"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		staleServed:     staleServed,
	}, nil
}

func (m *Metrics) recordRequest(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("provider.name", provider)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Background context so a cancelled request still gets recorded.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) recordCacheHit() {
	if m != nil {
		m.cacheHits.Add(context.Background(), 1)
	}
}

func (m *Metrics) recordCacheMiss() {
	if m != nil {
		m.cacheMisses.Add(context.Background(), 1)
	}
}

func (m *Metrics) recordStale() {
	if m != nil {
		m.staleServed.Add(context.Background(), 1)
	}
}
