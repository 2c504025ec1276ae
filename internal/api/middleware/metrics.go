package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/weatherroute/weatherroute/internal/api/middleware"

// Metrics records per-route HTTP instruments.
type Metrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	size     metric.Int64Histogram
	problems metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	var m Metrics
	var err, e error

	m.duration, e = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
		// Annotate fans out to the conditions backend, so the tail is long.
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	err = errors.Join(err, e)

	m.requests, e = meter.Int64Counter("http.server.request.total",
		metric.WithDescription("HTTP server requests"),
		metric.WithUnit("{request}"),
	)
	err = errors.Join(err, e)

	m.inFlight, e = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"),
	)
	err = errors.Join(err, e)

	m.size, e = meter.Int64Histogram("http.server.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"),
	)
	err = errors.Join(err, e)

	m.problems, e = meter.Int64Counter("weatherroute.api.problems",
		metric.WithDescription("Problem+JSON responses by route and status"),
		metric.WithUnit("{response}"),
	)
	err = errors.Join(err, e)

	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Middleware records one observation per request, labelled by route pattern
// so vessel IDs never reach metric cardinality.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			// The route is unknown until chi has matched it.
			method := metric.WithAttributes(attribute.String("http.request.method", r.Method))
			m.inFlight.Add(ctx, 1, method)
			defer m.inFlight.Add(ctx, -1, method)

			rec := record(w)
			next.ServeHTTP(rec, r)

			attrs := metric.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", routePattern(r)),
				attribute.String("http.response.status_code", strconv.Itoa(rec.status)),
			)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.requests.Add(ctx, 1, attrs)
			m.size.Record(ctx, rec.written, attrs)
			if rec.problem() {
				m.problems.Add(ctx, 1, attrs)
			}
		})
	}
}
