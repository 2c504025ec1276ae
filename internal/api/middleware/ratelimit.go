package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/weatherroute/weatherroute/internal/api/models"
)

// RateLimitConfig is a fixed-window request budget.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

func (c RateLimitConfig) String() string {
	return fmt.Sprintf("%d/%s", c.RequestLimit, c.WindowLength)
}

var (
	// ExpensiveRateLimit guards endpoints that fan out to the conditions
	// backend, one call per point group.
	ExpensiveRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}

	// IngestRateLimit is per vessel; a tracker posting every few seconds
	// stays well inside it.
	IngestRateLimit = RateLimitConfig{RequestLimit: 120, WindowLength: time.Minute}

	// PrefetchRateLimit is per vessel. One job warms the whole route, so
	// repeats within the window only duplicate work.
	PrefetchRateLimit = RateLimitConfig{RequestLimit: 5, WindowLength: 10 * time.Minute}

	StandardRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByIP limits per client IP. Mount after chi's RealIP so proxied
// clients are keyed by their own address.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, httprate.KeyByRealIP)
}

// RateLimitByVessel limits per {vesselId} route parameter, falling back to
// the client IP on routes without one.
func RateLimitByVessel(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, keyByVesselOrIP)
}

func limit(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(limitExceeded(cfg)),
	)
}

func keyByVesselOrIP(r *http.Request) (string, error) {
	if vesselID := chi.URLParam(r, "vesselId"); vesselID != "" {
		return "vessel:" + vesselID, nil
	}
	return httprate.KeyByRealIP(r)
}

// limitExceeded writes a 429 problem. httprate does not expose the reset
// time, so Retry-After is the full window.
func limitExceeded(cfg RateLimitConfig) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))
	detail := "Rate limit of " + cfg.String() + " exceeded. Please try again later."

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", retryAfter)
		models.KindTooManyRequests.New(GetRequestID(r.Context()), detail).At(r).Write(w)
	}
}
