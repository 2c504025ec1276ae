// Package resilience wraps outbound HTTP calls to the conditions backend with
// timeouts, retries, a circuit breaker and health tracking.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// TripPolicy decides when a closed breaker opens. A route fans out one call
// per group, so a short run of consecutive failures trips as well as a high
// failure ratio.
type TripPolicy struct {
	// MinRequests is the sample size before FailureRatio applies.
	MinRequests uint32

	// FailureRatio trips the breaker once reached.
	FailureRatio float64

	// ConsecutiveFailures trips the breaker regardless of sample size.
	// Zero disables the rule.
	ConsecutiveFailures uint32
}

// DefaultTripPolicy trips at 50% failures over 5+ requests, or 3 failures in a row.
var DefaultTripPolicy = TripPolicy{MinRequests: 5, FailureRatio: 0.5, ConsecutiveFailures: 3}

// ReadyToTrip implements gobreaker's ReadyToTrip.
func (p TripPolicy) ReadyToTrip(counts gobreaker.Counts) bool {
	if p.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= p.ConsecutiveFailures {
		return true
	}
	if counts.Requests == 0 || counts.Requests < p.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= p.FailureRatio
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies the circuit breaker in logs and the registry.
	Name string

	// MaxRequests is the maximum number of requests allowed in half-open state.
	// Default: 1
	MaxRequests uint32

	// Interval is the cyclic period for clearing internal counts when closed.
	// Default: 0 (disabled)
	Interval time.Duration

	// Timeout is the period of open state before switching to half-open.
	// Default: 60 seconds
	Timeout time.Duration

	// ReadyToTrip determines when to trip the circuit breaker.
	// If nil, uses DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called when the circuit breaker state changes.
	// If nil, transitions are logged to Logger.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)

	// Logger receives state transitions when OnStateChange is nil.
	Logger zerolog.Logger
}

// DefaultCircuitBreakerConfig returns the configuration used for the
// conditions backend.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip applies DefaultTripPolicy.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	return DefaultTripPolicy.ReadyToTrip(counts)
}

// isSuccessful keeps caller cancellations out of the failure counts; an
// abandoned annotate request says nothing about the backend.
func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultReadyToTrip
	}

	onStateChange := cfg.OnStateChange
	if onStateChange == nil {
		logger := cfg.Logger
		onStateChange = func(name string, from, to gobreaker.State) {
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   readyToTrip,
		OnStateChange: onStateChange,
		IsSuccessful:  isSuccessful,
	})
}
