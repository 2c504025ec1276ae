package resilience_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherroute/weatherroute/internal/provider/resilience"
)

const marineBody = `{"timezone":"UTC","hourly":{"time":["2024-03-02T00:00"],"wave_height":[1.2]}}`

// marineBackend replays statuses in order and then repeats the last one.
// Only 200 responses carry a body.
type marineBackend struct {
	*httptest.Server
	hits atomic.Int32
}

func newMarineBackend(t *testing.T, statuses ...int) *marineBackend {
	t.Helper()
	b := &marineBackend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(b.hits.Add(1))
		status := statuses[min(n, len(statuses))-1]
		assert.Equal(t, "55.0", r.URL.Query().Get("latitude"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, marineBody)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *marineBackend) query(ctx context.Context, t *testing.T, client *resilience.Client) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL+"/v1/marine?latitude=55.0&longitude=3.0", http.NoBody)
	require.NoError(t, err)
	return client.Do(req)
}

// conditionsClient is tuned for tests: short backoff and a breaker that
// never trips unless the caller installs one.
func conditionsClient(maxRetries uint64, breaker *resilience.CircuitBreakerConfig) *resilience.Client {
	if breaker == nil {
		cb := resilience.DefaultCircuitBreakerConfig("conditions-backend")
		cb.ReadyToTrip = func(gobreaker.Counts) bool { return false }
		breaker = &cb
	}
	return resilience.NewClient(resilience.ClientConfig{
		Name:            "conditions-backend",
		Timeout:         2 * time.Second,
		MaxRetries:      maxRetries,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		CircuitBreaker:  breaker,
	})
}

func TestClient_ConditionsBackendResponses(t *testing.T) {
	tests := []struct {
		name             string
		statuses         []int
		maxRetries       uint64
		wantStatus       int
		wantHits         int32
		wantBreakerFails uint32
	}{
		{"healthy", []int{200}, 3, 200, 1, 0},
		{"recovers after 503s", []int{503, 503, 200}, 5, 200, 3, 2},
		{"429 retried off the breaker", []int{429, 429, 200}, 5, 200, 3, 0},
		{"bad query is not retried", []int{400}, 3, 400, 1, 0},
		{"outage outlasts retries", []int{502}, 2, 502, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newMarineBackend(t, tt.statuses...)
			client := conditionsClient(tt.maxRetries, nil)

			resp, err := backend.query(context.Background(), t, client)
			require.NoError(t, err, "a final retryable status is returned, not an error")
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantHits, backend.hits.Load())
			assert.Equal(t, tt.wantBreakerFails, client.CircuitBreakerCounts().TotalFailures)

			if tt.wantStatus == http.StatusOK {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.JSONEq(t, marineBody, string(body))
			}
		})
	}
}

func TestClient_OutageOpensBreaker(t *testing.T) {
	backend := newMarineBackend(t, http.StatusInternalServerError)
	// One retry per call: the first call's two attempts trip the breaker.
	client := conditionsClient(1, &resilience.CircuitBreakerConfig{
		Name:        "conditions-backend",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: resilience.TripPolicy{ConsecutiveFailures: 2}.ReadyToTrip,
	})

	resp, err := backend.query(context.Background(), t, client)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	resp, err = backend.query(context.Background(), t, client)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), backend.hits.Load(), "an open breaker does not reach the backend")
}

func TestClient_SlowBackend(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()

	t.Run("client timeout", func(t *testing.T) {
		client := resilience.NewClient(resilience.ClientConfig{
			Name:            "conditions-backend",
			Timeout:         50 * time.Millisecond,
			MaxRetries:      1,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     10 * time.Millisecond,
		})
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, slow.URL, http.NoBody)
		require.NoError(t, err)

		resp, err := client.Do(req)
		assert.Nil(t, resp)
		assert.Error(t, err)
		assert.Positive(t, client.CircuitBreakerCounts().TotalFailures, "timeouts count against the backend")
	})

	t.Run("caller cancels", func(t *testing.T) {
		client := conditionsClient(3, nil)
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(30*time.Millisecond, cancel)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, slow.URL, http.NoBody)
		require.NoError(t, err)

		resp, err := client.Do(req)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, client.CircuitBreakerCounts().TotalFailures)
	})
}

func TestTripPolicy_ReadyToTrip(t *testing.T) {
	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"idle", gobreaker.Counts{}, false},
		{"two failed groups", gobreaker.Counts{Requests: 4, TotalFailures: 2, ConsecutiveFailures: 2}, false},
		{"mostly healthy route", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"half the route failing", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"three groups failed in a row", gobreaker.Counts{Requests: 3, TotalFailures: 3, ConsecutiveFailures: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.DefaultReadyToTrip(tt.counts))
		})
	}

	ratioOnly := resilience.TripPolicy{MinRequests: 5, FailureRatio: 0.5}
	assert.False(t, ratioOnly.ReadyToTrip(gobreaker.Counts{Requests: 3, TotalFailures: 3, ConsecutiveFailures: 3}))
}

func TestCircuitBreaker_IgnoresCallerCancellation(t *testing.T) {
	cb := resilience.NewCircuitBreaker[int](resilience.CircuitBreakerConfig{Name: "cancel", MaxRequests: 1, Timeout: time.Minute})

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() (int, error) { return 0, context.Canceled })
		require.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, uint32(0), cb.Counts().TotalFailures)
}

func TestCircuitBreaker_LogsStateChanges(t *testing.T) {
	var buf bytes.Buffer
	cb := resilience.NewCircuitBreaker[int](resilience.CircuitBreakerConfig{
		Name:        "conditions-backend",
		MaxRequests: 1,
		Timeout:     time.Minute,
		Logger:      zerolog.New(&buf),
	})

	for i := 0; i < 3; i++ {
		_, _ = cb.Execute(func() (int, error) { return 0, errors.New("backend down") })
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "conditions-backend", entry["breaker"])
	assert.Equal(t, "open", entry["to"])
}

func TestDefaults(t *testing.T) {
	cfg := resilience.DefaultClientConfig("conditions-backend")
	assert.Equal(t, "conditions-backend", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(3), cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 5*time.Second, cfg.MaxInterval)

	require.NotNil(t, cfg.CircuitBreaker)
	assert.Equal(t, "conditions-backend", cfg.CircuitBreaker.Name)
	assert.Equal(t, uint32(1), cfg.CircuitBreaker.MaxRequests)
	assert.Equal(t, time.Minute, cfg.CircuitBreaker.Timeout)

	zero := resilience.NewClient(resilience.ClientConfig{Name: "bare"})
	assert.Equal(t, "bare", zero.Name())
	assert.Equal(t, gobreaker.StateClosed, zero.CircuitBreakerState())
}

func TestStatusError(t *testing.T) {
	err := &resilience.StatusError{StatusCode: http.StatusTooManyRequests}
	assert.Equal(t, "retryable status 429: Too Many Requests", err.Error())
}
