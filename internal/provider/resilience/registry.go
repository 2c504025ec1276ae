package resilience

import (
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Status is the aggregate health of every registered backend.
type Status string

const (
	StatusOK        Status = "ok"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// BackendHealth is a point-in-time view of one backend client.
type BackendHealth struct {
	Name   string
	State  gobreaker.State
	Counts gobreaker.Counts

	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string

	// FailureStreak counts failed calls since the last success. Unlike
	// Counts it survives breaker generation changes.
	FailureStreak int
}

// Status maps the breaker state onto the aggregate scale.
func (h BackendHealth) Status() Status {
	switch h.State {
	case gobreaker.StateOpen:
		return StatusUnhealthy
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusOK
	}
}

// Registry tracks backend clients and the outcome of their last calls.
// Clients register themselves when ClientConfig.Registry is set.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*backendEntry
	now      func() time.Time
}

type backendEntry struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
	streak        int
}

// DefaultRegistry is used when no registry is injected.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]*backendEntry),
		now:      time.Now,
	}
}

// Register adds client under name, replacing any previous entry.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = &backendEntry{client: client}
}

// Unregister drops name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, name)
}

// RecordSuccess marks a successful call and resets the failure streak.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.backends[name]
	if !ok {
		return
	}
	now := r.now()
	e.lastSuccessAt = &now
	e.streak = 0
}

// RecordFailure marks a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.backends[name]
	if !ok {
		return
	}
	now := r.now()
	e.lastFailureAt = &now
	e.streak++
	if err != nil {
		e.lastError = err.Error()
	}
}

// Health returns the view of a single backend.
func (r *Registry) Health(name string) (BackendHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.backends[name]
	if !ok {
		return BackendHealth{}, false
	}
	return e.health(name), true
}

// Snapshot returns every backend ordered by name.
func (r *Registry) Snapshot() []BackendHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]BackendHealth, 0, len(r.backends))
	for name, e := range r.backends {
		out = append(out, e.health(name))
	}
	slices.SortFunc(out, func(a, b BackendHealth) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

// Status is the worst status across all backends. An empty registry is ok.
func (r *Registry) Status() Status {
	status := StatusOK
	for _, h := range r.Snapshot() {
		switch h.Status() {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

func (e *backendEntry) health(name string) BackendHealth {
	return BackendHealth{
		Name:          name,
		State:         e.client.CircuitBreakerState(),
		Counts:        e.client.CircuitBreakerCounts(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
		FailureStreak: e.streak,
	}
}
