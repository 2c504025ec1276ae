package travel

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	vessels map[string]map[int64]Point
}

// NewInMemoryRepository creates a new in-memory travel repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		vessels: make(map[string]map[int64]Point),
	}
}

// ListPoints returns the points of a vessel within the range.
func (r *InMemoryRepository) ListPoints(_ context.Context, vesselID string, rng Range) ([]Point, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history, ok := r.vessels[vesselID]
	if !ok {
		return nil, ErrVesselNotFound
	}

	from, to := rng.From.Unix(), rng.To.Unix()
	points := make([]Point, 0)
	for ts, p := range history {
		if ts >= from && ts <= to {
			points = append(points, p)
		}
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})

	return points, nil
}

// AppendPoints stores points for a vessel.
func (r *InMemoryRepository) AppendPoints(_ context.Context, vesselID string, points []Point) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history, ok := r.vessels[vesselID]
	if !ok {
		history = make(map[int64]Point)
		r.vessels[vesselID] = history
	}

	inserted := 0
	for _, p := range points {
		if _, exists := history[p.Timestamp]; exists {
			continue
		}
		history[p.Timestamp] = p
		inserted++
	}

	return inserted, nil
}

// ListActiveVessels returns vessels with a point at or after since.
func (r *InMemoryRepository) ListActiveVessels(_ context.Context, since time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := since.Unix()
	var ids []string
	for id, history := range r.vessels {
		for ts := range history {
			if ts >= cutoff {
				ids = append(ids, id)
				break
			}
		}
	}

	sort.Strings(ids)
	return ids, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
