// Package timezone resolves the time zone used to pick the calendar date of
// a conditions lookup.
package timezone

import (
	"fmt"
	"sync"
	"time"

	"github.com/ringsaturn/tzf"
)

// Zoner returns the location whose calendar date applies at a coordinate.
type Zoner interface {
	Zone(latitude, longitude float64) *time.Location
}

// Fixed is a Zoner that ignores coordinates.
type Fixed struct {
	Location *time.Location
}

// Zone returns the fixed location, or UTC when none is set.
func (f Fixed) Zone(_, _ float64) *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// Service looks up IANA zones from coordinates with tzf.
type Service struct {
	finder   tzf.F
	fallback *time.Location

	mu        sync.RWMutex
	locations map[string]*time.Location
}

var (
	finder     tzf.F
	finderErr  error
	finderOnce sync.Once
)

// loadFinder shares one tzf finder per process; it holds the zone polygons in memory.
func loadFinder() (tzf.F, error) {
	finderOnce.Do(func() {
		f, err := tzf.NewDefaultFinder()
		if err != nil {
			finderErr = fmt.Errorf("failed to initialize timezone finder: %w", err)
			return
		}
		finder = f
	})
	return finder, finderErr
}

// NewService creates a tzf-backed Service. fallback is used where no zone
// can be resolved; nil means UTC.
func NewService(fallback *time.Location) (*Service, error) {
	f, err := loadFinder()
	if err != nil {
		return nil, err
	}
	if fallback == nil {
		fallback = time.UTC
	}
	return &Service{
		finder:    f,
		fallback:  fallback,
		locations: make(map[string]*time.Location),
	}, nil
}

// GetTimezone returns the IANA zone name at the coordinates, such as
// "Europe/Amsterdam" on land or "Etc/GMT-1" at sea.
func (s *Service) GetTimezone(latitude, longitude float64) (string, error) {
	name := s.finder.GetTimezoneName(longitude, latitude)
	if name == "" {
		return "", fmt.Errorf("could not determine timezone for coordinates lat=%f, lon=%f", latitude, longitude)
	}
	return name, nil
}

// Zone returns the location at the coordinates, or the fallback.
func (s *Service) Zone(latitude, longitude float64) *time.Location {
	name, err := s.GetTimezone(latitude, longitude)
	if err != nil {
		return s.fallback
	}

	s.mu.RLock()
	loc, ok := s.locations[name]
	s.mu.RUnlock()
	if ok {
		return loc
	}

	loc, err = time.LoadLocation(name)
	if err != nil {
		loc = s.fallback
	}

	s.mu.Lock()
	s.locations[name] = loc
	s.mu.Unlock()

	return loc
}

var (
	_ Zoner = Fixed{}
	_ Zoner = (*Service)(nil)
)
