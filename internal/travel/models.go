// Package travel holds vessel travel history and the spatial grouping of
// travel points used to share one weather lookup per cluster.
package travel

import (
	"errors"
	"time"

	"github.com/paulmach/orb"
)

// Travel errors.
var (
	ErrVesselNotFound     = errors.New("vessel not found")
	ErrInvalidRange       = errors.New("invalid time range")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// DefaultThresholdMeters is the anchor distance used by the weather route overlay.
const DefaultThresholdMeters = 100_000

// Point is a single position report from the upstream travel history feed.
type Point struct {
	// Timestamp in epoch seconds.
	Timestamp int64   `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Time returns the point timestamp as a time.Time.
func (p Point) Time() time.Time {
	return time.Unix(p.Timestamp, 0)
}

// Orb returns the point as an orb.Point (lon, lat order).
func (p Point) Orb() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// Validate checks that the coordinates are on the globe.
func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// Group is a non-empty run of points that all lie within the grouping
// threshold of the first point, the anchor.
type Group struct {
	Points []Point
}

// Anchor returns the first point of the group.
func (g Group) Anchor() Point {
	return g.Points[0]
}

// Len returns the number of points in the group.
func (g Group) Len() int {
	return len(g.Points)
}

// Range is a closed time interval used to query travel history.
type Range struct {
	From time.Time
	To   time.Time
}

// Validate checks that the range is non-empty and ordered.
func (r Range) Validate() error {
	if r.From.IsZero() || r.To.IsZero() || r.To.Before(r.From) {
		return ErrInvalidRange
	}
	return nil
}
