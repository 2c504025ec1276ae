package travel

import (
	"context"
	"time"
)

// Repository defines the interface for travel history persistence.
type Repository interface {
	// ListPoints returns the points of a vessel within the range, ordered by timestamp.
	// Returns ErrVesselNotFound if the vessel has no history at all.
	ListPoints(ctx context.Context, vesselID string, r Range) ([]Point, error)

	// AppendPoints stores points for a vessel. Points with a timestamp that is
	// already stored for the vessel are ignored.
	AppendPoints(ctx context.Context, vesselID string, points []Point) (int, error)

	// ListActiveVessels returns vessels with at least one point at or after since.
	ListActiveVessels(ctx context.Context, since time.Time) ([]string, error)
}
