package travel

import (
	"github.com/paulmach/orb/geo"
)

// Distance returns the great-circle distance between two points in meters.
func Distance(a, b Point) float64 {
	return geo.DistanceHaversine(a.Orb(), b.Orb())
}

// Group clusters points greedily in input order.
//
// Each point joins the first group, in creation order, whose anchor lies
// within thresholdMeters (inclusive). A point that fits no group starts a new
// one. Anchors never move, so the result depends on input order and a group
// may stretch up to twice the threshold end to end.
func Group(points []Point, thresholdMeters float64) []Group {
	groups := make([]Group, 0)

	for _, p := range points {
		placed := false
		for i := range groups {
			if Distance(p, groups[i].Anchor()) <= thresholdMeters {
				groups[i].Points = append(groups[i].Points, p)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, Group{Points: []Point{p}})
		}
	}

	return groups
}

// Grouper produces the same groups as Group but keeps anchors in a spatial
// index, so long routes with many groups avoid the full anchor scan.
type Grouper struct {
	thresholdMeters float64
}

// NewGrouper creates a Grouper. A non-positive threshold falls back to
// DefaultThresholdMeters.
func NewGrouper(thresholdMeters float64) *Grouper {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	return &Grouper{thresholdMeters: thresholdMeters}
}

// Threshold returns the anchor distance in meters.
func (g *Grouper) Threshold() float64 {
	return g.thresholdMeters
}

// Group clusters points with first-fit semantics identical to the package
// level Group function.
func (g *Grouper) Group(points []Point) []Group {
	groups := make([]Group, 0)
	idx := newAnchorIndex()

	for _, p := range points {
		best := -1
		idx.candidates(p, g.thresholdMeters, func(groupIdx int) {
			if best != -1 && groupIdx >= best {
				return
			}
			if Distance(p, groups[groupIdx].Anchor()) <= g.thresholdMeters {
				best = groupIdx
			}
		})

		if best >= 0 {
			groups[best].Points = append(groups[best].Points, p)
			continue
		}

		groups = append(groups, Group{Points: []Point{p}})
		idx.insert(p, len(groups)-1)
	}

	return groups
}
