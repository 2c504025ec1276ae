package travel

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// boxSlack widens search boxes so float rounding never drops an anchor that
// sits exactly on the threshold.
const boxSlack = 1e-9

// anchorIndex maps anchor positions to group indexes.
type anchorIndex struct {
	tree rtree.RTreeG[int]
}

func newAnchorIndex() *anchorIndex {
	return &anchorIndex{}
}

func (a *anchorIndex) insert(p Point, groupIdx int) {
	pt := [2]float64{p.Longitude, p.Latitude}
	a.tree.Insert(pt, pt, groupIdx)
}

// candidates calls fn for every anchor inside a box that contains the circle
// of radius meters around p. Callers still check the exact distance.
func (a *anchorIndex) candidates(p Point, meters float64, fn func(groupIdx int)) {
	for _, box := range searchBoxes(p, meters) {
		a.tree.Search(box[0], box[1], func(_, _ [2]float64, groupIdx int) bool {
			fn(groupIdx)
			return true
		})
	}
}

// searchBoxes returns one or two lon/lat boxes covering every point within
// meters of p. Boxes that cross the antimeridian are split in two.
func searchBoxes(p Point, meters float64) [][2][2]float64 {
	r := meters/orb.EarthRadius*(1+boxSlack) + boxSlack
	lat := p.Latitude * math.Pi / 180

	minLat := lat - r
	maxLat := lat + r

	full := func(lo, hi float64) [][2][2]float64 {
		return [][2][2]float64{{{-180, toDeg(lo)}, {180, toDeg(hi)}}}
	}

	if minLat <= -math.Pi/2 || maxLat >= math.Pi/2 {
		return full(math.Max(minLat, -math.Pi/2), math.Min(maxLat, math.Pi/2))
	}

	s := math.Sin(r) / math.Cos(lat)
	if s >= 1 {
		return full(minLat, maxLat)
	}

	dLon := toDeg(math.Asin(s))
	minLon := p.Longitude - dLon
	maxLon := p.Longitude + dLon
	lo, hi := toDeg(minLat), toDeg(maxLat)

	switch {
	case minLon < -180:
		return [][2][2]float64{
			{{minLon + 360, lo}, {180, hi}},
			{{-180, lo}, {maxLon, hi}},
		}
	case maxLon > 180:
		return [][2][2]float64{
			{{minLon, lo}, {180, hi}},
			{{-180, lo}, {maxLon - 360, hi}},
		}
	default:
		return [][2][2]float64{{{minLon, lo}, {maxLon, hi}}}
	}
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
