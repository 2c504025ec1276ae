package travel_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherroute/weatherroute/internal/travel"
)

func pt(ts int64, lat, lon float64) travel.Point {
	return travel.Point{Timestamp: ts, Latitude: lat, Longitude: lon}
}

func TestGroup_Empty(t *testing.T) {
	groups := travel.Group(nil, travel.DefaultThresholdMeters)
	require.NotNil(t, groups)
	assert.Empty(t, groups)

	groups = travel.NewGrouper(0).Group([]travel.Point{})
	require.NotNil(t, groups)
	assert.Empty(t, groups)
}

func TestGroup_MembersWithinThresholdOfAnchor(t *testing.T) {
	points := []travel.Point{
		pt(1, 52.0, 4.0),
		pt(2, 52.3, 4.2),
		pt(3, 52.6, 4.5),
		pt(4, 53.5, 5.5),
		pt(5, 53.7, 5.9),
		pt(6, 52.1, 4.1),
	}

	groups := travel.Group(points, travel.DefaultThresholdMeters)

	total := 0
	for _, g := range groups {
		require.NotZero(t, g.Len())
		for _, p := range g.Points {
			assert.LessOrEqual(t, travel.Distance(p, g.Anchor()), float64(travel.DefaultThresholdMeters))
		}
		total += g.Len()
	}
	assert.Equal(t, len(points), total, "every point lands in exactly one group")
}

func TestGroup_PreservesOrderWithinGroup(t *testing.T) {
	points := []travel.Point{
		pt(10, 0, 0),
		pt(20, 0, 5),
		pt(30, 0, 0.1),
		pt(40, 0, 5.1),
		pt(50, 0, 0.2),
	}

	groups := travel.Group(points, travel.DefaultThresholdMeters)
	require.Len(t, groups, 2)

	assert.Equal(t, []int64{10, 30, 50}, timestamps(groups[0].Points))
	assert.Equal(t, []int64{20, 40}, timestamps(groups[1].Points))
}

func TestGroup_FirstFitNotNearest(t *testing.T) {
	// Anchors at lon 0 and lon 1.5 (~167 km apart); the third point is closer
	// to the second anchor but still within range of the first.
	points := []travel.Point{
		pt(1, 0, 0),
		pt(2, 0, 1.5),
		pt(3, 0, 0.8),
	}

	groups := travel.Group(points, travel.DefaultThresholdMeters)
	require.Len(t, groups, 2)
	assert.Equal(t, []int64{1, 3}, timestamps(groups[0].Points))
	assert.Equal(t, []int64{2}, timestamps(groups[1].Points))
}

func TestGroup_OrderSensitive(t *testing.T) {
	a := pt(1, 0, 0)
	b := pt(2, 0, 0.8) // ~89 km east of a
	c := pt(3, 0, 1.6) // ~89 km east of b

	forward := travel.Group([]travel.Point{a, b, c}, travel.DefaultThresholdMeters)
	require.Len(t, forward, 2)

	middleFirst := travel.Group([]travel.Point{b, a, c}, travel.DefaultThresholdMeters)
	require.Len(t, middleFirst, 1)
	assert.Equal(t, b, middleFirst[0].Anchor())

	// Same input, same output.
	assert.Equal(t, forward, travel.Group([]travel.Point{a, b, c}, travel.DefaultThresholdMeters))
}

func TestGroup_ThresholdInclusive(t *testing.T) {
	a := pt(1, 10, 20)
	b := pt(2, 10.5, 20.7)
	d := travel.Distance(a, b)

	exact := travel.Group([]travel.Point{a, b}, d)
	assert.Len(t, exact, 1, "points exactly threshold apart share a group")

	over := travel.Group([]travel.Point{a, b}, d-1)
	assert.Len(t, over, 2, "points just over threshold form separate groups")
}

func TestGrouper_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	scenarios := map[string]func() travel.Point{
		"north sea": func() travel.Point {
			return pt(0, 51+rng.Float64()*6, 1+rng.Float64()*8)
		},
		"antimeridian": func() travel.Point {
			lon := 177 + rng.Float64()*6
			if lon > 180 {
				lon -= 360
			}
			return pt(0, -20+rng.Float64()*4, lon)
		},
		"polar": func() travel.Point {
			return pt(0, 88+rng.Float64()*2, -180+rng.Float64()*360)
		},
	}

	for name, gen := range scenarios {
		t.Run(name, func(t *testing.T) {
			points := make([]travel.Point, 400)
			for i := range points {
				points[i] = gen()
				points[i].Timestamp = int64(i)
			}

			for _, threshold := range []float64{10_000, 50_000, travel.DefaultThresholdMeters, 400_000} {
				want := travel.Group(points, threshold)
				got := travel.NewGrouper(threshold).Group(points)
				assert.Equal(t, want, got, "threshold %v", threshold)
			}
		})
	}
}

func TestNewGrouper_DefaultThreshold(t *testing.T) {
	assert.Equal(t, float64(travel.DefaultThresholdMeters), travel.NewGrouper(-5).Threshold())
	assert.Equal(t, 2500.0, travel.NewGrouper(2500).Threshold())
}

func TestDistance(t *testing.T) {
	// One degree of longitude on the equator.
	d := travel.Distance(pt(0, 0, 0), pt(0, 0, 1))
	assert.InDelta(t, 111_319.49, d, 1)

	assert.Zero(t, travel.Distance(pt(0, 52, 4), pt(0, 52, 4)))
}

func timestamps(points []travel.Point) []int64 {
	out := make([]int64, len(points))
	for i, p := range points {
		out[i] = p.Timestamp
	}
	return out
}
