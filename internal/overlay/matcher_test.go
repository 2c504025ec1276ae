package overlay_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherroute/weatherroute/internal/conditions"
	"github.com/weatherroute/weatherroute/internal/overlay"
	"github.com/weatherroute/weatherroute/internal/travel"
)

var hourly = []string{"2024-01-01T00:00:00Z", "2024-01-01T01:00:00Z"}

func TestMatcher_ToleranceBoundary(t *testing.T) {
	for _, mode := range []overlay.MatchMode{overlay.MatchAbsolute, overlay.MatchLegacy} {
		t.Run(mode.String(), func(t *testing.T) {
			m := overlay.NewMatcher(overlay.MatcherConfig{Tolerance: 30 * time.Minute, Mode: mode})

			idx, ok := m.FindIndex(ts("2024-01-01T00:29:00Z"), hourly)
			assert.True(t, ok)
			assert.Equal(t, 0, idx)

			idx, ok = m.FindIndex(ts("2024-01-01T00:31:00Z"), hourly)
			assert.True(t, ok)
			if mode == overlay.MatchLegacy {
				assert.Equal(t, 0, idx, "an earlier entry always satisfies entry - point <= tolerance")
			} else {
				assert.Equal(t, 1, idx)
			}

			idx, ok = m.FindIndex(ts("2024-01-01T00:30:00Z"), hourly)
			assert.True(t, ok, "tolerance is inclusive")
			assert.Equal(t, 0, idx)
		})
	}
}

func TestMatcher_Modes(t *testing.T) {
	tests := []struct {
		name    string
		mode    overlay.MatchMode
		point   string
		wantIdx int
		wantOK  bool
	}{
		{"absolute after series", overlay.MatchAbsolute, "2024-01-01T02:00:00Z", -1, false},
		{"absolute before series", overlay.MatchAbsolute, "2023-12-31T23:00:00Z", -1, false},
		// Any earlier entry satisfies entry - point <= tolerance.
		{"legacy after series", overlay.MatchLegacy, "2024-01-01T02:00:00Z", 0, true},
		{"legacy before series", overlay.MatchLegacy, "2023-12-31T23:00:00Z", -1, false},
		{"legacy within tolerance before series", overlay.MatchLegacy, "2023-12-31T23:45:00Z", 0, true},
		{"absolute just after last", overlay.MatchAbsolute, "2024-01-01T01:30:00Z", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := overlay.NewMatcher(overlay.MatcherConfig{Mode: tt.mode})
			idx, ok := m.FindIndex(ts(tt.point), hourly)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestMatcher_DefaultTolerance(t *testing.T) {
	m := overlay.NewMatcher(overlay.MatcherConfig{})
	assert.Equal(t, overlay.DefaultTolerance, m.Tolerance())
}

func TestMatcher_SeriesFormats(t *testing.T) {
	m := overlay.NewMatcher(overlay.MatcherConfig{})

	series := []string{"garbage", "", "2024-01-01T00:00", "2024-01-01T01:00:00"}
	idx, ok := m.FindIndex(ts("2024-01-01T00:10:00Z"), series)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = m.FindIndex(ts("2024-01-01T01:05:00Z"), series)
	assert.True(t, ok)
	assert.Equal(t, 3, idx)

	idx, ok = m.FindIndex(ts("2024-01-01T00:10:00Z"), nil)
	assert.False(t, ok)
	assert.Equal(t, -1, idx)
}

func TestMatcher_LocalEntriesUseLocation(t *testing.T) {
	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	m := overlay.NewMatcher(overlay.MatcherConfig{Location: ams})

	// 01:00 in Amsterdam is 00:00 UTC in winter.
	idx, ok := m.FindIndex(ts("2024-01-01T00:00:00Z"), []string{"2024-01-01T00:00", "2024-01-01T01:00"})
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func record(t *testing.T, body string) *conditions.Record {
	t.Helper()
	rec, err := conditions.ParseRecord([]byte(body))
	require.NoError(t, err)
	return rec
}

func TestMatcher_Value(t *testing.T) {
	rec := record(t, `{"timezone":"Europe/Amsterdam","hourly_units":{"wave_height":"m"},`+
		`"hourly":{"time":["2024-01-01T00:00","2024-01-01T01:00","2024-01-01T02:00"],"wave_height":[1.5,null,2.5]}}`)
	m := overlay.NewMatcher(overlay.MatcherConfig{})

	at := func(s string) overlay.AnnotatedPoint {
		return overlay.AnnotatedPoint{Point: travel.Point{Timestamp: ts(s)}, Weather: rec}
	}

	// Record times are Amsterdam local: 02:00 local is 01:00 UTC.
	v := m.Value(at("2024-01-01T01:00:00Z"), conditions.MetricWaveHeight)
	assert.True(t, v.Valid)
	assert.Equal(t, 2.5, v.Value)
	assert.Equal(t, 2, v.Index)
	assert.Equal(t, "2024-01-01T02:00", v.Time)
	assert.Equal(t, "m", v.Unit)

	v = m.Value(at("2024-01-01T00:00:00Z"), conditions.MetricWaveHeight)
	assert.False(t, v.Valid, "null value")
	assert.Equal(t, 1, v.Index)

	v = m.Value(at("2024-01-02T00:00:00Z"), conditions.MetricWaveHeight)
	assert.False(t, v.Valid, "no match")
	assert.Equal(t, -1, v.Index)

	v = m.Value(at("2023-12-31T23:00:00Z"), "swell_wave_height")
	assert.False(t, v.Valid, "unknown metric")
	assert.Equal(t, 0, v.Index)

	v = m.Value(overlay.AnnotatedPoint{Point: travel.Point{Timestamp: ts("2024-01-01T00:00:00Z")}}, conditions.MetricWaveHeight)
	assert.False(t, v.Valid, "no record")
}

func TestMatcher_ValueUnknownZoneFallsBack(t *testing.T) {
	rec := record(t, `{"timezone":"Mars/Olympus","hourly":{"time":["2024-01-01T00:00"],"wave_height":[1]}}`)
	m := overlay.NewMatcher(overlay.MatcherConfig{})

	v := m.Value(overlay.AnnotatedPoint{Point: travel.Point{Timestamp: ts("2024-01-01T00:00:00Z")}, Weather: rec}, "wave_height")
	assert.True(t, v.Valid)
	assert.Equal(t, 1.0, v.Value)
}

func TestParseMatchMode(t *testing.T) {
	mode, err := overlay.ParseMatchMode("legacy")
	require.NoError(t, err)
	assert.Equal(t, overlay.MatchLegacy, mode)

	mode, err = overlay.ParseMatchMode("")
	require.NoError(t, err)
	assert.Equal(t, overlay.MatchAbsolute, mode)

	_, err = overlay.ParseMatchMode("fuzzy")
	assert.Error(t, err)
}
