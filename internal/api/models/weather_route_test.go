package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherroute/weatherroute/internal/api/models"
	"github.com/weatherroute/weatherroute/internal/overlay"
)

func TestAnnotateRequest_Validate(t *testing.T) {
	negative := -5.0
	bad := overlay.ColorScale{Metric: "wave_height", Min: 2, Max: 1, Stops: []string{"#000000"}}

	tests := []struct {
		name       string
		req        models.AnnotateRequest
		wantFields []string
	}{
		{
			name: "valid",
			req: models.AnnotateRequest{Points: []models.TravelPoint{
				{Timestamp: 1700000000, Latitude: 52.1, Longitude: 4.3},
			}},
		},
		{
			name:       "empty points are valid",
			req:        models.AnnotateRequest{},
			wantFields: nil,
		},
		{
			name: "out of range coordinates",
			req: models.AnnotateRequest{Points: []models.TravelPoint{
				{Latitude: 0, Longitude: 0},
				{Latitude: 91, Longitude: -181},
			}},
			wantFields: []string{"points[1].latitude", "points[1].longitude"},
		},
		{
			name:       "non-positive threshold",
			req:        models.AnnotateRequest{ThresholdMeters: &negative},
			wantFields: []string{"thresholdMeters"},
		},
		{
			name: "colour scale without metric uses default",
			req: models.AnnotateRequest{ColorScale: &overlay.ColorScale{
				Min: 0, Max: 4, Stops: []string{"#000000", "#ffffff"},
			}},
		},
		{
			name:       "invalid colour scale",
			req:        models.AnnotateRequest{ColorScale: &bad},
			wantFields: []string{"colorScale"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.req.Validate("wave_height")
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestAnnotateRequest_Options(t *testing.T) {
	threshold := 5000.0
	req := models.AnnotateRequest{Metric: "wind_wave_height", ThresholdMeters: &threshold}

	opts := req.Options()
	assert.Equal(t, "wind_wave_height", opts.Metric)
	assert.InDelta(t, 5000.0, opts.ThresholdMeters, 0)
	assert.Nil(t, opts.Scale)
}

func TestIngestRequest_Validate(t *testing.T) {
	empty := models.IngestRequest{}
	errs := empty.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "REQUIRED", errs[0].Code)

	ok := models.IngestRequest{Points: []models.TravelPoint{{Timestamp: 1, Latitude: 10, Longitude: 10}}}
	assert.Empty(t, ok.Validate())
}

func TestParseWeatherRouteQuery(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("defaults to last 24 hours", func(t *testing.T) {
		q, errs := models.ParseWeatherRouteQuery("", "", "", now)
		require.Empty(t, errs)
		assert.Equal(t, now, q.To)
		assert.Equal(t, now.Add(-24*time.Hour), q.From)
	})

	t.Run("explicit range", func(t *testing.T) {
		q, errs := models.ParseWeatherRouteQuery("2024-04-30T00:00:00Z", "2024-04-30T06:00:00Z", "wave_height", now)
		require.Empty(t, errs)
		assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), q.Range().From)
		assert.Equal(t, time.Date(2024, 4, 30, 6, 0, 0, 0, time.UTC), q.Range().To)
		assert.Equal(t, "wave_height", q.Metric)
	})

	t.Run("malformed timestamps", func(t *testing.T) {
		_, errs := models.ParseWeatherRouteQuery("yesterday", "today", "", now)
		require.Len(t, errs, 2)
		assert.Equal(t, "to", errs[0].Field)
		assert.Equal(t, "from", errs[1].Field)
	})

	t.Run("reversed range", func(t *testing.T) {
		_, errs := models.ParseWeatherRouteQuery("2024-04-30T06:00:00Z", "2024-04-30T00:00:00Z", "", now)
		require.Len(t, errs, 1)
		assert.Equal(t, "OUT_OF_RANGE", errs[0].Code)
	})
}

func TestHealthStatusFromRegistry(t *testing.T) {
	assert.Equal(t, models.HealthStatusOK, models.HealthStatusFromRegistry("ok"))
	assert.Equal(t, models.HealthStatusDegraded, models.HealthStatusFromRegistry("degraded"))
	assert.Equal(t, models.HealthStatusFail, models.HealthStatusFromRegistry("unhealthy"))
}

func TestTimestamp_JSONRoundTrip(t *testing.T) {
	ts := models.Timestamp(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	data, err := ts.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T12:00:00Z"`, string(data))

	var parsed models.Timestamp
	require.NoError(t, parsed.UnmarshalJSON(data))
	assert.True(t, ts.Time().Equal(parsed.Time()))

	assert.Error(t, parsed.UnmarshalJSON([]byte(`"`)))
}
