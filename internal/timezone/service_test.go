package timezone_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weatherroute/weatherroute/internal/timezone"
)

func TestFixed(t *testing.T) {
	assert.Equal(t, time.UTC, timezone.Fixed{}.Zone(52, 4))

	ams, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	assert.Equal(t, ams, timezone.Fixed{Location: ams}.Zone(-33, 151))
}

func TestService_GetTimezone(t *testing.T) {
	svc, err := timezone.NewService(nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		lat  float64
		lon  float64
		want string
	}{
		{"amsterdam", 52.3676, 4.9041, "Europe/Amsterdam"},
		{"new york", 40.7128, -74.0060, "America/New_York"},
		{"tokyo", 35.6762, 139.6503, "Asia/Tokyo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.GetTimezone(tt.lat, tt.lon)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_Zone(t *testing.T) {
	svc, err := timezone.NewService(nil)
	require.NoError(t, err)

	loc := svc.Zone(52.3676, 4.9041)
	assert.Equal(t, "Europe/Amsterdam", loc.String())

	// Second lookup hits the location cache.
	assert.Same(t, loc, svc.Zone(52.37, 4.90))
}

func TestService_ZoneAtSea(t *testing.T) {
	svc, err := timezone.NewService(nil)
	require.NoError(t, err)

	// Mid-Atlantic resolves to some zone; whichever it is, it must be usable.
	loc := svc.Zone(30, -40)
	require.NotNil(t, loc)
	assert.NotPanics(t, func() { time.Unix(0, 0).In(loc) })
}
