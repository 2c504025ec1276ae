// Package conditions fetches and caches marine weather conditions records
// from the conditions backend.
package conditions

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Conditions errors.
var (
	ErrProviderUnavailable = errors.New("conditions provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
	ErrMalformedRecord     = errors.New("malformed conditions record")
)

// DateLayout is the calendar date format used by the conditions endpoint.
const DateLayout = "2006-01-02"

// Common hourly metric names.
const (
	MetricWaveHeight      = "wave_height"
	MetricWaveDirection   = "wave_direction"
	MetricWavePeriod      = "wave_period"
	MetricSwellWaveHeight = "swell_wave_height"
	MetricWindWaveHeight  = "wind_wave_height"
)

// Query identifies one conditions lookup: a location and a calendar date.
type Query struct {
	Latitude  float64
	Longitude float64

	// Date is a calendar date in DateLayout.
	Date string

	// Timezone is the IANA zone the date and hourly times refer to.
	// Empty means the backend default.
	Timezone string
}

// Validate checks coordinates and date format.
func (q Query) Validate() error {
	if q.Latitude < -90 || q.Latitude > 90 || q.Longitude < -180 || q.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	if _, err := time.Parse(DateLayout, q.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Record is the conditions backend response for one query. The body is
// kept verbatim in Raw; the other fields are a decoded view of it.
// Records are shared between points and must not be modified.
type Record struct {
	Latitude    float64           `json:"latitude"`
	Longitude   float64           `json:"longitude"`
	Timezone    string            `json:"timezone,omitempty"`
	Hourly      Hourly            `json:"hourly"`
	HourlyUnits map[string]string `json:"hourly_units,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseRecord decodes a response body into a Record, keeping a copy of the body.
func ParseRecord(body []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	rec.Raw = append(json.RawMessage(nil), body...)
	return &rec, nil
}

// MarshalJSON writes the original response body when available.
func (r *Record) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	type plain Record
	return json.Marshal((*plain)(r))
}

// Series returns the hourly values of a metric.
func (r *Record) Series(metric string) ([]*float64, bool) {
	s, ok := r.Hourly.Metrics[metric]
	return s, ok
}

// Value returns the metric value at an hourly index. Missing metrics,
// out-of-range indexes and null values report false. Series shorter than
// Time are accepted as delivered, so the tail of a short series is not valid.
func (r *Record) Value(metric string, idx int) (float64, bool) {
	s, ok := r.Hourly.Metrics[metric]
	if !ok || idx < 0 || idx >= len(s) || s[idx] == nil {
		return 0, false
	}
	return *s[idx], true
}

// Unit returns the unit of a metric, or "" if unknown.
func (r *Record) Unit(metric string) string {
	return r.HourlyUnits[metric]
}

// Hourly holds the parallel hourly arrays: Time plus one series per metric.
type Hourly struct {
	Time    []string
	Metrics map[string][]*float64
}

// UnmarshalJSON splits the "time" array from the metric arrays. Entries
// that are not numeric arrays are ignored.
func (h *Hourly) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	h.Metrics = make(map[string][]*float64, len(fields))
	for name, raw := range fields {
		if name == "time" {
			if err := json.Unmarshal(raw, &h.Time); err != nil {
				return fmt.Errorf("%w: hourly.time: %w", ErrMalformedRecord, err)
			}
			continue
		}

		var series []*float64
		if err := json.Unmarshal(raw, &series); err != nil {
			continue
		}
		h.Metrics[name] = series
	}

	return nil
}

// MarshalJSON writes the time array and metric arrays as one object.
func (h Hourly) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(h.Metrics)+1)
	for name, series := range h.Metrics {
		out[name] = series
	}
	out["time"] = h.Time
	return json.Marshal(out)
}
