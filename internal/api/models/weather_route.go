package models

import (
	"fmt"
	"time"

	"github.com/weatherroute/weatherroute/internal/overlay"
	"github.com/weatherroute/weatherroute/internal/travel"
)

// MaxAnnotatePoints caps the number of points in one annotate request.
const MaxAnnotatePoints = 10_000

// TravelPoint is a position report in request bodies.
type TravelPoint struct {
	Timestamp int64   `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ToTravelPoints converts request points to domain points.
func ToTravelPoints(in []TravelPoint) []travel.Point {
	out := make([]travel.Point, len(in))
	for i, p := range in {
		out[i] = travel.Point{Timestamp: p.Timestamp, Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return out
}

// AnnotateRequest is the body of POST /v1/weather-routes:annotate.
type AnnotateRequest struct {
	Points          []TravelPoint       `json:"points"`
	Metric          string              `json:"metric,omitempty"`
	ThresholdMeters *float64            `json:"thresholdMeters,omitempty"`
	ColorScale      *overlay.ColorScale `json:"colorScale,omitempty"`
}

// Validate returns field errors for the request, or nil. defaultMetric
// stands in for a colour scale without a metric.
func (r *AnnotateRequest) Validate(defaultMetric string) []FieldError {
	var errs []FieldError
	if len(r.Points) > MaxAnnotatePoints {
		errs = append(errs, FieldError{
			Field:   "points",
			Message: fmt.Sprintf("must contain at most %d points", MaxAnnotatePoints),
			Code:    "TOO_MANY",
		})
	}
	errs = append(errs, validatePoints("points", r.Points)...)
	if r.ThresholdMeters != nil && *r.ThresholdMeters <= 0 {
		errs = append(errs, FieldError{Field: "thresholdMeters", Message: "must be positive", Code: "OUT_OF_RANGE"})
	}
	if r.ColorScale != nil {
		scale := r.ColorScale.WithMetric(r.Metric).WithMetric(defaultMetric)
		if err := scale.Validate(); err != nil {
			errs = append(errs, FieldError{Field: "colorScale", Message: err.Error(), Code: "INVALID"})
		}
	}
	return errs
}

// Options returns the overlay options requested.
func (r *AnnotateRequest) Options() overlay.Options {
	opts := overlay.Options{Metric: r.Metric, Scale: r.ColorScale}
	if r.ThresholdMeters != nil {
		opts.ThresholdMeters = *r.ThresholdMeters
	}
	return opts
}

// IngestRequest is the body of POST /v1/vessels/{vesselId}/travel-points.
type IngestRequest struct {
	Points []TravelPoint `json:"points"`
}

// Validate returns field errors for the request, or nil.
func (r *IngestRequest) Validate() []FieldError {
	if len(r.Points) == 0 {
		return []FieldError{{Field: "points", Message: "required", Code: "REQUIRED"}}
	}
	return validatePoints("points", r.Points)
}

// IngestResponse reports the outcome of an ingest call.
type IngestResponse struct {
	VesselID string `json:"vesselId"`
	Received int    `json:"received"`
	Inserted int    `json:"inserted"`
}

// WeatherRouteQuery holds the parsed query of GET /v1/vessels/{vesselId}/weather-route.
type WeatherRouteQuery struct {
	From   time.Time
	To     time.Time
	Metric string
}

// ParseWeatherRouteQuery parses from/to (RFC3339) and metric. from defaults to
// 24 hours before to; to defaults to now.
func ParseWeatherRouteQuery(from, to, metric string, now time.Time) (WeatherRouteQuery, []FieldError) {
	q := WeatherRouteQuery{To: now, Metric: metric}
	var errs []FieldError

	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			errs = append(errs, FieldError{Field: "to", Message: "must be an RFC3339 timestamp", Code: "INVALID_FORMAT"})
		} else {
			q.To = t
		}
	}
	q.From = q.To.Add(-24 * time.Hour)
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			errs = append(errs, FieldError{Field: "from", Message: "must be an RFC3339 timestamp", Code: "INVALID_FORMAT"})
		} else {
			q.From = t
		}
	}
	if len(errs) == 0 && q.To.Before(q.From) {
		errs = append(errs, FieldError{Field: "from", Message: "must not be after to", Code: "OUT_OF_RANGE"})
	}
	return q, errs
}

// Range returns the query's time range.
func (q WeatherRouteQuery) Range() travel.Range {
	return travel.Range{From: q.From, To: q.To}
}

// MetricInfo describes a metric the overlay can colour.
type MetricInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
}

// Metrics lists the metrics the overlay supports.
type Metrics struct {
	Items   []MetricInfo       `json:"items"`
	Default overlay.ColorScale `json:"defaultColorScale"`
}

func validatePoints(field string, points []TravelPoint) []FieldError {
	var errs []FieldError
	for i, p := range points {
		if p.Latitude < -90 || p.Latitude > 90 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("%s[%d].latitude", field, i),
				Message: "must be between -90 and 90",
				Code:    "OUT_OF_RANGE",
			})
		}
		if p.Longitude < -180 || p.Longitude > 180 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("%s[%d].longitude", field, i),
				Message: "must be between -180 and 180",
				Code:    "OUT_OF_RANGE",
			})
		}
	}
	return errs
}
