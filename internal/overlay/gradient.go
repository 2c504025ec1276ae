package overlay

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/weatherroute/weatherroute/internal/conditions"
)

// ErrInvalidScale is returned for an unusable ColorScale.
var ErrInvalidScale = errors.New("invalid color scale")

// DefaultMissingColor is used for points without a value.
const DefaultMissingColor = "#9e9e9e"

// ColorScale maps metric values onto a colour gradient. Values outside
// [Min, Max] clamp to the end stops.
type ColorScale struct {
	Metric       string   `json:"metric" mapstructure:"metric"`
	Min          float64  `json:"min" mapstructure:"min"`
	Max          float64  `json:"max" mapstructure:"max"`
	Stops        []string `json:"stops" mapstructure:"stops"`
	MissingColor string   `json:"missingColor,omitempty" mapstructure:"missing_color"`
}

// DefaultColorScale is a green to red wave height scale in meters.
func DefaultColorScale() ColorScale {
	return ColorScale{
		Metric:       conditions.MetricWaveHeight,
		Min:          0,
		Max:          6,
		Stops:        []string{"#2e7d32", "#fbc02d", "#ef6c00", "#c62828"},
		MissingColor: DefaultMissingColor,
	}
}

// metricRanges are the default [min, max] per metric.
var metricRanges = map[string][2]float64{
	conditions.MetricWaveHeight:      {0, 6},
	conditions.MetricSwellWaveHeight: {0, 6},
	conditions.MetricWindWaveHeight:  {0, 4},
	conditions.MetricWavePeriod:      {0, 20},
	conditions.MetricWaveDirection:   {0, 360},
}

// DefaultRange returns the value range used to colour metric when no
// scale is supplied.
func DefaultRange(metric string) (lo, hi float64, ok bool) {
	r, ok := metricRanges[metric]
	return r[0], r[1], ok
}

// ForMetric returns a copy of the scale switched to metric. A known
// metric also takes its default range; unknown metrics keep the current one.
func (s ColorScale) ForMetric(metric string) ColorScale {
	if metric == "" || metric == s.Metric {
		return s
	}
	s.Metric = metric
	if lo, hi, ok := DefaultRange(metric); ok {
		s.Min, s.Max = lo, hi
	}
	return s
}

// WithMetric returns a copy of the scale with Metric set when it is empty.
func (s ColorScale) WithMetric(metric string) ColorScale {
	if s.Metric == "" {
		s.Metric = metric
	}
	return s
}

// Validate checks the range and every stop.
func (s ColorScale) Validate() error {
	if s.Metric == "" {
		return fmt.Errorf("%w: metric is required", ErrInvalidScale)
	}
	if math.IsNaN(s.Min) || math.IsNaN(s.Max) || s.Max <= s.Min {
		return fmt.Errorf("%w: max must be greater than min", ErrInvalidScale)
	}
	if len(s.Stops) < 2 {
		return fmt.Errorf("%w: at least two stops are required", ErrInvalidScale)
	}
	for _, stop := range s.Stops {
		if _, err := colorful.Hex(stop); err != nil {
			return fmt.Errorf("%w: stop %q: %w", ErrInvalidScale, stop, err)
		}
	}
	if s.MissingColor != "" {
		if _, err := colorful.Hex(s.MissingColor); err != nil {
			return fmt.Errorf("%w: missing color %q: %w", ErrInvalidScale, s.MissingColor, err)
		}
	}
	return nil
}

// Gradient is a validated ColorScale ready for lookups.
type Gradient struct {
	scale   ColorScale
	stops   []colorful.Color
	missing string
}

// NewGradient validates scale and parses its stops.
func NewGradient(scale ColorScale) (*Gradient, error) {
	if err := scale.Validate(); err != nil {
		return nil, err
	}

	stops := make([]colorful.Color, len(scale.Stops))
	for i, s := range scale.Stops {
		stops[i], _ = colorful.Hex(s)
	}

	missing := scale.MissingColor
	if missing == "" {
		missing = DefaultMissingColor
	}

	return &Gradient{scale: scale, stops: stops, missing: missing}, nil
}

// Scale returns the underlying configuration.
func (g *Gradient) Scale() ColorScale {
	return g.scale
}

// Color returns the hex colour for a metric value.
func (g *Gradient) Color(v MetricValue) string {
	if !v.Valid {
		return g.missing
	}

	t := (v.Value - g.scale.Min) / (g.scale.Max - g.scale.Min)
	t = math.Max(0, math.Min(1, t))

	segments := float64(len(g.stops) - 1)
	pos := t * segments
	i := int(math.Floor(pos))
	if i >= len(g.stops)-1 {
		return g.stops[len(g.stops)-1].Hex()
	}

	return g.stops[i].BlendLab(g.stops[i+1], pos-float64(i)).Clamped().Hex()
}
