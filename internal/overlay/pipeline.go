package overlay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/twpayne/go-polyline"

	"github.com/weatherroute/weatherroute/internal/travel"
)

// Options controls one Annotate call. Zero fields use the pipeline defaults.
type Options struct {
	Metric          string
	ThresholdMeters float64
	Scale           *ColorScale
}

// Overlay is an annotated route ready for display.
type Overlay struct {
	Metric string `json:"metric"`
	Unit   string `json:"unit,omitempty"`

	// Points are ordered group by group, as sampled.
	Points []OverlayPoint `json:"points"`

	GroupCount   int           `json:"groupCount"`
	FailedGroups []FailedGroup `json:"failedGroups"`

	// Polyline is the encoded path of Points in timestamp order.
	Polyline string `json:"polyline"`

	Scale ColorScale `json:"colorScale"`
}

// OverlayPoint is one travel point with its metric value and display data.
type OverlayPoint struct {
	Timestamp int64    `json:"timestamp"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Group     int      `json:"group"`
	Value     *float64 `json:"value"`
	HourIndex int      `json:"hourIndex"`
	Color     string   `json:"color"`
	Tooltip   string   `json:"tooltip"`
}

// FailedGroup describes a group whose conditions could not be fetched.
type FailedGroup struct {
	Group  int          `json:"group"`
	Anchor travel.Point `json:"anchor"`
	Points int          `json:"points"`
	Error  string       `json:"error"`
}

// PipelineConfig holds configuration for the Pipeline.
type PipelineConfig struct {
	Sampler *Sampler
	Matcher *Matcher

	// ThresholdMeters is the default grouping distance.
	ThresholdMeters float64

	// Scale is the default colour scale (default: DefaultColorScale).
	Scale *ColorScale

	Logger zerolog.Logger
}

// Pipeline groups, samples and colours travel points.
type Pipeline struct {
	sampler   *Sampler
	matcher   *Matcher
	threshold float64
	scale     ColorScale
	logger    zerolog.Logger
}

// NewPipeline creates a Pipeline. The default scale must be valid.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	scale := DefaultColorScale()
	if cfg.Scale != nil {
		scale = *cfg.Scale
	}
	if err := scale.Validate(); err != nil {
		return nil, err
	}

	matcher := cfg.Matcher
	if matcher == nil {
		matcher = NewMatcher(MatcherConfig{})
	}

	threshold := cfg.ThresholdMeters
	if threshold <= 0 {
		threshold = travel.DefaultThresholdMeters
	}

	return &Pipeline{
		sampler:   cfg.Sampler,
		matcher:   matcher,
		threshold: threshold,
		scale:     scale,
		logger:    cfg.Logger,
	}, nil
}

// Sampler returns the pipeline's sampler.
func (p *Pipeline) Sampler() *Sampler {
	return p.sampler
}

// DefaultScale returns the colour scale used when a call supplies none.
func (p *Pipeline) DefaultScale() ColorScale {
	return p.scale
}

// Threshold returns the default grouping distance in meters.
func (p *Pipeline) Threshold() float64 {
	return p.threshold
}

// Annotate runs the full overlay for points.
func (p *Pipeline) Annotate(ctx context.Context, points []travel.Point, opts Options) (*Overlay, error) {
	scale := p.scale.ForMetric(opts.Metric)
	if opts.Scale != nil {
		scale = *opts.Scale
		if opts.Metric != "" {
			scale.Metric = opts.Metric
		}
	}
	scale = scale.WithMetric(p.scale.Metric)

	gradient, err := NewGradient(scale)
	if err != nil {
		return nil, err
	}

	for i, pt := range points {
		if err := pt.Validate(); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}

	threshold := opts.ThresholdMeters
	if threshold <= 0 {
		threshold = p.threshold
	}

	start := time.Now()
	groups := travel.NewGrouper(threshold).Group(points)

	result, err := p.sampler.Sample(ctx, groups)
	if err != nil {
		return nil, err
	}

	out := &Overlay{
		Metric:       scale.Metric,
		Points:       make([]OverlayPoint, 0, len(points)),
		GroupCount:   len(groups),
		FailedGroups: make([]FailedGroup, 0),
		Scale:        gradient.Scale(),
	}

	for gi, gr := range result.Groups {
		if gr.Err != nil {
			out.FailedGroups = append(out.FailedGroups, FailedGroup{
				Group:  gi,
				Anchor: gr.Group.Anchor(),
				Points: gr.Group.Len(),
				Error:  gr.Err.Error(),
			})
			continue
		}

		for _, pt := range gr.Group.Points {
			mv := p.matcher.Value(AnnotatedPoint{Point: pt, Weather: gr.Record}, scale.Metric)
			if out.Unit == "" {
				out.Unit = mv.Unit
			}
			op := OverlayPoint{
				Timestamp: pt.Timestamp,
				Latitude:  pt.Latitude,
				Longitude: pt.Longitude,
				Group:     gi,
				HourIndex: mv.Index,
				Color:     gradient.Color(mv),
				Tooltip:   tooltip(scale.Metric, mv),
			}
			if mv.Valid {
				v := mv.Value
				op.Value = &v
			}
			out.Points = append(out.Points, op)
		}
	}

	out.Polyline = encodePath(out.Points)

	p.logger.Info().
		Int("points", len(points)).
		Int("groups", len(groups)).
		Int("failed_groups", len(out.FailedGroups)).
		Str("metric", scale.Metric).
		Dur("duration", time.Since(start)).
		Msg("annotated weather route")

	return out, nil
}

func tooltip(metric string, mv MetricValue) string {
	if !mv.Valid {
		return fmt.Sprintf("%s: no data", metric)
	}
	if mv.Unit == "" {
		return fmt.Sprintf("%s: %.2f at %s", metric, mv.Value, mv.Time)
	}
	return fmt.Sprintf("%s: %.2f %s at %s", metric, mv.Value, mv.Unit, mv.Time)
}

// pathOrder returns the points sorted by timestamp, stable for ties.
func pathOrder(points []OverlayPoint) []OverlayPoint {
	path := make([]OverlayPoint, len(points))
	copy(path, points)
	sort.SliceStable(path, func(i, j int) bool {
		return path[i].Timestamp < path[j].Timestamp
	})
	return path
}

func encodePath(points []OverlayPoint) string {
	coords := make([][]float64, 0, len(points))
	for _, pt := range pathOrder(points) {
		coords = append(coords, []float64{pt.Latitude, pt.Longitude})
	}
	return string(polyline.EncodeCoords(coords))
}
