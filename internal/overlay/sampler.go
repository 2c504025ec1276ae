// Package overlay attaches marine conditions to vessel travel points and
// builds the coloured route overlay.
package overlay

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/weatherroute/weatherroute/internal/conditions"
	"github.com/weatherroute/weatherroute/internal/timezone"
	"github.com/weatherroute/weatherroute/internal/travel"
)

// DefaultConcurrency is the number of group fetches in flight at once.
const DefaultConcurrency = 4

// Fetcher loads the conditions record for a query.
type Fetcher interface {
	FetchConditions(ctx context.Context, q conditions.Query) (*conditions.Record, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q conditions.Query) (*conditions.Record, error)

// FetchConditions calls f.
func (f FetcherFunc) FetchConditions(ctx context.Context, q conditions.Query) (*conditions.Record, error) {
	return f(ctx, q)
}

// FailurePolicy controls how a failed group fetch affects a Sample call.
type FailurePolicy int

const (
	// FailurePolicyIsolate keeps successful groups and reports failed ones
	// in the result.
	FailurePolicyIsolate FailurePolicy = iota

	// FailurePolicyAllOrNothing cancels outstanding fetches on the first
	// failure and returns it.
	FailurePolicyAllOrNothing
)

func (p FailurePolicy) String() string {
	switch p {
	case FailurePolicyIsolate:
		return "isolate"
	case FailurePolicyAllOrNothing:
		return "all-or-nothing"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy parses "isolate" or "all-or-nothing".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "isolate":
		return FailurePolicyIsolate, nil
	case "all-or-nothing":
		return FailurePolicyAllOrNothing, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}

// AnnotatedPoint is a travel point with the record of its group.
type AnnotatedPoint struct {
	Point   travel.Point
	Weather *conditions.Record
}

// GroupResult is the outcome of one group fetch. Exactly one of Record and
// Err is set.
type GroupResult struct {
	Group  travel.Group
	Query  conditions.Query
	Record *conditions.Record
	Err    error
}

// SampleResult holds one GroupResult per input group, in input order.
type SampleResult struct {
	Groups []GroupResult
}

// Flatten returns the annotated points of every successful group, group
// by group, preserving order within each group.
func (r *SampleResult) Flatten() []AnnotatedPoint {
	n := 0
	for _, g := range r.Groups {
		if g.Err == nil {
			n += g.Group.Len()
		}
	}

	out := make([]AnnotatedPoint, 0, n)
	for _, g := range r.Groups {
		if g.Err != nil {
			continue
		}
		for _, p := range g.Group.Points {
			out = append(out, AnnotatedPoint{Point: p, Weather: g.Record})
		}
	}
	return out
}

// Failed returns the groups whose fetch failed.
func (r *SampleResult) Failed() []GroupResult {
	var failed []GroupResult
	for _, g := range r.Groups {
		if g.Err != nil {
			failed = append(failed, g)
		}
	}
	return failed
}

// Err aggregates the failures of all failed groups, or returns nil.
func (r *SampleResult) Err() error {
	var merr *multierror.Error
	for i, g := range r.Groups {
		if g.Err != nil {
			merr = multierror.Append(merr, groupError(i, g.Group, g.Err))
		}
	}
	return merr.ErrorOrNil()
}

func groupError(i int, g travel.Group, err error) error {
	a := g.Anchor()
	return fmt.Errorf("group %d at %.4f,%.4f: %w", i, a.Latitude, a.Longitude, err)
}

// SamplerConfig holds configuration for the Sampler.
type SamplerConfig struct {
	// Fetcher loads conditions records (required).
	Fetcher Fetcher

	// Zoner picks the zone of each anchor's calendar date (default: UTC).
	Zoner timezone.Zoner

	// Concurrency bounds in-flight fetches (default: DefaultConcurrency).
	Concurrency int

	// Policy selects failure handling (default: FailurePolicyIsolate).
	Policy FailurePolicy

	// Logger for sampler operations.
	Logger zerolog.Logger
}

// Sampler fetches one conditions record per group and attaches it to the
// group's points.
type Sampler struct {
	fetcher     Fetcher
	zoner       timezone.Zoner
	concurrency int
	policy      FailurePolicy
	logger      zerolog.Logger
}

// NewSampler creates a Sampler.
func NewSampler(cfg SamplerConfig) *Sampler {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	zoner := cfg.Zoner
	if zoner == nil {
		zoner = timezone.Fixed{}
	}

	return &Sampler{
		fetcher:     cfg.Fetcher,
		zoner:       zoner,
		concurrency: concurrency,
		policy:      cfg.Policy,
		logger:      cfg.Logger,
	}
}

// QueryFor builds the lookup for a group: the anchor's coordinates and its
// calendar date in the anchor's zone.
func (s *Sampler) QueryFor(g travel.Group) conditions.Query {
	a := g.Anchor()
	loc := s.zoner.Zone(a.Latitude, a.Longitude)
	return conditions.Query{
		Latitude:  a.Latitude,
		Longitude: a.Longitude,
		Date:      a.Time().In(loc).Format(conditions.DateLayout),
		Timezone:  loc.String(),
	}
}

// Sample fetches each group's record exactly once. Under FailurePolicyIsolate
// the returned error is non-nil only when ctx ends; per-group failures are
// in the result. Under FailurePolicyAllOrNothing the first failure is returned.
func (s *Sampler) Sample(ctx context.Context, groups []travel.Group) (*SampleResult, error) {
	results := make([]GroupResult, len(groups))
	if len(groups) == 0 {
		return &SampleResult{Groups: results}, nil
	}

	var eg *errgroup.Group
	egCtx := ctx
	if s.policy == FailurePolicyAllOrNothing {
		eg, egCtx = errgroup.WithContext(ctx)
	} else {
		eg = &errgroup.Group{}
	}
	eg.SetLimit(s.concurrency)

	for i, g := range groups {
		results[i] = GroupResult{Group: g, Query: s.QueryFor(g)}

		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				results[i].Err = err
				return err
			}

			rec, err := s.fetcher.FetchConditions(egCtx, results[i].Query)
			if err != nil {
				results[i].Err = err
				s.logger.Warn().Err(err).
					Int("group", i).
					Int("points", g.Len()).
					Str("date", results[i].Query.Date).
					Msg("conditions fetch failed for group")
				if s.policy == FailurePolicyAllOrNothing {
					return groupError(i, g, err)
				}
				return nil
			}

			results[i].Record = rec
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("groups", len(groups)).
		Int("concurrency", s.concurrency).
		Str("policy", s.policy.String()).
		Msg("sampled conditions")

	return &SampleResult{Groups: results}, nil
}
