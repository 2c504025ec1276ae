package travel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Service errors.
var (
	ErrRangeTooLong  = errors.New("time range too long")
	ErrEmptyVesselID = errors.New("vessel id is required")
	ErrTooManyPoints = errors.New("too many points")
)

// ServiceConfig holds configuration for the travel service.
type ServiceConfig struct {
	// Repository stores the travel history.
	Repository Repository

	// Logger for service operations.
	Logger zerolog.Logger

	// MaxRange caps the span of a single route query (default: 31 days).
	MaxRange time.Duration

	// MaxIngestBatch caps the number of points in one ingest call (default: 5000).
	MaxIngestBatch int
}

// Service provides travel history queries.
type Service struct {
	repo           Repository
	logger         zerolog.Logger
	maxRange       time.Duration
	maxIngestBatch int
}

// NewService creates a new travel service.
func NewService(cfg ServiceConfig) *Service {
	maxRange := cfg.MaxRange
	if maxRange == 0 {
		maxRange = 31 * 24 * time.Hour
	}

	maxBatch := cfg.MaxIngestBatch
	if maxBatch == 0 {
		maxBatch = 5000
	}

	return &Service{
		repo:           cfg.Repository,
		logger:         cfg.Logger,
		maxRange:       maxRange,
		maxIngestBatch: maxBatch,
	}
}

// Route returns the travel points of a vessel within the range.
func (s *Service) Route(ctx context.Context, vesselID string, rng Range) ([]Point, error) {
	vesselID = strings.TrimSpace(vesselID)
	if vesselID == "" {
		return nil, ErrEmptyVesselID
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if rng.To.Sub(rng.From) > s.maxRange {
		return nil, ErrRangeTooLong
	}

	points, err := s.repo.ListPoints(ctx, vesselID, rng)
	if err != nil {
		if !errors.Is(err, ErrVesselNotFound) {
			s.logger.Error().Err(err).
				Str("vessel_id", vesselID).
				Msg("failed to load travel points")
		}
		return nil, err
	}

	s.logger.Debug().
		Str("vessel_id", vesselID).
		Int("points", len(points)).
		Msg("loaded travel points")

	return points, nil
}

// Ingest validates and stores points for a vessel. Returns the number of new points.
func (s *Service) Ingest(ctx context.Context, vesselID string, points []Point) (int, error) {
	vesselID = strings.TrimSpace(vesselID)
	if vesselID == "" {
		return 0, ErrEmptyVesselID
	}
	if len(points) > s.maxIngestBatch {
		return 0, ErrTooManyPoints
	}
	for i, p := range points {
		if err := p.Validate(); err != nil {
			return 0, fmt.Errorf("point %d: %w", i, err)
		}
	}

	inserted, err := s.repo.AppendPoints(ctx, vesselID, points)
	if err != nil {
		return 0, fmt.Errorf("storing travel points: %w", err)
	}

	s.logger.Info().
		Str("vessel_id", vesselID).
		Int("received", len(points)).
		Int("inserted", inserted).
		Msg("ingested travel points")

	return inserted, nil
}

// ActiveVessels returns the vessels that reported a position since the given time.
func (s *Service) ActiveVessels(ctx context.Context, since time.Time) ([]string, error) {
	return s.repo.ListActiveVessels(ctx, since)
}
