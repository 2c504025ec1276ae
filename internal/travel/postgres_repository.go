package travel

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL travel repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListPoints returns the points of a vessel within the range, ordered by timestamp.
func (r *PostgresRepository) ListPoints(ctx context.Context, vesselID string, rng Range) ([]Point, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM travel_points WHERE vessel_id = $1)`,
		vesselID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking vessel: %w", err)
	}
	if !exists {
		return nil, ErrVesselNotFound
	}

	query := `
		SELECT ts, latitude, longitude
		FROM travel_points
		WHERE vessel_id = $1 AND ts BETWEEN $2 AND $3
		ORDER BY ts
	`

	rows, err := r.pool.Query(ctx, query, vesselID, rng.From.Unix(), rng.To.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying travel points: %w", err)
	}
	defer rows.Close()

	points := make([]Point, 0)
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Timestamp, &p.Latitude, &p.Longitude); err != nil {
			return nil, fmt.Errorf("scanning travel point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// AppendPoints stores points for a vessel, skipping timestamps already stored.
func (r *PostgresRepository) AppendPoints(ctx context.Context, vesselID string, points []Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO travel_points (vessel_id, ts, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vessel_id, ts) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(query, vesselID, p.Timestamp, p.Latitude, p.Longitude)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range points {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting travel point: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	return inserted, nil
}

// ListActiveVessels returns vessels with at least one point at or after since.
func (r *PostgresRepository) ListActiveVessels(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT vessel_id FROM travel_points WHERE ts >= $1 ORDER BY vessel_id`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying active vessels: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning active vessels: %w", err)
	}

	return ids, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
