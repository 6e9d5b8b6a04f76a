package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Floors returns every floor in insertion order with its spots.
func (p *PostgresClient) Floors(ctx context.Context) ([]types.Floor, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT f.label, s.id, s.name, s.status
		FROM floors f
		LEFT JOIN spots s ON s.floor_label = f.label
		ORDER BY f.position, s.position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query floors: %w", err)
	}
	defer rows.Close()

	floors := make([]types.Floor, 0)
	for rows.Next() {
		var (
			label            string
			id, name, status *string
		)
		if err := rows.Scan(&label, &id, &name, &status); err != nil {
			return nil, fmt.Errorf("failed to scan spot: %w", err)
		}

		if len(floors) == 0 || floors[len(floors)-1].Label != label {
			floors = append(floors, types.Floor{Label: label, Spots: []types.Spot{}})
		}
		if id != nil {
			f := &floors[len(floors)-1]
			f.Spots = append(f.Spots, types.Spot{ID: *id, Name: *name, Status: types.SpotStatus(*status)})
		}
	}

	return floors, rows.Err()
}

func (p *PostgresClient) Spot(ctx context.Context, id string) (types.Spot, error) {
	var (
		s      types.Spot
		status string
	)
	err := p.pool.QueryRow(ctx, `SELECT id, name, status FROM spots WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Spot{}, fmt.Errorf("%w: %s", locations.ErrSpotNotFound, id)
	}
	if err != nil {
		return types.Spot{}, fmt.Errorf("failed to get spot: %w", err)
	}
	s.Status = types.SpotStatus(status)
	return s, nil
}

// Occupy flips a spot to occupied only if it is still available, so two
// sessions cannot both claim it.
func (p *PostgresClient) Occupy(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE spots SET status = 'occupied' WHERE id = $1 AND status = 'available'`, id)
	if err != nil {
		return fmt.Errorf("failed to occupy spot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := p.Spot(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", locations.ErrSpotUnavailable, id)
}

func (p *PostgresClient) Release(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE spots SET status = 'available' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to release spot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", locations.ErrSpotNotFound, id)
	}
	return nil
}

func (p *PostgresClient) AddFloor(ctx context.Context, label string) error {
	if label == "" {
		return fmt.Errorf("floor label is required")
	}

	_, err := p.pool.Exec(ctx, `INSERT INTO floors (label) VALUES ($1)`, label)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", locations.ErrFloorExists, label)
	}
	if err != nil {
		return fmt.Errorf("failed to add floor: %w", err)
	}
	return nil
}

func (p *PostgresClient) DeleteFloor(ctx context.Context, label string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var occupied int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM spots WHERE floor_label = $1 AND status = 'occupied'`, label).Scan(&occupied)
	if err != nil {
		return fmt.Errorf("failed to check floor: %w", err)
	}
	if occupied > 0 {
		return fmt.Errorf("%w: floor %s has occupied spots", locations.ErrInUse, label)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM floors WHERE label = $1`, label)
	if err != nil {
		return fmt.Errorf("failed to delete floor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", locations.ErrFloorNotFound, label)
	}

	return tx.Commit(ctx)
}

func (p *PostgresClient) AddSpot(ctx context.Context, floor string, spot types.Spot) (types.Spot, error) {
	if spot.Name == "" {
		return types.Spot{}, fmt.Errorf("spot name is required")
	}
	if spot.Status == "" {
		spot.Status = types.SpotAvailable
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return types.Spot{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM floors WHERE label = $1)`, floor).Scan(&exists); err != nil {
		return types.Spot{}, fmt.Errorf("failed to check floor: %w", err)
	}
	if !exists {
		return types.Spot{}, fmt.Errorf("%w: %s", locations.ErrFloorNotFound, floor)
	}

	if spot.ID == "" {
		taken, err := spotIDs(ctx, tx)
		if err != nil {
			return types.Spot{}, err
		}
		spot.ID = locations.NextSpotID(floor, taken)
	}

	_, err = tx.Exec(ctx, `INSERT INTO spots (id, floor_label, name, status) VALUES ($1, $2, $3, $4)`,
		spot.ID, floor, spot.Name, string(spot.Status))
	if isUniqueViolation(err) {
		return types.Spot{}, fmt.Errorf("%w: %s", locations.ErrSpotExists, spot.ID)
	}
	if err != nil {
		return types.Spot{}, fmt.Errorf("failed to add spot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Spot{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return spot, nil
}

func (p *PostgresClient) RenameSpot(ctx context.Context, id, name string) error {
	if name == "" {
		return fmt.Errorf("spot name is required")
	}

	tag, err := p.pool.Exec(ctx, `UPDATE spots SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("failed to rename spot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", locations.ErrSpotNotFound, id)
	}
	return nil
}

func (p *PostgresClient) DeleteSpot(ctx context.Context, id string) error {
	s, err := p.Spot(ctx, id)
	if err != nil {
		return err
	}
	if !s.Available() {
		return fmt.Errorf("%w: spot %s", locations.ErrInUse, id)
	}

	if _, err := p.pool.Exec(ctx, `DELETE FROM spots WHERE id = $1 AND status = 'available'`, id); err != nil {
		return fmt.Errorf("failed to delete spot: %w", err)
	}
	return nil
}

// SeedFloors writes the given catalog when no floor exists yet.
func (p *PostgresClient) SeedFloors(ctx context.Context, floors []types.Floor) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM floors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count floors: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, f := range floors {
		batch.Queue(`INSERT INTO floors (label) VALUES ($1)`, f.Label)
		for _, s := range f.Spots {
			batch.Queue(`INSERT INTO spots (id, floor_label, name, status) VALUES ($1, $2, $3, $4)`,
				s.ID, f.Label, s.Name, string(s.Status))
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to seed catalog: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(floors), nil
}

func spotIDs(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM spots`)
	if err != nil {
		return nil, fmt.Errorf("failed to list spot ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan spot id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
