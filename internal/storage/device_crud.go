package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KevinKickass/EcoShareCore/internal/devices"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deviceColumns = `id, name, type, location, status, power_usage,
	install_date, last_maintenance, next_maintenance, hardware_id, created_at, updated_at`

func scanDevice(row pgx.Row) (types.Device, error) {
	var (
		d                        types.Device
		id                       uuid.UUID
		install, last, next      *time.Time
		deviceType, deviceStatus string
	)

	err := row.Scan(&id, &d.Name, &deviceType, &d.Location, &deviceStatus, &d.PowerUsage,
		&install, &last, &next, &d.HardwareID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return types.Device{}, err
	}

	d.ID = id.String()
	d.Type = types.DeviceType(deviceType)
	d.Status = types.DeviceStatus(deviceStatus)
	d.InstallDate = types.DateFromPtr(install)
	d.LastMaintenance = types.DateFromPtr(last)
	d.NextMaintenance = types.DateFromPtr(next)
	return d, nil
}

// ListDevices returns devices oldest first. The filter is applied in SQL.
func (p *PostgresClient) ListDevices(ctx context.Context, filter types.DeviceFilter) ([]types.Device, error) {
	var (
		where []string
		args  []any
	)

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Query))+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			`(LOWER(name) LIKE $%d ESCAPE '\' OR LOWER(location) LIKE $%d ESCAPE '\' OR type LIKE $%d ESCAPE '\')`, n, n, n))
	}

	query := `SELECT ` + deviceColumns + ` FROM devices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	out := make([]types.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, d)
	}

	return out, rows.Err()
}

func (p *PostgresClient) GetDevice(ctx context.Context, id string) (types.Device, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return types.Device{}, devices.ErrNotFound
	}

	d, err := scanDevice(p.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Device{}, devices.ErrNotFound
	}
	if err != nil {
		return types.Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

func (p *PostgresClient) CreateDevice(ctx context.Context, in types.DeviceInput) (types.Device, error) {
	d, err := scanDevice(p.pool.QueryRow(ctx, `
		INSERT INTO devices (id, name, type, location, status, power_usage,
			install_date, last_maintenance, next_maintenance, hardware_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+deviceColumns,
		uuid.New(), in.Name, string(in.Type), in.Location, string(in.Status), in.PowerUsage,
		in.InstallDate.Ptr(), in.LastMaintenance.Ptr(), in.NextMaintenance.Ptr(), in.HardwareID,
	))
	if err != nil {
		return types.Device{}, fmt.Errorf("failed to insert device: %w", err)
	}
	return d, nil
}

// UpdateDevice applies a partial update inside a transaction so the merge
// sees the row it overwrites.
func (p *PostgresClient) UpdateDevice(ctx context.Context, id string, upd types.DeviceUpdate) (types.Device, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return types.Device{}, devices.ErrNotFound
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return types.Device{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := scanDevice(tx.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1 FOR UPDATE`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Device{}, devices.ErrNotFound
	}
	if err != nil {
		return types.Device{}, fmt.Errorf("failed to load device: %w", err)
	}

	upd.Apply(&d)

	d, err = scanDevice(tx.QueryRow(ctx, `
		UPDATE devices SET
			name = $2, type = $3, location = $4, status = $5, power_usage = $6,
			install_date = $7, last_maintenance = $8, next_maintenance = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+deviceColumns,
		uid, d.Name, string(d.Type), d.Location, string(d.Status), d.PowerUsage,
		d.InstallDate.Ptr(), d.LastMaintenance.Ptr(), d.NextMaintenance.Ptr(),
	))
	if err != nil {
		return types.Device{}, fmt.Errorf("failed to update device: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Device{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return d, nil
}

func (p *PostgresClient) DeleteDevice(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return devices.ErrNotFound
	}

	tag, err := p.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return devices.ErrNotFound
	}
	return nil
}

// SeedDevices inserts the given devices when the table is empty.
func (p *PostgresClient) SeedDevices(ctx context.Context, seed []types.DeviceInput) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM devices`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for _, in := range seed {
		if _, err := p.CreateDevice(ctx, in); err != nil {
			return 0, err
		}
	}
	return len(seed), nil
}

func (p *PostgresClient) RecordPowerUsage(ctx context.Context, rec types.PowerUsageRecord) (types.PowerUsageRecord, error) {
	uid, err := uuid.Parse(rec.DeviceID)
	if err != nil {
		return types.PowerUsageRecord{}, devices.ErrNotFound
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	id := uuid.New()
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO power_usage (id, device_id, usage, cost, recorded)
		SELECT $1, id, $3, $4, $5 FROM devices WHERE id = $2
	`, id, uid, rec.Usage, rec.Cost, rec.Timestamp)
	if err != nil {
		return types.PowerUsageRecord{}, fmt.Errorf("failed to record power usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.PowerUsageRecord{}, devices.ErrNotFound
	}

	rec.ID = id.String()
	return rec, nil
}

func (p *PostgresClient) PowerUsage(ctx context.Context, deviceID string, from, to time.Time) ([]types.PowerUsageRecord, error) {
	d, err := p.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	uid := uuid.MustParse(d.ID)

	rows, err := p.pool.Query(ctx, `
		SELECT id, device_id, usage, cost, recorded
		FROM power_usage
		WHERE device_id = $1
		  AND ($2::timestamptz IS NULL OR recorded >= $2)
		  AND ($3::timestamptz IS NULL OR recorded <= $3)
		ORDER BY recorded
	`, uid, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query power usage: %w", err)
	}
	defer rows.Close()

	out := make([]types.PowerUsageRecord, 0)
	for rows.Next() {
		var (
			rec      types.PowerUsageRecord
			id, devc uuid.UUID
		)
		if err := rows.Scan(&id, &devc, &rec.Usage, &rec.Cost, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan power usage: %w", err)
		}
		rec.ID = id.String()
		rec.DeviceID = devc.String()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresClient) TotalPowerUsage(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(usage), 0)
		FROM power_usage
		WHERE ($1::timestamptz IS NULL OR recorded >= $1)
		  AND ($2::timestamptz IS NULL OR recorded <= $2)
	`, nullTime(from), nullTime(to)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum power usage: %w", err)
	}
	return total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes q match literally inside a LIKE pattern.
func escapeLike(q string) string {
	return likeEscaper.Replace(q)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
