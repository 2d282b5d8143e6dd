package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"siwatt-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// offlineAfter is how long a device may stay silent before the sweep
// marks it inactive.
const offlineAfter = 20 * time.Second

// GetDevice resolves a device by its owner's username and the device code.
// Returns (nil, nil) when no such device exists.
func (r *Repository) GetDevice(ctx context.Context, username, deviceCode string) (*models.DeviceRef, error) {
	var ref models.DeviceRef
	err := r.db.QueryRow(ctx, `
		SELECT d.id, d.device_code, d.user_id, u.username
		FROM devices d
		JOIN users u ON u.id = d.user_id
		WHERE u.username = $1 AND d.device_code = $2
	`, username, deviceCode).Scan(&ref.ID, &ref.DeviceCode, &ref.UserID, &ref.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device %s/%s: %w", username, deviceCode, err)
	}
	return &ref, nil
}

// MarkDeviceOnline records the latest heartbeat: last_online, uptime
// since creation, and the active flag.
func (r *Repository) MarkDeviceOnline(ctx context.Context, deviceID int64, dt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE devices
		SET last_online = $1,
		    up_time = GREATEST(EXTRACT(EPOCH FROM ($1::timestamp - created_at))::bigint, 0),
		    is_active = TRUE
		WHERE id = $2
	`, dt, deviceID)
	if err != nil {
		return fmt.Errorf("mark device %d online: %w", deviceID, err)
	}
	return tx.Commit(ctx)
}

// SweepOffline flips is_active off for every active device that has
// not reported within offlineAfter. Returns the number of devices swept.
func (r *Repository) SweepOffline(ctx context.Context) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE devices
		SET is_active = FALSE
		WHERE (last_online IS NULL OR last_online < NOW() - $1::interval)
		  AND is_active = TRUE
	`, offlineAfter.String())
	if err != nil {
		return 0, fmt.Errorf("sweep offline: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DecrementTokenBalance subtracts measured consumption from the prepaid
// balance, flooring at zero. The arithmetic runs inside the database so
// the NUMERIC column stays authoritative.
func (r *Repository) DecrementTokenBalance(ctx context.Context, deviceID int64, amount float64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE devices
		SET token_balance = GREATEST(token_balance - $1, 0)
		WHERE id = $2
	`, amount, deviceID)
	if err != nil {
		return fmt.Errorf("decrement balance device %d: %w", deviceID, err)
	}
	return tx.Commit(ctx)
}

// ListDevicesByUser returns all devices owned by a user, newest first.
func (r *Repository) ListDevicesByUser(ctx context.Context, userID int64) ([]models.Device, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, device_code, COALESCE(device_name, ''), COALESCE(location, ''),
		       token_balance, is_active, up_time, last_online, created_at
		FROM devices
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.DeviceCode, &d.DeviceName, &d.Location,
			&d.TokenBalance, &d.IsActive, &d.UpTime, &d.LastOnline, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// GetDeviceByID returns a device owned by the given user, or nil.
func (r *Repository) GetDeviceByID(ctx context.Context, userID, deviceID int64) (*models.Device, error) {
	var d models.Device
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, device_code, COALESCE(device_name, ''), COALESCE(location, ''),
		       token_balance, is_active, up_time, last_online, created_at
		FROM devices
		WHERE id = $1 AND user_id = $2
	`, deviceID, userID).Scan(&d.ID, &d.UserID, &d.DeviceCode, &d.DeviceName, &d.Location,
		&d.TokenBalance, &d.IsActive, &d.UpTime, &d.LastOnline, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetFirstActiveDevice returns the user's first active device, falling
// back to any device, or nil when the user owns none.
func (r *Repository) GetFirstActiveDevice(ctx context.Context, userID int64) (*models.Device, error) {
	var d models.Device
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, device_code, COALESCE(device_name, ''), COALESCE(location, ''),
		       token_balance, is_active, up_time, last_online, created_at
		FROM devices
		WHERE user_id = $1
		ORDER BY is_active DESC, created_at ASC
		LIMIT 1
	`, userID).Scan(&d.ID, &d.UserID, &d.DeviceCode, &d.DeviceName, &d.Location,
		&d.TokenBalance, &d.IsActive, &d.UpTime, &d.LastOnline, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
