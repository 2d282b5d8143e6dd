package repository

import (
	"context"
	"errors"
	"fmt"

	"siwatt-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// TopUpToken adds prepaid credit to a device and records the ledger row
// in the same transaction. current_balance/final_balance capture the
// balance around the top-up so the ledger stays auditable even while
// the worker decrements concurrently.
func (r *Repository) TopUpToken(ctx context.Context, userID, deviceID int64, amountKWh, price float64) (*models.TokenTransaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Row lock on the device serializes against worker decrements.
	var current float64
	err = tx.QueryRow(ctx, `
		SELECT token_balance FROM devices
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, deviceID, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock device %d: %w", deviceID, err)
	}

	var final float64
	err = tx.QueryRow(ctx, `
		UPDATE devices
		SET token_balance = token_balance + $1
		WHERE id = $2
		RETURNING token_balance
	`, amountKWh, deviceID).Scan(&final)
	if err != nil {
		return nil, fmt.Errorf("top up device %d: %w", deviceID, err)
	}

	var trx models.TokenTransaction
	err = tx.QueryRow(ctx, `
		INSERT INTO token_transactions
			(user_id, device_id, tx_type, amount_kwh, price, current_balance, final_balance, created_at)
		VALUES ($1, $2, 'topup', $3, $4, $5, $6, NOW())
		RETURNING id, user_id, device_id, tx_type, amount_kwh, price, current_balance, final_balance, created_at
	`, userID, deviceID, amountKWh, price, current, final).Scan(
		&trx.ID, &trx.UserID, &trx.DeviceID, &trx.TxType, &trx.AmountKWh,
		&trx.Price, &trx.CurrentBalance, &trx.FinalBalance, &trx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert token transaction device %d: %w", deviceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &trx, nil
}

// ListTokenTransactions returns a device's ledger rows, newest first.
func (r *Repository) ListTokenTransactions(ctx context.Context, userID, deviceID int64) ([]models.TokenTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, device_id, tx_type, amount_kwh, price, current_balance, final_balance, created_at
		FROM token_transactions
		WHERE user_id = $1 AND device_id = $2
		ORDER BY created_at DESC
	`, userID, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TokenTransaction
	for rows.Next() {
		var trx models.TokenTransaction
		if err := rows.Scan(&trx.ID, &trx.UserID, &trx.DeviceID, &trx.TxType, &trx.AmountKWh,
			&trx.Price, &trx.CurrentBalance, &trx.FinalBalance, &trx.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, trx)
	}
	return out, rows.Err()
}
