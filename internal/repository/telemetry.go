package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"siwatt-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// UpsertRealtime writes the latest sample snapshot for a device:
// update by device_id, insert when no row was touched. Repeating the
// same input converges to the same row.
func (r *Repository) UpsertRealtime(ctx context.Context, deviceID int64, s models.Sample, dt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE data_realtime
		SET voltage = $1, current = $2, power = $3, energy = $4,
		    frequency = $5, pf = $6, updated_at = $7
		WHERE device_id = $8
	`, s.Voltage, s.Current, s.Power, s.Energy, s.Frequency, s.PF, dt, deviceID)
	if err != nil {
		return fmt.Errorf("update realtime device %d: %w", deviceID, err)
	}
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO data_realtime
				(device_id, voltage, current, power, energy, frequency, pf, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, deviceID, s.Voltage, s.Current, s.Power, s.Energy, s.Frequency, s.PF, dt)
		if err != nil {
			return fmt.Errorf("insert realtime device %d: %w", deviceID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetRealtime returns the latest snapshot for a device, or nil.
func (r *Repository) GetRealtime(ctx context.Context, deviceID int64) (*models.RealtimeRow, error) {
	var row models.RealtimeRow
	err := r.db.QueryRow(ctx, `
		SELECT device_id, voltage, current, power, energy, frequency, pf, updated_at
		FROM data_realtime
		WHERE device_id = $1
	`, deviceID).Scan(&row.DeviceID, &row.Voltage, &row.Current, &row.Power,
		&row.Energy, &row.Frequency, &row.PF, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertMinutely writes one minute rollup keyed by (device_id, datetime).
func (r *Repository) UpsertMinutely(ctx context.Context, deviceID int64, dt time.Time, avg models.Averages, energyLast, energyMinute float64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE data_minutely
		SET voltage = $1, current = $2, power = $3, energy = $4,
		    frequency = $5, pf = $6, energy_minute = $7
		WHERE device_id = $8 AND datetime = $9
	`, avg.Voltage, avg.Current, avg.Power, energyLast, avg.Frequency, avg.PF, energyMinute, deviceID, dt)
	if err != nil {
		return fmt.Errorf("update minutely device %d: %w", deviceID, err)
	}
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO data_minutely
				(device_id, datetime, voltage, current, power, energy, frequency, pf, energy_minute)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, deviceID, dt, avg.Voltage, avg.Current, avg.Power, energyLast, avg.Frequency, avg.PF, energyMinute)
		if err != nil {
			return fmt.Errorf("insert minutely device %d: %w", deviceID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetLastMinutely returns the most recent minute row's (datetime, energy)
// for a device, or nil when none exists yet.
func (r *Repository) GetLastMinutely(ctx context.Context, deviceID int64) (*models.MinuteEnergy, error) {
	var me models.MinuteEnergy
	err := r.db.QueryRow(ctx, `
		SELECT datetime, energy
		FROM data_minutely
		WHERE device_id = $1
		ORDER BY datetime DESC
		LIMIT 1
	`, deviceID).Scan(&me.Datetime, &me.Energy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &me, nil
}

// GetHourlyLegacy computes the completed hour's aggregate from minute rows.
// Averages span [hourStart, hourStart+1h). The consumption delta is taken
// from the previous hour's terminal counter (hourly row at hourStart-1h,
// else the earliest minute row of the previous hour) to the earliest
// minute row of the current hour, so the intra-hour gap is not lost.
// Returns nil when the hour is not computable.
func (r *Repository) GetHourlyLegacy(ctx context.Context, deviceID int64, hourStart time.Time) (*models.HourAggregate, error) {
	prevHour := hourStart.Add(-time.Hour)
	hourEnd := hourStart.Add(time.Hour)

	var agg models.HourAggregate
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(voltage), 0), COALESCE(AVG(current), 0), COALESCE(AVG(power), 0),
		       COALESCE(AVG(frequency), 0), COALESCE(AVG(pf), 0), COUNT(*)
		FROM data_minutely
		WHERE device_id = $1 AND datetime >= $2 AND datetime < $3
	`, deviceID, hourStart, hourEnd).Scan(&agg.Averages.Voltage, &agg.Averages.Current,
		&agg.Averages.Power, &agg.Averages.Frequency, &agg.Averages.PF, &count)
	if err != nil {
		return nil, fmt.Errorf("hourly averages device %d: %w", deviceID, err)
	}
	if count == 0 {
		return nil, nil
	}

	var energyBefore float64
	err = r.db.QueryRow(ctx, `
		SELECT energy FROM data_hourly
		WHERE device_id = $1 AND datetime = $2
		LIMIT 1
	`, deviceID, prevHour).Scan(&energyBefore)
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.db.QueryRow(ctx, `
			SELECT energy FROM data_minutely
			WHERE device_id = $1 AND datetime >= $2 AND datetime < $3
			ORDER BY datetime ASC
			LIMIT 1
		`, deviceID, prevHour, hourStart).Scan(&energyBefore)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("hourly previous energy device %d: %w", deviceID, err)
	}

	var energyAfter float64
	err = r.db.QueryRow(ctx, `
		SELECT energy FROM data_minutely
		WHERE device_id = $1 AND datetime >= $2 AND datetime < $3
		ORDER BY datetime ASC
		LIMIT 1
	`, deviceID, hourStart, hourEnd).Scan(&energyAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hourly first energy device %d: %w", deviceID, err)
	}

	agg.EnergyAfter = energyAfter
	agg.EnergyDelta = math.Round((energyAfter-energyBefore)*1000) / 1000
	return &agg, nil
}

// UpsertHourly writes one hourly rollup keyed by (device_id, datetime).
func (r *Repository) UpsertHourly(ctx context.Context, deviceID int64, dt time.Time, avg models.Averages, energyLast, energyHour float64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE data_hourly
		SET voltage = $1, current = $2, power = $3, energy = $4,
		    frequency = $5, pf = $6, energy_hour = $7
		WHERE device_id = $8 AND datetime = $9
	`, avg.Voltage, avg.Current, avg.Power, energyLast, avg.Frequency, avg.PF, energyHour, deviceID, dt)
	if err != nil {
		return fmt.Errorf("update hourly device %d: %w", deviceID, err)
	}
	if tag.RowsAffected() == 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO data_hourly
				(device_id, datetime, voltage, current, power, energy, frequency, pf, energy_hour)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, deviceID, dt, avg.Voltage, avg.Current, avg.Power, energyLast, avg.Frequency, avg.PF, energyHour)
		if err != nil {
			return fmt.Errorf("insert hourly device %d: %w", deviceID, err)
		}
	}
	return tx.Commit(ctx)
}

// ListHourly returns hourly rows for a device within [from, to], newest first.
func (r *Repository) ListHourly(ctx context.Context, deviceID int64, from, to time.Time, limit int) ([]models.HourlyRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := r.db.Query(ctx, `
		SELECT device_id, datetime, COALESCE(voltage, 0), COALESCE(current, 0), COALESCE(power, 0),
		       COALESCE(energy, 0), COALESCE(frequency, 0), COALESCE(pf, 0), COALESCE(energy_hour, 0)
		FROM data_hourly
		WHERE device_id = $1 AND datetime >= $2 AND datetime <= $3
		ORDER BY datetime DESC
		LIMIT $4
	`, deviceID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HourlyRow
	for rows.Next() {
		var h models.HourlyRow
		if err := rows.Scan(&h.DeviceID, &h.Datetime, &h.Averages.Voltage, &h.Averages.Current,
			&h.Averages.Power, &h.Energy, &h.Averages.Frequency, &h.Averages.PF, &h.EnergyHour); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// GetHourlyAverages returns field means over a device's hourly rows in [from, to].
func (r *Repository) GetHourlyAverages(ctx context.Context, deviceID int64, from, to time.Time) (models.Averages, float64, error) {
	var avg models.Averages
	var energy float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(voltage), 0), COALESCE(AVG(current), 0), COALESCE(AVG(power), 0),
		       COALESCE(AVG(frequency), 0), COALESCE(AVG(pf), 0), COALESCE(AVG(energy), 0)
		FROM data_hourly
		WHERE device_id = $1 AND datetime >= $2 AND datetime <= $3
	`, deviceID, from, to).Scan(&avg.Voltage, &avg.Current, &avg.Power, &avg.Frequency, &avg.PF, &energy)
	if err != nil {
		return models.Averages{}, 0, err
	}
	return avg, energy, nil
}

// GetDashboardStats computes the dashboard summary: today's average
// power, the prepaid balance, and a days-left projection from the last
// seven days of hourly consumption.
func (r *Repository) GetDashboardStats(ctx context.Context, deviceID int64, balance float64, now time.Time) (models.DashboardStats, error) {
	stats := models.DashboardStats{TokenBalance: math.Round(balance*100) / 100}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var avgPower float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(power), 0)
		FROM data_hourly
		WHERE device_id = $1 AND datetime >= $2
	`, deviceID, todayStart).Scan(&avgPower)
	if err != nil {
		return stats, err
	}
	stats.AvgUsageToday = math.Round(avgPower*100) / 100

	var total7d float64
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(energy_hour), 0)
		FROM data_hourly
		WHERE device_id = $1 AND datetime >= $2
	`, deviceID, now.Add(-7*24*time.Hour)).Scan(&total7d)
	if err != nil {
		return stats, err
	}
	if total7d > 0 {
		dailyAvg := total7d / 7
		if dailyAvg > 0 {
			stats.EstimatedDays = int(balance / dailyAvg)
		}
	}
	return stats, nil
}
