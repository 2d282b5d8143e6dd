package worker

import (
	"context"
	"time"

	"siwatt-backend/internal/models"
)

// Store is the slice of the repository the worker consumes. The
// concrete implementation lives in internal/repository; tests swap in
// an in-memory fake.
type Store interface {
	GetDevice(ctx context.Context, username, deviceCode string) (*models.DeviceRef, error)
	MarkDeviceOnline(ctx context.Context, deviceID int64, dt time.Time) error
	UpsertRealtime(ctx context.Context, deviceID int64, s models.Sample, dt time.Time) error
	UpsertMinutely(ctx context.Context, deviceID int64, dt time.Time, avg models.Averages, energyLast, energyMinute float64) error
	GetLastMinutely(ctx context.Context, deviceID int64) (*models.MinuteEnergy, error)
	GetHourlyLegacy(ctx context.Context, deviceID int64, hourStart time.Time) (*models.HourAggregate, error)
	UpsertHourly(ctx context.Context, deviceID int64, dt time.Time, avg models.Averages, energyLast, energyHour float64) error
	DecrementTokenBalance(ctx context.Context, deviceID int64, amount float64) error
}
