package models

import "time"

// User is an account that owns devices. Passwords are bcrypt hashes.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Password  string     `json:"-"`
	FullName  string     `json:"full_name,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Device is a metering unit owned by a user. The worker mutates
// token_balance, last_online, up_time and is_active; everything else
// belongs to the API.
type Device struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	DeviceCode   string     `json:"device_code"`
	DeviceName   string     `json:"device_name,omitempty"`
	Location     string     `json:"location,omitempty"`
	TokenBalance float64    `json:"token_balance"`
	IsActive     bool       `json:"is_active"`
	UpTime       int64      `json:"up_time"`
	LastOnline   *time.Time `json:"last_online,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DeviceRef is the identity slice of a device the worker resolves per message.
type DeviceRef struct {
	ID         int64  `json:"id"`
	DeviceCode string `json:"device_code"`
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
}

// Sample is one raw measurement as it arrives on the wire.
// Energy is the meter's cumulative kWh counter, never a per-sample delta.
type Sample struct {
	DeviceID  string  `json:"device_id,omitempty"`
	Datetime  string  `json:"datetime"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Power     float64 `json:"power"`
	Energy    float64 `json:"energy"`
	Frequency float64 `json:"frequency"`
	PF        float64 `json:"pf"`
}

// RealtimeRow is the single latest-sample snapshot per device.
type RealtimeRow struct {
	DeviceID  int64     `json:"device_id"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Power     float64   `json:"power"`
	Energy    float64   `json:"energy"`
	Frequency float64   `json:"frequency"`
	PF        float64   `json:"pf"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Averages holds the arithmetic means of the instantaneous fields
// over a rollup window. Energy is tracked separately as a counter.
type Averages struct {
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Power     float64 `json:"power"`
	Frequency float64 `json:"frequency"`
	PF        float64 `json:"pf"`
}

// MinuteRow is one persisted minute rollup.
type MinuteRow struct {
	DeviceID     int64     `json:"device_id"`
	Datetime     time.Time `json:"datetime"`
	Averages     Averages  `json:"averages"`
	Energy       float64   `json:"energy"`
	EnergyMinute float64   `json:"energy_minute"`
}

// HourlyRow is one persisted hourly rollup.
type HourlyRow struct {
	DeviceID   int64     `json:"device_id"`
	Datetime   time.Time `json:"datetime"`
	Averages   Averages  `json:"averages"`
	Energy     float64   `json:"energy"`
	EnergyHour float64   `json:"energy_hour"`
}

// HourAggregate is the repository's answer for a completed hour:
// averages over the hour's minute rows plus the consumption delta
// computed against the previous hour's terminal counter.
type HourAggregate struct {
	Averages    Averages
	EnergyDelta float64
	EnergyAfter float64
}

// MinuteEnergy is the (datetime, energy) pair of the most recent
// persisted minute row, used as the cross-minute delta baseline.
type MinuteEnergy struct {
	Datetime time.Time
	Energy   float64
}

// TokenTransaction is one immutable ledger row. The worker never
// writes these; top-ups and corrections come from the API.
type TokenTransaction struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	DeviceID       int64     `json:"device_id"`
	TxType         string    `json:"tx_type"`
	AmountKWh      float64   `json:"amount_kwh"`
	Price          float64   `json:"price"`
	CurrentBalance float64   `json:"current_balance"`
	FinalBalance   float64   `json:"final_balance"`
	CreatedAt      time.Time `json:"created_at"`
}

// DashboardStats is the summary the dashboard endpoint serves.
type DashboardStats struct {
	AvgUsageToday float64 `json:"avg_usage_today"`
	TokenBalance  float64 `json:"token_balance"`
	EstimatedDays int     `json:"estimated_days"`
}
