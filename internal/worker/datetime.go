package worker

import "time"

// WireDatetimeLayout is the meter's datetime format on the wire.
// No timezone conversion is applied; values are stored as reported.
const WireDatetimeLayout = "02-01-2006 15:04:05"

func ParseDatetime(value string) (time.Time, error) {
	return time.Parse(WireDatetimeLayout, value)
}

func FloorMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

func FloorHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
