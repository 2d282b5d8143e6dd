package worker

import (
	"testing"
	"time"
)

func TestParseDatetime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"15-03-2024 14:30:45", time.Date(2024, 3, 15, 14, 30, 45, 0, time.UTC), false},
		{"01-01-2024 00:00:00", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"31-12-2023 23:59:59", time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), false},
		{"2024-03-15 14:30:45", time.Time{}, true},
		{"15-03-2024", time.Time{}, true},
		{"not a date", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseDatetime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDatetime(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDatetime(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseDatetime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFloorMinute(t *testing.T) {
	dt := time.Date(2024, 3, 15, 14, 30, 45, 123456, time.UTC)
	got := FloorMinute(dt)
	want := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("FloorMinute = %v, want %v", got, want)
	}
	if !FloorMinute(want).Equal(want) {
		t.Error("FloorMinute should be idempotent on minute boundaries")
	}
}

func TestFloorHour(t *testing.T) {
	dt := time.Date(2024, 3, 15, 14, 59, 59, 0, time.UTC)
	got := FloorHour(dt)
	want := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("FloorHour = %v, want %v", got, want)
	}
	if !FloorHour(want).Equal(want) {
		t.Error("FloorHour should be idempotent on hour boundaries")
	}
}
