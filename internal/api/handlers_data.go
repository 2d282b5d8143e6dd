package api

import (
	"net/http"
	"strconv"
	"time"

	"siwatt-backend/internal/models"
)

// resolveDevice picks the device for a data query: the explicit
// device_id parameter when given, otherwise the user's first active
// device, falling back to any device.
func (s *Server) resolveDevice(r *http.Request) (*models.Device, error) {
	userID := userIDFromContext(r.Context())
	if q := r.URL.Query().Get("device_id"); q != "" {
		deviceID, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			return nil, nil
		}
		return s.store.GetDeviceByID(r.Context(), userID, deviceID)
	}
	return s.store.GetFirstActiveDevice(r.Context(), userID)
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	device, err := s.resolveDevice(r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if device == nil {
		if r.URL.Query().Get("device_id") != "" {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		writeJSON(w, http.StatusOK, "Dashboard stats retrieved", models.DashboardStats{})
		return
	}

	stats, err := s.store.GetDashboardStats(r.Context(), device.ID, device.TokenBalance, time.Now())
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Dashboard stats retrieved", stats)
}

// parseDateRange reads start_date/end_date query params (YYYY-MM-DD),
// defaulting to today. The end date is inclusive.
func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start

	if q := r.URL.Query().Get("start_date"); q != "" {
		d, err := time.Parse("2006-01-02", q)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = d
		end = d
	}
	if q := r.URL.Query().Get("end_date"); q != "" {
		d, err := time.Parse("2006-01-02", q)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = d
	}

	return start, end.Add(24*time.Hour - time.Second), nil
}

func (s *Server) handleListHourly(w http.ResponseWriter, r *http.Request) {
	device, err := s.resolveDevice(r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if device == nil {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}

	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date range")
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		limit, _ = strconv.Atoi(q)
	}

	rows, err := s.store.ListHourly(r.Context(), device.ID, from, to, limit)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Hourly data retrieved", rows)
}

func (s *Server) handleHourlyAverage(w http.ResponseWriter, r *http.Request) {
	device, err := s.resolveDevice(r)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if device == nil {
		writeJSON(w, http.StatusOK, "No device found for user", map[string]float64{
			"avg_voltage": 0, "avg_current": 0, "avg_power": 0,
			"avg_energy": 0, "avg_frequency": 0, "avg_pf": 0,
		})
		return
	}

	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date range")
		return
	}

	avg, energy, err := s.store.GetHourlyAverages(r.Context(), device.ID, from, to)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Average data retrieved", map[string]float64{
		"avg_voltage":   avg.Voltage,
		"avg_current":   avg.Current,
		"avg_power":     avg.Power,
		"avg_energy":    energy,
		"avg_frequency": avg.Frequency,
		"avg_pf":        avg.PF,
	})
}
