package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	devices, err := s.store.ListDevicesByUser(r.Context(), userID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Devices retrieved", devices)
}

func (s *Server) handleDeviceRealtime(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	deviceID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	device, err := s.store.GetDeviceByID(r.Context(), userID, deviceID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if device == nil {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}

	row, err := s.store.GetRealtime(r.Context(), deviceID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "No realtime data")
		return
	}
	writeJSON(w, http.StatusOK, "Realtime data retrieved", row)
}

// handleSweepOffline flips stale devices inactive. The worker defines
// the operation but does not schedule it; a cron (or the optional
// in-process ticker) calls this.
func (s *Server) handleSweepOffline(w http.ResponseWriter, r *http.Request) {
	swept, err := s.store.SweepOffline(r.Context())
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Offline sweep complete", map[string]int64{"swept": swept})
}
