package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type topUpRequest struct {
	DeviceID  int64   `json:"device_id"`
	AmountKWh float64 `json:"amount_kwh"`
	Price     float64 `json:"price"`
}

func (s *Server) handleTokenTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceID == 0 || req.AmountKWh <= 0 {
		writeError(w, http.StatusBadRequest, "device_id and a positive amount_kwh are required")
		return
	}

	userID := userIDFromContext(r.Context())
	trx, err := s.store.TopUpToken(r.Context(), userID, req.DeviceID, req.AmountKWh, req.Price)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if trx == nil {
		writeError(w, http.StatusNotFound, "Device not found")
		return
	}

	writeJSON(w, http.StatusOK, "Token added", map[string]any{
		"transaction_id": trx.ID,
		"device_id":      trx.DeviceID,
		"new_balance":    trx.FinalBalance,
	})
}

func (s *Server) handleListTokenTransactions(w http.ResponseWriter, r *http.Request) {
	deviceID, err := strconv.ParseInt(mux.Vars(r)["device_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid device id")
		return
	}

	userID := userIDFromContext(r.Context())
	transactions, err := s.store.ListTokenTransactions(r.Context(), userID, deviceID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Token transactions retrieved", transactions)
}
