// Package api serves the product surface over the datastore the worker
// feeds: auth, devices, token top-ups, dashboards and the live
// telemetry websocket.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"siwatt-backend/internal/eventbus"
	"siwatt-backend/internal/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Store is the slice of the repository the API consumes.
type Store interface {
	CreateUser(ctx context.Context, username, email, hashedPassword, fullName string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error

	ListDevicesByUser(ctx context.Context, userID int64) ([]models.Device, error)
	GetDeviceByID(ctx context.Context, userID, deviceID int64) (*models.Device, error)
	GetFirstActiveDevice(ctx context.Context, userID int64) (*models.Device, error)
	SweepOffline(ctx context.Context) (int64, error)
	GetRealtime(ctx context.Context, deviceID int64) (*models.RealtimeRow, error)

	TopUpToken(ctx context.Context, userID, deviceID int64, amountKWh, price float64) (*models.TokenTransaction, error)
	ListTokenTransactions(ctx context.Context, userID, deviceID int64) ([]models.TokenTransaction, error)

	GetDashboardStats(ctx context.Context, deviceID int64, balance float64, now time.Time) (models.DashboardStats, error)
	ListHourly(ctx context.Context, deviceID int64, from, to time.Time, limit int) ([]models.HourlyRow, error)
	GetHourlyAverages(ctx context.Context, deviceID int64, from, to time.Time) (models.Averages, float64, error)
}

type Config struct {
	JWTSecret        string
	JWTExpireMinutes int
	RateLimitRPS     float64
	RateLimitBurst   int
}

type Server struct {
	store Store
	cfg   Config
	hub   *hub
	log   zerolog.Logger
}

func NewServer(store Store, cfg Config, bus *eventbus.Bus, logger zerolog.Logger) *Server {
	s := &Server{
		store: store,
		cfg:   cfg,
		hub:   newHub(),
		log:   logger.With().Str("component", "api").Logger(),
	}
	go s.hub.run()
	if bus != nil {
		go s.consumeBus(bus)
	}
	return s
}

// Router builds the mux with all routes and middleware registered.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.rateLimitMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET", "OPTIONS")

	r.HandleFunc("/auth/register", s.handleRegister).Methods("POST", "OPTIONS")
	r.HandleFunc("/auth/login", s.handleLogin).Methods("POST", "OPTIONS")
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods("POST", "OPTIONS")

	authed := r.PathPrefix("/api").Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/devices", s.handleListDevices).Methods("GET", "OPTIONS")
	authed.HandleFunc("/devices/sweep-offline", s.handleSweepOffline).Methods("POST", "OPTIONS")
	authed.HandleFunc("/devices/{id}/realtime", s.handleDeviceRealtime).Methods("GET", "OPTIONS")
	authed.HandleFunc("/tokens/transactions", s.handleTokenTopUp).Methods("POST", "OPTIONS")
	authed.HandleFunc("/tokens/transactions/{device_id}", s.handleListTokenTransactions).Methods("GET", "OPTIONS")
	authed.HandleFunc("/dashboard/stats", s.handleDashboardStats).Methods("GET", "OPTIONS")
	authed.HandleFunc("/data-hourly", s.handleListHourly).Methods("GET", "OPTIONS")
	authed.HandleFunc("/data-hourly/average", s.handleHourlyAverage).Methods("GET", "OPTIONS")

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// apiResponse is the product's response envelope.
type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Code: status, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, message, nil)
}
