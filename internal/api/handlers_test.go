package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"siwatt-backend/internal/models"

	"github.com/rs/zerolog"
)

// fakeAPIStore serves canned data so handler logic can be tested
// without Postgres.
type fakeAPIStore struct {
	users        map[string]*models.User // keyed by email
	devices      []models.Device
	realtime     *models.RealtimeRow
	transactions []models.TokenTransaction
	topUpResult  *models.TokenTransaction
	sweepCount   int64
	stats        models.DashboardStats
	hourly       []models.HourlyRow
	averages     models.Averages
	avgEnergy    float64

	createdUsers []string
}

func (f *fakeAPIStore) CreateUser(_ context.Context, username, email, hashedPassword, fullName string) (*models.User, error) {
	f.createdUsers = append(f.createdUsers, username)
	u := &models.User{ID: int64(len(f.createdUsers)), Username: username, Email: email, Password: hashedPassword, FullName: fullName, CreatedAt: time.Now()}
	if f.users == nil {
		f.users = map[string]*models.User{}
	}
	f.users[email] = u
	return u, nil
}

func (f *fakeAPIStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	return f.users[email], nil
}

func (f *fakeAPIStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeAPIStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeAPIStore) TouchLastLogin(_ context.Context, _ int64, _ time.Time) error { return nil }

func (f *fakeAPIStore) ListDevicesByUser(_ context.Context, userID int64) ([]models.Device, error) {
	var out []models.Device
	for _, d := range f.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeAPIStore) GetDeviceByID(_ context.Context, userID, deviceID int64) (*models.Device, error) {
	for _, d := range f.devices {
		if d.ID == deviceID && d.UserID == userID {
			dd := d
			return &dd, nil
		}
	}
	return nil, nil
}

func (f *fakeAPIStore) GetFirstActiveDevice(_ context.Context, userID int64) (*models.Device, error) {
	for _, d := range f.devices {
		if d.UserID == userID {
			dd := d
			return &dd, nil
		}
	}
	return nil, nil
}

func (f *fakeAPIStore) SweepOffline(_ context.Context) (int64, error) { return f.sweepCount, nil }

func (f *fakeAPIStore) GetRealtime(_ context.Context, _ int64) (*models.RealtimeRow, error) {
	return f.realtime, nil
}

func (f *fakeAPIStore) TopUpToken(_ context.Context, _, _ int64, _, _ float64) (*models.TokenTransaction, error) {
	return f.topUpResult, nil
}

func (f *fakeAPIStore) ListTokenTransactions(_ context.Context, _, _ int64) ([]models.TokenTransaction, error) {
	return f.transactions, nil
}

func (f *fakeAPIStore) GetDashboardStats(_ context.Context, _ int64, _ float64, _ time.Time) (models.DashboardStats, error) {
	return f.stats, nil
}

func (f *fakeAPIStore) ListHourly(_ context.Context, _ int64, _, _ time.Time, _ int) ([]models.HourlyRow, error) {
	return f.hourly, nil
}

func (f *fakeAPIStore) GetHourlyAverages(_ context.Context, _ int64, _, _ time.Time) (models.Averages, float64, error) {
	return f.averages, f.avgEnergy, nil
}

func newHandlerTestServer(store Store) *Server {
	return &Server{
		store: store,
		cfg:   Config{JWTSecret: "test-secret", JWTExpireMinutes: 60},
		hub:   newHub(),
		log:   zerolog.Nop(),
	}
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, r)

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestRegisterValidation(t *testing.T) {
	s := newHandlerTestServer(&fakeAPIStore{})

	rec, resp := doJSON(t, s, "POST", "/auth/register", "", map[string]string{"username": "alice"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (%s)", rec.Code, resp.Message)
	}
}

func TestRegisterAndLoginFlow(t *testing.T) {
	store := &fakeAPIStore{}
	s := newHandlerTestServer(store)

	body := map[string]string{"username": "alice", "email": "alice@example.com", "password": "s3cret"}
	rec, _ := doJSON(t, s, "POST", "/auth/register", "", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d", rec.Code)
	}
	if len(store.createdUsers) != 1 || store.createdUsers[0] != "alice" {
		t.Fatalf("created users = %v", store.createdUsers)
	}
	// The stored password is a hash, never the plaintext.
	if store.users["alice@example.com"].Password == "s3cret" {
		t.Fatal("password stored in plaintext")
	}

	// Duplicate username is rejected.
	rec, _ = doJSON(t, s, "POST", "/auth/register", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate register status = %d, want 400", rec.Code)
	}

	rec, resp := doJSON(t, s, "POST", "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d (%s)", rec.Code, resp.Message)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok || data["api_token"] == "" {
		t.Fatalf("login response missing api_token: %+v", resp.Data)
	}

	rec, _ = doJSON(t, s, "POST", "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad password status = %d, want 400", rec.Code)
	}
}

func TestDevicesEndpointRequiresAuth(t *testing.T) {
	s := newHandlerTestServer(&fakeAPIStore{})
	rec, _ := doJSON(t, s, "GET", "/api/devices", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestListDevices(t *testing.T) {
	store := &fakeAPIStore{
		devices: []models.Device{
			{ID: 1, UserID: 7, DeviceCode: "SWM-001", TokenBalance: 12.5, IsActive: true},
			{ID: 2, UserID: 8, DeviceCode: "SWM-002"},
		},
	}
	s := newHandlerTestServer(store)
	token, err := s.createAccessToken(7)
	if err != nil {
		t.Fatalf("createAccessToken: %v", err)
	}

	rec, resp := doJSON(t, s, "GET", "/api/devices", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list, ok := resp.Data.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("expected only the caller's device, got %+v", resp.Data)
	}
}

func TestTokenTopUp(t *testing.T) {
	store := &fakeAPIStore{
		topUpResult: &models.TokenTransaction{ID: 3, DeviceID: 1, FinalBalance: 50},
	}
	s := newHandlerTestServer(store)
	token, err := s.createAccessToken(7)
	if err != nil {
		t.Fatalf("createAccessToken: %v", err)
	}

	rec, resp := doJSON(t, s, "POST", "/api/tokens/transactions", token,
		map[string]any{"device_id": 1, "amount_kwh": 25.0, "price": 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, resp.Message)
	}
	data := resp.Data.(map[string]any)
	if data["new_balance"].(float64) != 50 {
		t.Errorf("new_balance = %v, want 50", data["new_balance"])
	}

	// Zero amount is rejected before the store is consulted.
	rec, _ = doJSON(t, s, "POST", "/api/tokens/transactions", token,
		map[string]any{"device_id": 1, "amount_kwh": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero amount status = %d, want 400", rec.Code)
	}

	// Unowned device: the store returns nil.
	store.topUpResult = nil
	rec, _ = doJSON(t, s, "POST", "/api/tokens/transactions", token,
		map[string]any{"device_id": 99, "amount_kwh": 25.0})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unowned device status = %d, want 404", rec.Code)
	}
}

func TestDashboardStatsWithoutDevice(t *testing.T) {
	s := newHandlerTestServer(&fakeAPIStore{})
	token, err := s.createAccessToken(7)
	if err != nil {
		t.Fatalf("createAccessToken: %v", err)
	}

	// No devices at all: empty stats rather than an error.
	rec, resp := doJSON(t, s, "GET", "/api/dashboard/stats", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, resp.Message)
	}

	// Explicit unknown device id is a 404.
	rec, _ = doJSON(t, s, "GET", "/api/dashboard/stats?device_id=42", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestSweepOffline(t *testing.T) {
	store := &fakeAPIStore{sweepCount: 4}
	s := newHandlerTestServer(store)
	token, err := s.createAccessToken(7)
	if err != nil {
		t.Fatalf("createAccessToken: %v", err)
	}

	rec, resp := doJSON(t, s, "POST", "/api/devices/sweep-offline", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	data := resp.Data.(map[string]any)
	if data["swept"].(float64) != 4 {
		t.Errorf("swept = %v, want 4", data["swept"])
	}
}
