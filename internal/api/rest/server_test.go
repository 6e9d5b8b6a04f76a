package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/KevinKickass/EcoShareCore/internal/api/websocket"
	"github.com/KevinKickass/EcoShareCore/internal/config"
	"github.com/KevinKickass/EcoShareCore/internal/devices"
	"github.com/KevinKickass/EcoShareCore/internal/interfaces"
	"github.com/KevinKickass/EcoShareCore/internal/locations"
	"github.com/KevinKickass/EcoShareCore/internal/onboarding"
	"github.com/KevinKickass/EcoShareCore/internal/pairing"
	"github.com/KevinKickass/EcoShareCore/internal/settings"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"go.uber.org/zap/zaptest"
)

type testLifecycle struct {
	cfg      *config.Config
	devices  *devices.Manager
	catalog  *locations.MemoryCatalog
	registry *onboarding.Registry
	settings *settings.Service
	state    string
}

func (l *testLifecycle) Config() *config.Config             { return l.cfg }
func (l *testLifecycle) DeviceManager() *devices.Manager    { return l.devices }
func (l *testLifecycle) Catalog() locations.Catalog         { return l.catalog }
func (l *testLifecycle) Onboarding() *onboarding.Registry   { return l.registry }
func (l *testLifecycle) Settings() *settings.Service        { return l.settings }
func (l *testLifecycle) Shutdown(ctx context.Context) error { return nil }
func (l *testLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: l.state, StorageDriver: "memory", StorageOK: true, OnboardingSessions: l.registry.Count()}
}

var _ interfaces.LifecycleManager = (*testLifecycle)(nil)

func newTestServer(t *testing.T) (*Server, *testLifecycle) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.Default()

	catalog, err := locations.NewMemoryCatalog(locations.DefaultFloors())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	svc, err := settings.NewService(context.Background(),
		settings.NewFileStore(filepath.Join(t.TempDir(), "settings.yaml")), logger)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}

	manager := devices.NewManager(devices.NewMemoryStore(), logger)
	manager.SetSpotTracker(catalog)

	sim := pairing.NewSimulator(0)
	sim.ScanLatency = 0
	sim.Reject("OFFLINE_1")

	registry := onboarding.NewRegistry(onboarding.Dependencies{
		Devices:  manager,
		Catalog:  catalog,
		Pairer:   sim,
		Scanner:  sim,
		Defaults: svc,
	}, onboarding.Options{MaxAttempts: 3}, 0, logger)

	lm := &testLifecycle{
		cfg:      cfg,
		devices:  manager,
		catalog:  catalog,
		registry: registry,
		settings: svc,
		state:    "RUNNING",
	}
	return NewServer(cfg, lm, logger, websocket.NewHub(logger)), lm
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/health", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestOnboardingFlow(t *testing.T) {
	s, lm := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/onboarding", nil)
	expectStatus(t, w, http.StatusCreated)
	status := decode[onboarding.Status](t, w)
	if status.State != onboarding.StateAwaitingBasicInfo {
		t.Fatalf("expected awaiting_basic_info, got %s", status.State)
	}
	base := "/api/v1/onboarding/" + status.SessionID

	w = do(t, s, http.MethodPost, base+"/basic-info", map[string]any{
		"name":         "Socket A",
		"type":         "socket",
		"power_usage":  5,
		"install_date": "2024-01-10",
	})
	expectStatus(t, w, http.StatusOK)

	w = do(t, s, http.MethodPost, base+"/location", map[string]string{"spot_id": "2F-B"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[onboarding.Status](t, w); got.State != onboarding.StateAwaitingPairing || got.Location != "2F-B" {
		t.Fatalf("unexpected status after location: %+v", got)
	}

	w = do(t, s, http.MethodPost, base+"/pair", map[string]string{"device_id": "DEVICE_123456"})
	expectStatus(t, w, http.StatusCreated)
	resp := decode[struct {
		Device types.Device      `json:"device"`
		Status onboarding.Status `json:"status"`
	}](t, w)
	if resp.Device.Location != "2F-B" || resp.Device.HardwareID != "DEVICE_123456" {
		t.Fatalf("unexpected device: %+v", resp.Device)
	}
	if resp.Device.Status != types.DeviceStatusActive {
		t.Fatalf("expected active device, got %s", resp.Device.Status)
	}
	if resp.Status.State != onboarding.StateIdle {
		t.Fatalf("expected idle after commit, got %s", resp.Status.State)
	}

	spot, err := lm.catalog.Spot(context.Background(), "2F-B")
	if err != nil || spot.Available() {
		t.Fatalf("expected 2F-B occupied, got %+v (%v)", spot, err)
	}

	w = do(t, s, http.MethodGet, "/api/v1/devices/"+resp.Device.ID, nil)
	expectStatus(t, w, http.StatusOK)
}

func TestOnboardingErrors(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/onboarding/missing", nil)
	expectStatus(t, w, http.StatusNotFound)

	w = do(t, s, http.MethodPost, "/api/v1/onboarding", nil)
	base := "/api/v1/onboarding/" + decode[onboarding.Status](t, w).SessionID

	// Pairing before the earlier steps is a precondition failure.
	w = do(t, s, http.MethodPost, base+"/pair", map[string]string{"device_id": "DEVICE_1"})
	expectStatus(t, w, http.StatusConflict)

	w = do(t, s, http.MethodPost, base+"/basic-info", map[string]any{"name": "", "type": "socket"})
	expectStatus(t, w, http.StatusBadRequest)
	body := decode[types.ErrorResponse](t, w)
	if body.Error.Code != "ONBOARDING_400" {
		t.Fatalf("expected ONBOARDING_400, got %s", body.Error.Code)
	}

	w = do(t, s, http.MethodPost, base+"/basic-info", map[string]any{"name": "Lamp", "type": "sensor"})
	expectStatus(t, w, http.StatusOK)

	w = do(t, s, http.MethodPost, base+"/location", map[string]string{"spot_id": "1F-A"})
	expectStatus(t, w, http.StatusConflict)

	w = do(t, s, http.MethodPost, base+"/location", map[string]string{"spot_id": "B1-A"})
	expectStatus(t, w, http.StatusOK)

	w = do(t, s, http.MethodPost, base+"/pair", map[string]string{"device_id": "  "})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, s, http.MethodPost, base+"/pair", map[string]string{"device_id": "OFFLINE_1"})
	expectStatus(t, w, http.StatusBadGateway)
	body = decode[types.ErrorResponse](t, w)
	if !body.Error.Retryable {
		t.Fatalf("expected retryable failure, got %+v", body.Error)
	}

	w = do(t, s, http.MethodGet, base, nil)
	if got := decode[onboarding.Status](t, w); got.State != onboarding.StateAwaitingPairing || got.AttemptsRemaining != 2 {
		t.Fatalf("expected awaiting_pairing with 2 attempts left, got %+v", got)
	}

	w = do(t, s, http.MethodPost, base+"/cancel", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[onboarding.Status](t, w); got.State != onboarding.StateIdle {
		t.Fatalf("expected idle after cancel, got %s", got.State)
	}

	w = do(t, s, http.MethodPost, base+"/start", nil)
	expectStatus(t, w, http.StatusOK)

	w = do(t, s, http.MethodDelete, base, nil)
	expectStatus(t, w, http.StatusNoContent)
	w = do(t, s, http.MethodGet, base, nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestScanEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/onboarding", nil)
	base := "/api/v1/onboarding/" + decode[onboarding.Status](t, w).SessionID

	do(t, s, http.MethodPost, base+"/basic-info", map[string]any{"name": "Hub", "type": "controller"})
	do(t, s, http.MethodPost, base+"/location", map[string]string{"spot_id": "1F-C"})

	w = do(t, s, http.MethodPost, base+"/scan", nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[struct {
		DeviceID string `json:"device_id"`
	}](t, w)
	if resp.DeviceID != pairing.DefaultScanResult {
		t.Fatalf("expected %s, got %s", pairing.DefaultScanResult, resp.DeviceID)
	}
}

func TestDeviceEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/v1/devices", map[string]any{
		"name":     "Kitchen Socket",
		"type":     "socket",
		"location": "1F-C",
	})
	expectStatus(t, w, http.StatusCreated)
	created := decode[types.Device](t, w)
	if created.Status != types.DeviceStatusInactive {
		t.Fatalf("expected default status inactive, got %s", created.Status)
	}

	w = do(t, s, http.MethodGet, "/api/v1/devices?q=kitchen", nil)
	expectStatus(t, w, http.StatusOK)
	list := decode[struct {
		Count int `json:"count"`
	}](t, w)
	if list.Count != 1 {
		t.Fatalf("expected 1 match, got %d", list.Count)
	}

	w = do(t, s, http.MethodPut, "/api/v1/devices/"+created.ID+"/status", map[string]string{"status": "maintenance"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[types.Device](t, w); got.Status != types.DeviceStatusMaintenance {
		t.Fatalf("expected maintenance, got %s", got.Status)
	}

	w = do(t, s, http.MethodPost, "/api/v1/devices/"+created.ID+"/usage", map[string]any{"usage": 1.5, "cost": 3})
	expectStatus(t, w, http.StatusCreated)

	w = do(t, s, http.MethodGet, "/api/v1/usage/total", nil)
	expectStatus(t, w, http.StatusOK)
	total := decode[struct {
		Total float64 `json:"total_usage"`
	}](t, w)
	if total.Total != 1.5 {
		t.Fatalf("expected total 1.5, got %v", total.Total)
	}

	w = do(t, s, http.MethodGet, "/api/v1/devices/"+created.ID+"/usage?start_time=yesterday", nil)
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, s, http.MethodPost, "/api/v1/devices", map[string]any{"name": "Bad", "type": "toaster"})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, s, http.MethodDelete, "/api/v1/devices/"+created.ID, nil)
	expectStatus(t, w, http.StatusNoContent)

	w = do(t, s, http.MethodGet, "/api/v1/devices/"+created.ID, nil)
	expectStatus(t, w, http.StatusNotFound)
	if body := decode[types.ErrorResponse](t, w); body.Error.Code != "DEVICE_404" {
		t.Fatalf("expected DEVICE_404, got %s", body.Error.Code)
	}
}

func TestLocationEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/locations?available=true", nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode[struct {
		Floors    []types.Floor `json:"floors"`
		Available int           `json:"available"`
	}](t, w)
	if resp.Available != 6 {
		t.Fatalf("expected 6 available spots, got %d", resp.Available)
	}
	for _, f := range resp.Floors {
		for _, sp := range f.Spots {
			if !sp.Available() {
				t.Fatalf("occupied spot %s listed as available", sp.ID)
			}
		}
	}

	w = do(t, s, http.MethodPost, "/api/v1/locations/floors", map[string]string{"label": "3F"})
	expectStatus(t, w, http.StatusCreated)
	w = do(t, s, http.MethodPost, "/api/v1/locations/floors", map[string]string{"label": "3F"})
	expectStatus(t, w, http.StatusConflict)

	w = do(t, s, http.MethodPost, "/api/v1/locations/floors/3F/spots", map[string]string{"name": "Roof"})
	expectStatus(t, w, http.StatusCreated)
	spot := decode[types.Spot](t, w)

	w = do(t, s, http.MethodPut, "/api/v1/locations/spots/"+spot.ID, map[string]string{"name": "Roof Garden"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[types.Spot](t, w); got.Name != "Roof Garden" {
		t.Fatalf("expected renamed spot, got %+v", got)
	}

	w = do(t, s, http.MethodDelete, "/api/v1/locations/spots/1F-A", nil)
	expectStatus(t, w, http.StatusConflict)

	w = do(t, s, http.MethodDelete, "/api/v1/locations/floors/9F", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestDeletedDeviceFreesSpot(t *testing.T) {
	s, lm := newTestServer(t)

	onboard := func() *httptest.ResponseRecorder {
		t.Helper()
		w := do(t, s, http.MethodPost, "/api/v1/onboarding", nil)
		base := "/api/v1/onboarding/" + decode[onboarding.Status](t, w).SessionID
		do(t, s, http.MethodPost, base+"/basic-info", map[string]any{"name": "Socket A", "type": "socket"})
		w = do(t, s, http.MethodPost, base+"/location", map[string]string{"spot_id": "2F-B"})
		expectStatus(t, w, http.StatusOK)
		return do(t, s, http.MethodPost, base+"/pair", map[string]string{"device_id": "DEVICE_123456"})
	}

	w := onboard()
	expectStatus(t, w, http.StatusCreated)
	dev := decode[struct {
		Device types.Device `json:"device"`
	}](t, w).Device

	w = do(t, s, http.MethodDelete, "/api/v1/devices/"+dev.ID, nil)
	expectStatus(t, w, http.StatusNoContent)

	spot, err := lm.catalog.Spot(context.Background(), "2F-B")
	if err != nil || !spot.Available() {
		t.Fatalf("expected 2F-B free after delete, got %+v (%v)", spot, err)
	}

	// The freed spot can be onboarded again.
	expectStatus(t, onboard(), http.StatusCreated)
}

func TestSpotStatusEndpoint(t *testing.T) {
	s, lm := newTestServer(t)

	w := do(t, s, http.MethodPut, "/api/v1/locations/spots/1F-A/status", map[string]string{"status": "available"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[types.Spot](t, w); !got.Available() {
		t.Fatalf("expected 1F-A available, got %+v", got)
	}

	w = do(t, s, http.MethodDelete, "/api/v1/locations/spots/1F-A", nil)
	expectStatus(t, w, http.StatusNoContent)

	w = do(t, s, http.MethodPut, "/api/v1/locations/spots/2F-A/status", map[string]string{"status": "occupied"})
	expectStatus(t, w, http.StatusOK)
	spot, _ := lm.catalog.Spot(context.Background(), "2F-A")
	if spot.Available() {
		t.Fatal("expected 2F-A occupied")
	}

	w = do(t, s, http.MethodPut, "/api/v1/locations/spots/2F-A/status", map[string]string{"status": "occupied"})
	expectStatus(t, w, http.StatusConflict)

	w = do(t, s, http.MethodPut, "/api/v1/locations/spots/2F-A/status", map[string]string{"status": "broken"})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, s, http.MethodPut, "/api/v1/locations/spots/9F-Z/status", map[string]string{"status": "available"})
	expectStatus(t, w, http.StatusNotFound)
}

func TestSettingsEndpoints(t *testing.T) {
	s, lm := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/settings", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[settings.Settings](t, w); got != settings.Default() {
		t.Fatalf("expected defaults, got %+v", got)
	}

	w = do(t, s, http.MethodPatch, "/api/v1/settings/device", map[string]any{"default_maintenance_interval": 30})
	expectStatus(t, w, http.StatusOK)
	if lm.settings.MaintenanceIntervalDays() != 30 {
		t.Fatalf("expected interval 30, got %d", lm.settings.MaintenanceIntervalDays())
	}

	w = do(t, s, http.MethodPatch, "/api/v1/settings/unknown", map[string]any{"x": 1})
	expectStatus(t, w, http.StatusNotFound)

	w = do(t, s, http.MethodPatch, "/api/v1/settings/theme", map[string]any{"mode": "neon"})
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, s, http.MethodPost, "/api/v1/settings/reset", nil)
	expectStatus(t, w, http.StatusOK)
	if lm.settings.MaintenanceIntervalDays() != settings.Default().Device.DefaultMaintenanceInterval {
		t.Fatal("expected reset to restore the default interval")
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	expectStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestSystemStatus(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/api/v1/system/status", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[interfaces.SystemStatus](t, w); got.State != "RUNNING" {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestReadiness(t *testing.T) {
	s, lm := newTestServer(t)

	w := do(t, s, http.MethodGet, "/ready", nil)
	expectStatus(t, w, http.StatusOK)

	lm.state = "STOPPING"
	w = do(t, s, http.MethodGet, "/ready", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)
}
