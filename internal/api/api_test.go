package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gorilla/mux"

	"lanlink/internal/config"
	"lanlink/internal/coordinator"
	"lanlink/internal/discovery"
	"lanlink/internal/events"
	"lanlink/internal/models"
	"lanlink/internal/platform"
	"lanlink/internal/store"
)

type fakeWifi struct {
	mu      sync.Mutex
	results []models.WifiNetwork
	joined  string
}

func (f *fakeWifi) Scan(ctx context.Context) ([]models.WifiNetwork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WifiNetwork(nil), f.results...), nil
}

func (f *fakeWifi) Join(ctx context.Context, ssid, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = ssid
	return nil
}

func (f *fakeWifi) Leave(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = ""
	return nil
}

func (f *fakeWifi) CurrentLink(ctx context.Context) (platform.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joined == "" {
		return platform.Link{}, errors.New("not associated")
	}
	return platform.Link{SSID: f.joined, BSSID: "aa:bb:cc:dd:ee:ff", SignalStrength: -40}, nil
}

type fakeSource struct {
	ch        chan struct{}
	closeOnce sync.Once
}

func (f *fakeSource) Notifications() <-chan struct{} { return f.ch }

func (f *fakeSource) Close() error {
	f.closeOnce.Do(func() { close(f.ch) })
	return nil
}

type fakeHotspot struct{}

func (fakeHotspot) StartAccessPoint(ctx context.Context, ssid, password, security string, maxClients int) error {
	return nil
}

func (fakeHotspot) StopAccessPoint(ctx context.Context) error { return nil }

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestRouter(t *testing.T, initialize bool) (*mux.Router, *coordinator.Coordinator, *fakeWifi) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Network.EnableAutoDiscovery = false
	cfg.Network.DefaultPort = freePort(t)
	cfg.Storage.DataDir = dir
	cfg.Storage.DBPath = filepath.Join(dir, "lanlink.db")
	cfg.Storage.KeyPath = filepath.Join(dir, "lanlink.key")

	st, err := store.New(cfg.Storage.DBPath, cfg.Storage.KeyPath, cfg.Network.MaxSavedNetworks)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	fw := &fakeWifi{}
	coord := coordinator.New(coordinator.Deps{
		Config:       cfg,
		ConfigPath:   filepath.Join(dir, "config.yaml"),
		Bus:          bus,
		Store:        st,
		Identity:     discovery.Identity{DeviceID: "api-test", DeviceName: "Test", DeviceType: models.DeviceDesktop, Port: 8384},
		Wifi:         fw,
		Hotspot:      fakeHotspot{},
		Connectivity: &fakeSource{ch: make(chan struct{}, 1)},
		Permissions:  platform.GrantAll{},
	})
	t.Cleanup(func() { coord.Shutdown(context.Background()) })

	if initialize {
		if err := coord.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize failed: %v", err)
		}
	}

	router := mux.NewRouter()
	NewWifiHandler(coord).RegisterRoutes(router)
	NewNetworkHandler(coord).RegisterRoutes(router)
	NewStatusHandler(coord, "test").RegisterRoutes(router)
	return router, coord, fw
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, true)

	rr := doJSON(t, router, "GET", "/api/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestCommandsReturn503BeforeInitialize(t *testing.T) {
	router, _, _ := newTestRouter(t, false)

	rr := doJSON(t, router, "POST", "/api/wifi/scan", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	rr = doJSON(t, router, "GET", "/api/statistics", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestScanReturnsSortedNetworks(t *testing.T) {
	router, _, fw := newTestRouter(t, true)
	fw.results = []models.WifiNetwork{
		{SSID: "CafeWifi", BSSID: "11:11:11:11:11:11", SignalStrength: -70, Capabilities: "[WPA2-PSK]"},
		{SSID: "HomeWifi", BSSID: "22:22:22:22:22:22", SignalStrength: -40, Capabilities: "[WPA2-PSK]"},
	}

	rr := doJSON(t, router, "POST", "/api/wifi/scan", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var networks []models.WifiNetwork
	if err := json.NewDecoder(rr.Body).Decode(&networks); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(networks) != 2 || networks[0].SSID != "HomeWifi" {
		t.Errorf("expected HomeWifi first, got %+v", networks)
	}
	if !networks[0].IsSecure {
		t.Error("expected security classification applied")
	}
}

func TestConnectValidatesRequest(t *testing.T) {
	router, _, _ := newTestRouter(t, true)

	rr := doJSON(t, router, "POST", "/api/wifi/connect", map[string]string{"password": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing ssid, got %d", rr.Code)
	}

	// Secure network without a password is a validation failure.
	rr = doJSON(t, router, "POST", "/api/wifi/connect", map[string]string{
		"ssid":         "HomeWifi",
		"bssid":        "22:22:22:22:22:22",
		"capabilities": "[WPA2-PSK]",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", rr.Code)
	}
}

func TestConnectAndSavedNetworks(t *testing.T) {
	router, _, _ := newTestRouter(t, true)

	rr := doJSON(t, router, "POST", "/api/wifi/connect", map[string]string{
		"ssid":         "HomeWifi",
		"bssid":        "22:22:22:22:22:22",
		"capabilities": "[WPA2-PSK]",
		"password":     "secret123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "GET", "/api/wifi/saved", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.Bytes()
	var saved []models.SavedNetwork
	if err := json.Unmarshal(body, &saved); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(saved) != 1 || saved[0].SSID != "HomeWifi" {
		t.Errorf("unexpected saved networks %+v", saved)
	}
	if bytes.Contains(body, []byte("secret123")) {
		t.Error("saved-network response must not contain passwords")
	}
}

func TestShareLifecycle(t *testing.T) {
	router, _, _ := newTestRouter(t, true)

	rr := doJSON(t, router, "POST", "/api/sharing/start", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "POST", "/api/sharing/start", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double start, got %d", rr.Code)
	}

	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("contents"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	rr = doJSON(t, router, "POST", "/api/shares", map[string]interface{}{
		"path":           path,
		"generateQrCode": true,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var file models.SharedFile
	if err := json.NewDecoder(rr.Body).Decode(&file); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if file.ID == "" || !file.HasQRCode {
		t.Errorf("unexpected share %+v", file)
	}

	rr = doJSON(t, router, "GET", "/api/shares", nil)
	var shares []models.SharedFile
	if err := json.NewDecoder(rr.Body).Decode(&shares); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(shares) != 1 {
		t.Errorf("expected 1 share, got %d", len(shares))
	}

	rr = doJSON(t, router, "POST", "/api/shares/"+file.ID+"/qrcode", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = doJSON(t, router, "POST", "/api/shares/no-such-id/qrcode", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown share, got %d", rr.Code)
	}

	rr = doJSON(t, router, "POST", "/api/sharing/stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestCancelUnknownTransferGives404(t *testing.T) {
	router, _, _ := newTestRouter(t, true)

	rr := doJSON(t, router, "POST", "/api/transfers/no-such-id/cancel", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHotspotEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t, true)

	rr := doJSON(t, router, "POST", "/api/hotspot/enable", map[string]string{"security": "bogus"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid security, got %d", rr.Code)
	}

	rr = doJSON(t, router, "POST", "/api/hotspot/enable", map[string]string{"password": "short"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for weak password, got %d", rr.Code)
	}

	rr = doJSON(t, router, "POST", "/api/hotspot/enable", map[string]string{"password": "longenough"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, router, "POST", "/api/hotspot/enable", map[string]string{"password": "longenough"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for double enable, got %d", rr.Code)
	}

	rr = doJSON(t, router, "POST", "/api/hotspot/disable", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestConfigEndpoints(t *testing.T) {
	router, coord, _ := newTestRouter(t, true)

	rr := doJSON(t, router, "GET", "/api/config", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("password")) {
		t.Error("config response must not expose the hotspot password")
	}

	next := coord.Config().Network
	next.MaxConcurrentTransfers = 9
	rr = doJSON(t, router, "PUT", "/api/config", map[string]interface{}{"network": next})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := coord.Config().Network.MaxConcurrentTransfers; got != 9 {
		t.Errorf("expected updated limit, got %d", got)
	}

	bad := coord.Config().Network
	bad.DefaultPort = -1
	rr = doJSON(t, router, "PUT", "/api/config", map[string]interface{}{"network": bad})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid config, got %d", rr.Code)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t, true)

	rr := doJSON(t, router, "GET", "/api/statistics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats models.NetworkStatistics
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.DiscoveryRunning || stats.SharingRunning || stats.HotspotEnabled {
		t.Errorf("unexpected initial statistics %+v", stats)
	}
}
