package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/auth"
	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// mockDevices is an in-memory DeviceService with error injection.
type mockDevices struct {
	mu      sync.Mutex
	devices map[string]*device.Device
	rooms   []device.Room

	listErr         error
	getErr          error
	setErr          error
	commissionErr   error
	decommissionErr error

	lastPatch   lighting.State
	lastCode    string
	syncCalls   int
	syncResult  device.SyncResult
	removedIDs  []string
	commissions []lighting.Protocol
}

func newMockDevices(devices ...device.Device) *mockDevices {
	m := &mockDevices{devices: make(map[string]*device.Device)}
	for i := range devices {
		d := devices[i]
		m.devices[d.ID] = &d
	}
	return m
}

func (m *mockDevices) List(_ context.Context) ([]device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *mockDevices) Get(_ context.Context, id string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *mockDevices) SetState(_ context.Context, id string, patch lighting.State) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPatch = patch
	if m.setErr != nil {
		return nil, m.setErr
	}
	d, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	d.State = d.State.Merge(patch.Clamped())
	return d.DeepCopy(), nil
}

func (m *mockDevices) SyncAll(_ context.Context) (device.SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncCalls++
	return m.syncResult, nil
}

func (m *mockDevices) Rooms(_ context.Context) ([]device.Room, error) {
	return m.rooms, nil
}

func (m *mockDevices) Commission(_ context.Context, protocol lighting.Protocol, code string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCode = code
	m.commissions = append(m.commissions, protocol)
	if m.commissionErr != nil {
		return nil, m.commissionErr
	}
	d := &device.Device{ID: "dev-new", Protocol: protocol, ExternalID: "42", Name: "Mesh node 42", Online: true}
	m.devices[d.ID] = d
	return d.DeepCopy(), nil
}

func (m *mockDevices) Decommission(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decommissionErr != nil {
		return m.decommissionErr
	}
	if _, ok := m.devices[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(m.devices, id)
	m.removedIDs = append(m.removedIDs, id)
	return nil
}

func (m *mockDevices) Resolve(protocol lighting.Protocol, externalID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.Protocol == protocol && d.ExternalID == externalID {
			return d.ID, true
		}
	}
	return "", false
}

type mockAdapter struct {
	conn lighting.Connection
}

func (a mockAdapter) Protocol() lighting.Protocol     { return a.conn.Protocol }
func (a mockAdapter) Connection() lighting.Connection { return a.conn }

// streamSource adapts an eventbus.Stream to EventSource.
type streamSource struct {
	*eventbus.Stream
}

func (s streamSource) Stats() eventbus.Stats {
	return eventbus.Stats{Sources: 2, Subscribers: s.Subscribers(), Published: s.Published()}
}

type mockBroker struct{ connected bool }

func (b mockBroker) IsConnected() bool { return b.connected }

func deskLamp() device.Device {
	room := "room-study"
	return device.Device{
		ID:         "dev-desk",
		Protocol:   lighting.ProtocolBridge,
		ExternalID: "light-1",
		Name:       "Desk Lamp",
		Type:       lighting.DeviceTypeLight,
		RoomID:     &room,
		Capabilities: lighting.Capabilities{
			SupportsBrightness: true,
		},
		State:  lighting.State{On: lighting.Bool(false), Brightness: lighting.Float(40)},
		Online: true,
	}
}

func porchLight() device.Device {
	return device.Device{
		ID:         "dev-porch",
		Protocol:   lighting.ProtocolMesh,
		ExternalID: "12",
		Name:       "Porch",
		Type:       lighting.DeviceTypeLight,
		Online:     false,
	}
}

// testServer creates a Server over mock devices and an in-memory stream.
func testServer(t *testing.T, devices *mockDevices) (*Server, *eventbus.Stream) {
	t.Helper()

	stream := eventbus.NewStream()
	t.Cleanup(stream.Close)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Logger:  logging.Discard(),
		Devices: devices,
		Adapters: []AdapterStatus{
			mockAdapter{conn: lighting.Connection{Protocol: lighting.ProtocolBridge, Status: lighting.StatusConnected}},
			mockAdapter{conn: lighting.Connection{Protocol: lighting.ProtocolMesh, Status: lighting.StatusConnecting, ReconnectAttempts: 2}},
		},
		Events:      streamSource{stream},
		EventBuffer: 16,
		MQTT:        mockBroker{connected: true},
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, stream
}

func tokenFor(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.GenerateAccessToken("usr-"+string(role), role, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return token
}

// do runs a request against the router as role. An empty role sends no
// Authorization header.
func do(t *testing.T, srv *Server, role auth.Role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, role))
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
