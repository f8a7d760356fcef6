package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/bridges/health"
	"github.com/nerrad567/gray-logic-lighting/internal/credential"
	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func writeTestConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeTestConfig(t, `
site:
  id: test-site
database:
  path: ""
security:
  jwt:
    secret: "`+testSecret+`"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_BrokerUnreachable exercises startup against a port with no broker.
func TestRun_BrokerUnreachable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "lighting.db")
	writeTestConfig(t, `
site:
  id: test-site
database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
  qos: 1
security:
  jwt:
    secret: "`+testSecret+`"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error (expected): %v", err)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func openTestStore(t *testing.T) *credential.SQLiteStore {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "lighting.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return credential.NewSQLiteStore(db.DB)
}

func TestSeedCredentials(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Protocols.Bridge = config.BridgeConfig{Enabled: true, Host: "192.168.1.20", ApplicationKey: "app-key"}
	cfg.Protocols.Mesh = config.MeshConfig{Enabled: true, FabricID: "fabric-1"}

	if err := seedCredentials(ctx, cfg, store); err != nil {
		t.Fatalf("seedCredentials() error: %v", err)
	}

	bridge, err := store.Lookup(ctx, lighting.ProtocolBridge)
	if err != nil {
		t.Fatalf("Lookup(bridge) error: %v", err)
	}
	if bridge.Host != "192.168.1.20" || bridge.Secret != "app-key" {
		t.Errorf("bridge credential = %+v", bridge)
	}

	mesh, err := store.Lookup(ctx, lighting.ProtocolMesh)
	if err != nil {
		t.Fatalf("Lookup(mesh) error: %v", err)
	}
	if mesh.Secret != "fabric-1" {
		t.Errorf("mesh credential = %+v", mesh)
	}
}

func TestSeedCredentials_KeepsStoredWhenUnconfigured(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stored := credential.Credential{Protocol: lighting.ProtocolBridge, Host: "bridge.local", Secret: "paired-key"}
	if err := store.Put(ctx, stored); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	cfg := &config.Config{}
	cfg.Protocols.Bridge = config.BridgeConfig{Enabled: true, Host: "bridge.local"}

	if err := seedCredentials(ctx, cfg, store); err != nil {
		t.Fatalf("seedCredentials() error: %v", err)
	}

	got, err := store.Lookup(ctx, lighting.ProtocolBridge)
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if got.Secret != "paired-key" {
		t.Errorf("secret = %q, want the stored key kept", got.Secret)
	}

	if _, err := store.Lookup(ctx, lighting.ProtocolMesh); !errors.Is(err, credential.ErrNotFound) {
		t.Errorf("mesh Lookup() error = %v, want ErrNotFound", err)
	}
}

func TestBuildAdapters_Enabled(t *testing.T) {
	store := openTestStore(t)

	cfg := &config.Config{}
	if got := buildAdapters(cfg, store, nil, nil, logging.Discard()); len(got) != 0 {
		t.Errorf("buildAdapters() with nothing enabled = %d adapters, want 0", len(got))
	}

	cfg.Protocols.Bridge.Enabled = true
	got := buildAdapters(cfg, store, nil, nil, logging.Discard())
	if len(got) != 1 || got[0].Protocol() != lighting.ProtocolBridge {
		t.Fatalf("buildAdapters() = %v, want the bridge adapter", got)
	}
	if status := got[0].Connection().Status; status != lighting.StatusDisconnected {
		t.Errorf("new adapter status = %q, want disconnected", status)
	}
}

// listingAdapter reports a fixed device list and accepts every write.
type listingAdapter struct {
	protocol lighting.Protocol
	status   lighting.ConnectionStatus
	devices  []lighting.DiscoveredDevice
}

func (a *listingAdapter) Protocol() lighting.Protocol { return a.protocol }

func (a *listingAdapter) ListDevices(context.Context) ([]lighting.DiscoveredDevice, error) {
	return a.devices, nil
}

func (a *listingAdapter) ReadState(context.Context, string) (lighting.State, error) {
	return lighting.State{}, nil
}

func (a *listingAdapter) WriteState(context.Context, string, lighting.State) error { return nil }

func (a *listingAdapter) Subscribe(buffer int) *eventbus.Subscription {
	return eventbus.NewStream().Subscribe(buffer)
}

func (a *listingAdapter) Connect(context.Context) error { return nil }

func (a *listingAdapter) Disconnect() error { return nil }

func (a *listingAdapter) Connection() lighting.Connection {
	return lighting.Connection{Protocol: a.protocol, Status: a.status}
}

func TestConnectedProtocols(t *testing.T) {
	adapters := []protocolAdapter{
		&listingAdapter{protocol: lighting.ProtocolBridge, status: lighting.StatusConnected},
		&listingAdapter{protocol: lighting.ProtocolMesh, status: lighting.StatusConnecting},
	}
	got := connectedProtocols(adapters)
	if len(got) != 1 || got[0] != lighting.ProtocolBridge {
		t.Errorf("connectedProtocols() = %v, want [bridge]", got)
	}
	if got := connectedProtocols(nil); len(got) != 0 {
		t.Errorf("connectedProtocols(nil) = %v, want none", got)
	}
}

func TestResyncOnConnect(t *testing.T) {
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "lighting.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	bridge := &listingAdapter{protocol: lighting.ProtocolBridge}
	mesh := &listingAdapter{protocol: lighting.ProtocolMesh, devices: []lighting.DiscoveredDevice{{
		ExternalID: "0x10", Name: "Porch", Type: lighting.DeviceTypeLight, Online: true,
	}}}
	reconciler := device.NewReconciler(device.NewSQLiteRepository(db.DB), bridge, mesh)
	reporter := health.NewReporter(health.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan lighting.Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		resyncOnConnect(ctx, events, reconciler, reporter, logging.Discard())
	}()

	// The device appears while the bridge is away.
	bridge.devices = []lighting.DiscoveredDevice{{
		ExternalID: "L1", Name: "Desk", Type: lighting.DeviceTypeLight, Online: true,
	}}
	events <- lighting.Event{Type: lighting.EventHeartbeat}
	events <- lighting.Event{Type: lighting.EventConnectionUp, Source: lighting.ProtocolBridge}
	close(events)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("resyncOnConnect did not return after the channel closed")
	}

	devices, err := reconciler.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(devices) != 1 || devices[0].ExternalID != "L1" {
		t.Errorf("List() = %+v, want only the device of the adapter that came up", devices)
	}
}
