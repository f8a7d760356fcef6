package device

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
	_ "github.com/nerrad567/gray-logic-lighting/migrations"
)

// newTestRepo opens a migrated SQLite database in a temp dir.
func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "lighting.db"),
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(context.Background()))
	return NewSQLiteRepository(db.DB)
}

// countingRepo counts persistence writes so tests can assert no-ops.
type countingRepo struct {
	Repository
	mu           sync.Mutex
	stateWrites  int
	onlineWrites int
}

func (c *countingRepo) UpdateState(ctx context.Context, id string, s lighting.State) error {
	c.mu.Lock()
	c.stateWrites++
	c.mu.Unlock()
	return c.Repository.UpdateState(ctx, id, s)
}

func (c *countingRepo) UpdateOnline(ctx context.Context, id string, online bool, ts time.Time) error {
	c.mu.Lock()
	c.onlineWrites++
	c.mu.Unlock()
	return c.Repository.UpdateOnline(ctx, id, online, ts)
}

func (c *countingRepo) writes() (state, online int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateWrites, c.onlineWrites
}

var errOffline = errors.New("fake: offline")

// fakeAdapter is an in-memory protocol adapter.
type fakeAdapter struct {
	protocol lighting.Protocol

	mu           sync.Mutex
	devices      []lighting.DiscoveredDevice
	live         map[string]lighting.State
	writes       []lighting.State
	listErr      error
	readErr      error
	writeErr     error
	commissioned lighting.DiscoveredDevice
	removed      []string
}

func newFakeAdapter(p lighting.Protocol, devices ...lighting.DiscoveredDevice) *fakeAdapter {
	return &fakeAdapter{
		protocol: p,
		devices:  devices,
		live:     make(map[string]lighting.State),
		readErr:  errOffline,
	}
}

func (f *fakeAdapter) Protocol() lighting.Protocol { return f.protocol }

func (f *fakeAdapter) ListDevices(context.Context) ([]lighting.DiscoveredDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]lighting.DiscoveredDevice(nil), f.devices...), nil
}

func (f *fakeAdapter) ReadState(_ context.Context, externalID string) (lighting.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return lighting.State{}, f.readErr
	}
	return f.live[externalID].Clone(), nil
}

func (f *fakeAdapter) WriteState(_ context.Context, _ string, patch lighting.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, patch.Clone())
	return f.writeErr
}

func (f *fakeAdapter) setDevices(devices ...lighting.DiscoveredDevice) {
	f.mu.Lock()
	f.devices = devices
	f.mu.Unlock()
}

func (f *fakeAdapter) setLive(externalID string, s lighting.State) {
	f.mu.Lock()
	f.live[externalID] = s
	f.readErr = nil
	f.mu.Unlock()
}

func (f *fakeAdapter) lastWrite() (lighting.State, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return lighting.State{}, 0
	}
	return f.writes[len(f.writes)-1], len(f.writes)
}

// fakeCommissioner adds commissioning to fakeAdapter.
type fakeCommissioner struct {
	*fakeAdapter
}

func (f *fakeCommissioner) Commission(_ context.Context, code string) (lighting.DiscoveredDevice, error) {
	if code == "" {
		return lighting.DiscoveredDevice{}, errors.New("fake: empty pairing code")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commissioned, nil
}

func (f *fakeCommissioner) Decommission(_ context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, externalID)
	return nil
}

func colourLight(externalID, name string) lighting.DiscoveredDevice {
	return lighting.DiscoveredDevice{
		ExternalID: externalID,
		Name:       name,
		Type:       lighting.DeviceTypeLight,
		Capabilities: lighting.Capabilities{
			SupportsBrightness:       true,
			SupportsColor:            true,
			SupportsColorTemperature: true,
			MinMirek:                 lighting.Int(153),
			MaxMirek:                 lighting.Int(454),
		},
		State: lighting.State{
			On:               lighting.Bool(false),
			Brightness:       lighting.Float(20),
			ColorTemperature: lighting.Int(300),
		},
		Online: true,
	}
}

func plainPlug(externalID string) lighting.DiscoveredDevice {
	return lighting.DiscoveredDevice{
		ExternalID: externalID,
		Name:       "Plug " + externalID,
		Type:       lighting.DeviceTypePlug,
		State:      lighting.State{On: lighting.Bool(false)},
		Online:     true,
	}
}
