package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting/units"
)

// DefaultReadTimeout bounds the live read performed by Get.
const DefaultReadTimeout = 3 * time.Second

// Logger defines the logging interface used by the Reconciler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SyncResult summarises one SyncAll run.
type SyncResult struct {
	Discovered int                          `json:"discovered"`
	Upserted   int                          `json:"upserted"`
	Errors     map[lighting.Protocol]string `json:"errors,omitempty"`
}

// Reconciler keeps the device cache and the repository consistent with the
// adapters. All public methods are safe for concurrent use.
type Reconciler struct {
	repo        Repository
	adapters    map[lighting.Protocol]Adapter
	logger      Logger
	readTimeout time.Duration

	cacheMu    sync.RWMutex
	cache      map[string]*Device // by canonical id
	byExternal map[key]string     // protocol identity -> canonical id

	locks *keyedMutex
}

// NewReconciler creates a reconciler over repo and the given adapters.
func NewReconciler(repo Repository, adapters ...Adapter) *Reconciler {
	r := &Reconciler{
		repo:        repo,
		adapters:    make(map[lighting.Protocol]Adapter, len(adapters)),
		logger:      noopLogger{},
		readTimeout: DefaultReadTimeout,
		cache:       make(map[string]*Device),
		byExternal:  make(map[key]string),
		locks:       newKeyedMutex(),
	}
	for _, a := range adapters {
		r.adapters[a.Protocol()] = a
	}
	return r
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// SetReadTimeout bounds the live read done by Get.
func (r *Reconciler) SetReadTimeout(d time.Duration) {
	if d > 0 {
		r.readTimeout = d
	}
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Reconciler) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	r.byExternal = make(map[key]string, len(devices))
	for i := range devices {
		d := devices[i].DeepCopy()
		r.cache[d.ID] = d
		r.byExternal[d.key()] = d.ID
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Resolve maps a protocol identity to the canonical device id.
func (r *Reconciler) Resolve(protocol lighting.Protocol, externalID string) (string, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	id, ok := r.byExternal[key{protocol: protocol, externalID: externalID}]
	return id, ok
}

// List returns every cached device ordered by name. The returned devices
// are deep copies.
func (r *Reconciler) List(ctx context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	if len(r.cache) == 0 {
		r.cacheMu.RUnlock()
		return r.repo.ListDevices(ctx)
	}
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices, nil
}

// Rooms lists the stored rooms.
func (r *Reconciler) Rooms(ctx context.Context) ([]Room, error) {
	return r.repo.ListRooms(ctx)
}

// SyncAll lists every adapter in parallel and upserts each discovered
// device. Devices missing from a listing are left untouched. A failing
// adapter is logged and recorded in the result without affecting the others.
func (r *Reconciler) SyncAll(ctx context.Context) (SyncResult, error) {
	return r.Sync(ctx)
}

// Sync is SyncAll restricted to the given protocols. With no protocols it
// syncs every adapter; protocols without an adapter are skipped.
func (r *Reconciler) Sync(ctx context.Context, protocols ...lighting.Protocol) (SyncResult, error) {
	var (
		mu     sync.Mutex
		result = SyncResult{Errors: make(map[lighting.Protocol]string)}
		g      errgroup.Group
	)

	for protocol, adapter := range r.adapters {
		if len(protocols) > 0 && !slices.Contains(protocols, protocol) {
			continue
		}
		g.Go(func() error {
			found, err := adapter.ListDevices(ctx)
			if err != nil {
				r.logger.Warn("device listing failed", "protocol", protocol, "error", err)
				mu.Lock()
				result.Errors[protocol] = err.Error()
				mu.Unlock()
				return nil
			}

			rooms := make(map[string]*string)
			upserted := 0
			for _, dd := range found {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				roomID := r.ensureRoom(ctx, rooms, dd.RoomName, dd.RoomArchetype)
				if _, err := r.upsertDiscovered(ctx, protocol, dd, roomID); err != nil {
					r.logger.Error("device upsert failed",
						"protocol", protocol, "external_id", dd.ExternalID, "error", err)
					continue
				}
				upserted++
			}

			mu.Lock()
			result.Discovered += len(found)
			result.Upserted += upserted
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	if len(result.Errors) == 0 {
		result.Errors = nil
	}

	r.logger.Info("device sync complete",
		"discovered", result.Discovered,
		"upserted", result.Upserted,
		"failed_protocols", len(result.Errors),
	)
	return result, nil
}

// ensureRoom upserts a room once per sync and returns its id.
func (r *Reconciler) ensureRoom(ctx context.Context, seen map[string]*string, name, archetype string) *string {
	if name == "" {
		return nil
	}
	if id, ok := seen[name]; ok {
		return id
	}
	room, err := r.repo.UpsertRoom(ctx, name, archetype)
	if err != nil {
		r.logger.Warn("room upsert failed", "room", name, "error", err)
		seen[name] = nil
		return nil
	}
	seen[name] = &room.ID
	return &room.ID
}

// upsertDiscovered writes a discovered device under its device lock.
// Known state fields the listing did not report are kept.
func (r *Reconciler) upsertDiscovered(ctx context.Context, protocol lighting.Protocol, dd lighting.DiscoveredDevice, roomID *string) (*Device, error) {
	k := key{protocol: protocol, externalID: dd.ExternalID}
	unlock := r.locks.Lock(k)
	defer unlock()

	d := &Device{
		Protocol:     protocol,
		ExternalID:   dd.ExternalID,
		Name:         dd.Name,
		Type:         dd.Type,
		RoomID:       roomID,
		Capabilities: dd.Capabilities,
		State:        dd.State.Clamped(),
		Online:       dd.Online,
	}
	if d.Name == "" {
		d.Name = fallbackName(protocol, dd.ExternalID)
	}
	if d.Type == "" {
		d.Type = lighting.DeviceTypeLight
	}
	if cur := r.cachedByKey(k); cur != nil {
		d.ID = cur.ID
		d.CreatedAt = cur.CreatedAt
		d.State = cur.State.Merge(d.State)
		if d.RoomID == nil {
			d.RoomID = cur.RoomID
		}
	}

	// Online and reachable describe the same link. A listing that reports
	// reachability decides both; otherwise a device already known to be
	// unreachable stays offline until something reports it back.
	if dd.State.Reachable != nil {
		d.Online = *dd.State.Reachable
	} else if d.State.Reachable != nil {
		d.Online = d.Online && *d.State.Reachable
		d.State.Reachable = lighting.Bool(d.Online)
	}
	if d.Online {
		now := time.Now().UTC()
		d.LastSeen = &now
	}

	saved, err := r.repo.UpsertDevice(ctx, d)
	if err != nil {
		return nil, err
	}
	r.store(saved)
	return saved.DeepCopy(), nil
}

// Get returns a device, refreshed from a best-effort live read. If the read
// fails the cached device is returned unchanged. Only ErrDeviceNotFound is
// returned as an error.
func (r *Reconciler) Get(ctx context.Context, id string) (*Device, error) {
	d, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	adapter, ok := r.adapters[d.Protocol]
	if !ok {
		return d, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, r.readTimeout)
	live, err := adapter.ReadState(readCtx, d.ExternalID)
	cancel()
	if err != nil {
		r.logger.Warn("live state read failed, serving cached state",
			"device_id", d.ID, "protocol", d.Protocol, "error", err)
		return d, nil
	}

	if merged := r.mergeState(ctx, d.key(), live); merged != nil {
		return merged, nil
	}
	return d, nil
}

// SetState writes patch to the owning adapter and, once acknowledged, merges
// it into the cache and repository. The patch is clamped and reduced to the
// groups the device's capability set supports. A failed write is logged and
// the unchanged cached device returned.
func (r *Reconciler) SetState(ctx context.Context, id string, patch lighting.State) (*Device, error) {
	d, _, err := r.write(ctx, id, patch)
	return d, err
}

// WriteState is SetState for callers that act on write failures. The cache
// is updated exactly as SetState does it; the adapter's failure, if any, is
// returned alongside the device. A *lighting.PartialFailureError means the
// acknowledged groups were merged.
func (r *Reconciler) WriteState(ctx context.Context, id string, patch lighting.State) (*Device, error) {
	d, writeErr, err := r.write(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return d, writeErr
}

// write applies patch and returns the resulting device, the adapter's write
// failure, and any error that prevented the write from being attempted.
func (r *Reconciler) write(ctx context.Context, id string, patch lighting.State) (*Device, error, error) {
	if len(patch.Groups()) == 0 {
		return nil, nil, fmt.Errorf("%w: no writable fields", lighting.ErrInvalidState)
	}

	d, err := r.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	write := patch.Clamped().Writable(d.Capabilities)
	if write.ColorTemperature != nil && d.Capabilities.MinMirek != nil && d.Capabilities.MaxMirek != nil {
		*write.ColorTemperature = units.ClampMirekRange(*write.ColorTemperature,
			*d.Capabilities.MinMirek, *d.Capabilities.MaxMirek)
	}
	if write.IsEmpty() {
		r.logger.Debug("state patch has no fields supported by device", "device_id", id)
		return d, nil, nil
	}

	adapter, ok := r.adapters[d.Protocol]
	if !ok {
		r.logger.Warn("no adapter for device protocol", "device_id", id, "protocol", d.Protocol)
		return d, &lighting.ConnectionError{Protocol: d.Protocol, Err: lighting.ErrNotConnected}, nil
	}

	acked := write
	writeErr := adapter.WriteState(ctx, d.ExternalID, write)
	if writeErr != nil {
		var pf *lighting.PartialFailureError
		if !errors.As(writeErr, &pf) {
			r.logger.Warn("state write failed", "device_id", id, "protocol", d.Protocol, "error", writeErr)
			return d, writeErr, nil
		}
		acked = pf.Acknowledged(write)
		r.logger.Warn("state write partially failed",
			"device_id", id, "failed", pf.FailedGroups(), "error", writeErr)
		if acked.IsEmpty() {
			return d, writeErr, nil
		}
	}

	if merged := r.mergeState(ctx, d.key(), acked); merged != nil {
		return merged, writeErr, nil
	}
	return d, writeErr, nil
}

// ApplyEvent folds an adapter event into the cache and repository.
// Replaying an event is a no-op. Events for unknown devices and
// connection-level events are ignored.
func (r *Reconciler) ApplyEvent(ctx context.Context, ev lighting.Event) error {
	switch ev.Type {
	case lighting.EventStateChanged:
		if ev.State == nil || ev.DeviceExternalID == "" {
			return nil
		}
		k := key{protocol: ev.Source, externalID: ev.DeviceExternalID}
		if r.cachedByKey(k) == nil {
			r.logger.Debug("state change for unknown device ignored", "device", k.String())
			return nil
		}
		r.mergeState(ctx, k, *ev.State)
		return nil

	case lighting.EventDeviceAdded:
		if ev.Device == nil {
			return nil
		}
		var roomID *string
		if ev.Device.RoomName != "" {
			roomID = r.ensureRoom(ctx, map[string]*string{}, ev.Device.RoomName, ev.Device.RoomArchetype)
		}
		dd := *ev.Device
		dd.Online = true
		dd.State.Reachable = lighting.Bool(true)
		_, err := r.upsertDiscovered(ctx, ev.Source, dd, roomID)
		return err

	case lighting.EventDeviceRemoved:
		return r.markGone(ctx, key{protocol: ev.Source, externalID: ev.DeviceExternalID})
	}
	return nil
}

// Run applies events until ctx ends or the channel closes.
func (r *Reconciler) Run(ctx context.Context, events <-chan lighting.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := r.ApplyEvent(ctx, ev); err != nil {
				r.logger.Error("applying event failed",
					"type", ev.Type, "protocol", ev.Source,
					"external_id", ev.DeviceExternalID, "error", err)
			}
		}
	}
}

// Commission adds a device through the adapter's commissioning flow and
// stores it.
func (r *Reconciler) Commission(ctx context.Context, protocol lighting.Protocol, pairingCode string) (*Device, error) {
	c, err := r.commissioner(protocol)
	if err != nil {
		return nil, err
	}
	dd, err := c.Commission(ctx, pairingCode)
	if err != nil {
		return nil, fmt.Errorf("commissioning %s device: %w", protocol, err)
	}
	dd.Online = true
	dd.State.Reachable = lighting.Bool(true)
	d, err := r.upsertDiscovered(ctx, protocol, dd, nil)
	if err != nil {
		return nil, fmt.Errorf("storing commissioned device: %w", err)
	}
	r.logger.Info("device commissioned", "device_id", d.ID, "protocol", protocol, "external_id", d.ExternalID)
	return d, nil
}

// Decommission removes a device from its network, when the adapter supports
// that, and deletes it from the catalogue.
func (r *Reconciler) Decommission(ctx context.Context, id string) error {
	d, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}

	if c, err := r.commissioner(d.Protocol); err == nil {
		if err := c.Decommission(ctx, d.ExternalID); err != nil {
			return fmt.Errorf("decommissioning %s device: %w", d.Protocol, err)
		}
	}

	unlock := r.locks.Lock(d.key())
	defer unlock()

	if err := r.repo.DeleteDevice(ctx, d.ID); err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return fmt.Errorf("deleting device: %w", err)
	}

	r.cacheMu.Lock()
	delete(r.cache, d.ID)
	delete(r.byExternal, d.key())
	r.cacheMu.Unlock()

	r.logger.Info("device decommissioned", "device_id", d.ID, "protocol", d.Protocol)
	return nil
}

func (r *Reconciler) commissioner(protocol lighting.Protocol) (Commissioner, error) {
	adapter, ok := r.adapters[protocol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, protocol)
	}
	c, ok := adapter.(Commissioner)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCommissioningUnsupported, protocol)
	}
	return c, nil
}

// mergeState merges patch into the device under its lock and persists the
// change. An event that changes nothing touches neither cache nor
// repository. Returns the resulting device.
func (r *Reconciler) mergeState(ctx context.Context, k key, patch lighting.State) *Device {
	unlock := r.locks.Lock(k)
	defer unlock()

	cur := r.cachedByKey(k)
	if cur == nil {
		return nil
	}

	clamped := patch.Clamped()
	online := cur.Online
	if clamped.Reachable != nil {
		online = *clamped.Reachable
	}
	if cur.State.Covers(clamped) && online == cur.Online {
		return cur.DeepCopy()
	}

	next := cur.DeepCopy()
	next.State = cur.State.Merge(clamped)
	now := time.Now().UTC()
	next.StateUpdatedAt = &now
	next.UpdatedAt = now

	if !cur.State.Covers(clamped) {
		if err := r.repo.UpdateState(ctx, cur.ID, clamped); err != nil {
			r.logger.Error("persisting device state failed", "device_id", cur.ID, "error", err)
		}
	}
	if online != cur.Online {
		next.Online = online
		if online {
			next.LastSeen = &now
		}
		if err := r.repo.UpdateOnline(ctx, cur.ID, online, now); err != nil {
			r.logger.Error("persisting device online failed", "device_id", cur.ID, "error", err)
		}
	}

	r.store(next)
	return next.DeepCopy()
}

// markGone marks a removed device offline and unreachable. It stays in the
// catalogue until decommissioned.
func (r *Reconciler) markGone(ctx context.Context, k key) error {
	if r.cachedByKey(k) == nil {
		return nil
	}
	r.mergeState(ctx, k, lighting.State{Reachable: lighting.Bool(false)})
	return nil
}

// lookup returns a deep copy of the device with the given id, from cache or
// repository.
func (r *Reconciler) lookup(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("loading device: %w", err)
	}
	r.store(d)
	return d.DeepCopy(), nil
}

// cachedByKey returns the cached device for k without copying. Callers must
// hold the device lock for k, or only read immutable identity fields.
func (r *Reconciler) cachedByKey(k key) *Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	id, ok := r.byExternal[k]
	if !ok {
		return nil
	}
	return r.cache[id]
}

// store replaces the cached copy of d.
func (r *Reconciler) store(d *Device) {
	cp := d.DeepCopy()
	r.cacheMu.Lock()
	r.cache[cp.ID] = cp
	r.byExternal[cp.key()] = cp.ID
	r.cacheMu.Unlock()
}
