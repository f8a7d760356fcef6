package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// Publisher is the MQTT client surface the republisher needs.
type Publisher interface {
	PublishJSON(topic string, v any, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceState is the retained payload on a device state topic.
type DeviceState struct {
	DeviceID  string            `json:"device_id"`
	Protocol  lighting.Protocol `json:"protocol"`
	State     lighting.State    `json:"state"`
	Timestamp time.Time         `json:"timestamp"`
}

// Republisher mirrors bus records onto MQTT.
type Republisher struct {
	pub      Publisher
	resolver eventbus.Resolver
	qos      byte
	topics   mqtt.Topics
	logger   Logger

	mu     sync.Mutex
	states map[string]DeviceState // by canonical id
}

// NewRepublisher creates a republisher. resolver maps protocol identities
// to canonical ids; events for devices it does not know are still sent to
// the event topic but get no retained state.
func NewRepublisher(pub Publisher, resolver eventbus.Resolver, qos byte) *Republisher {
	return &Republisher{
		pub:      pub,
		resolver: resolver,
		qos:      qos,
		logger:   noopLogger{},
		states:   make(map[string]DeviceState),
	}
}

// SetLogger sets the logger.
func (r *Republisher) SetLogger(logger Logger) {
	r.logger = logger
}

// Seed primes the merged state with the catalogue, so the first partial
// change of a device publishes its complete state.
func (r *Republisher) Seed(devices []device.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range devices {
		st := d.State.Clone()
		st.Reachable = lighting.Bool(d.Online)
		ts := d.UpdatedAt
		if d.StateUpdatedAt != nil {
			ts = *d.StateUpdatedAt
		}
		r.states[d.ID] = DeviceState{DeviceID: d.ID, Protocol: d.Protocol, State: st, Timestamp: ts}
	}
}

// State returns the merged state last published for id.
func (r *Republisher) State(id string) (DeviceState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.states[id]
	if ok {
		ds.State = ds.State.Clone()
	}
	return ds, ok
}

// Run republishes events until ctx ends or the channel closes.
func (r *Republisher) Run(ctx context.Context, events <-chan lighting.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := r.Handle(ev); err != nil {
				r.logger.Warn("republishing event failed", "type", ev.Type, "error", err)
			}
		}
	}
}

// Handle republishes one event. Heartbeats are not mirrored. The merged
// state is kept up to date even while the broker is unreachable.
func (r *Republisher) Handle(ev lighting.Event) error {
	if ev.Type == lighting.EventHeartbeat {
		return nil
	}

	rec := eventbus.NewRecord(ev, r.resolver)
	retained, hasState := r.merge(rec, ev)

	if !r.pub.IsConnected() {
		r.logger.Debug("broker unavailable, event not republished", "type", ev.Type)
		return nil
	}

	var errs []error
	if err := r.pub.PublishJSON(r.topics.CoreEvent(string(rec.Type)), rec, r.qos, false); err != nil {
		errs = append(errs, fmt.Errorf("event %s: %w", rec.Type, err))
	}
	if hasState {
		if err := r.pub.PublishJSON(r.topics.CoreDeviceState(retained.DeviceID), retained, r.qos, true); err != nil {
			errs = append(errs, fmt.Errorf("device %s state: %w", retained.DeviceID, err))
		}
	}
	return errors.Join(errs...)
}

// merge folds a device event into the retained state. It reports false
// when the event carries no state for a known device.
func (r *Republisher) merge(rec eventbus.Record, ev lighting.Event) (DeviceState, bool) {
	if rec.DeviceID == "" {
		return DeviceState{}, false
	}

	var patch lighting.State
	switch ev.Type {
	case lighting.EventStateChanged:
		if ev.State == nil {
			return DeviceState{}, false
		}
		patch = ev.State.Clamped()
	case lighting.EventDeviceAdded:
		if ev.Device == nil {
			return DeviceState{}, false
		}
		patch = ev.Device.State.Clamped()
		patch.Reachable = lighting.Bool(true)
	case lighting.EventDeviceRemoved:
		patch = lighting.State{Reachable: lighting.Bool(false)}
	default:
		return DeviceState{}, false
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.states[rec.DeviceID]
	next := DeviceState{
		DeviceID:  rec.DeviceID,
		Protocol:  ev.Source,
		State:     cur.State.Merge(patch),
		Timestamp: ts,
	}
	r.states[rec.DeviceID] = next
	next.State = next.State.Clone()
	return next, true
}
