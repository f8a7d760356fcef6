package relay

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// DefaultStatsInterval is how often bus counters are sampled when no
// interval is configured.
const DefaultStatsInterval = time.Minute

// Writer records telemetry points. *influxdb.Client implements it.
type Writer interface {
	WriteConnection(conn lighting.Connection)
	WriteStateChange(protocol lighting.Protocol, deviceID, externalID string, st lighting.State, at time.Time)
	WriteBusStats(s influxdb.BusSample)
}

// StatsSource exposes bus counters. *eventbus.Bus implements it.
type StatsSource interface {
	Stats() eventbus.Stats
}

// Telemetry writes operational metrics for the lighting core.
type Telemetry struct {
	w        Writer
	resolver eventbus.Resolver
	stats    StatsSource
	interval time.Duration
}

// NewTelemetry creates a telemetry consumer. stats may be nil, in which
// case no bus counters are sampled.
func NewTelemetry(w Writer, resolver eventbus.Resolver, stats StatsSource, interval time.Duration) *Telemetry {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	return &Telemetry{w: w, resolver: resolver, stats: stats, interval: interval}
}

// RecordConnection writes a connection transition. It has the shape of an
// adapter OnTransition hook.
func (t *Telemetry) RecordConnection(conn lighting.Connection) {
	t.w.WriteConnection(conn)
}

// Run records state changes from events, and samples bus counters, until
// ctx ends or the channel closes. A final sample is written on exit.
func (t *Telemetry) Run(ctx context.Context, events <-chan lighting.Event) {
	var tick <-chan time.Time
	if t.stats != nil {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		tick = ticker.C
		defer t.sample()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			t.sample()
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.record(ev)
		}
	}
}

func (t *Telemetry) record(ev lighting.Event) {
	if ev.Type != lighting.EventStateChanged || ev.State == nil {
		return
	}
	var deviceID string
	if t.resolver != nil {
		deviceID, _ = t.resolver.Resolve(ev.Source, ev.DeviceExternalID)
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	t.w.WriteStateChange(ev.Source, deviceID, ev.DeviceExternalID, ev.State.Clamped(), at)
}

func (t *Telemetry) sample() {
	s := t.stats.Stats()
	t.w.WriteBusStats(influxdb.BusSample{
		Sources:        s.Sources,
		Subscribers:    s.Subscribers,
		Published:      s.Published,
		Dropped:        s.Dropped,
		SourceDropped:  s.SourceDropped,
		HeartbeatsSent: s.HeartbeatsSent,
	})
}
