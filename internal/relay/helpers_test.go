package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/eventbus"
	"github.com/nerrad567/gray-logic-lighting/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

type published struct {
	topic    string
	payload  any
	qos      byte
	retained bool
}

type mockPublisher struct {
	mu           sync.Mutex
	disconnected bool
	failTopic    string
	messages     []published
}

func (m *mockPublisher) PublishJSON(topic string, v any, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic == m.failTopic {
		return errors.New("publish refused")
	}
	m.messages = append(m.messages, published{topic: topic, payload: v, qos: qos, retained: retained})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}

func (m *mockPublisher) sent() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.messages...)
}

func (m *mockPublisher) last(topic string) (published, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].topic == topic {
			return m.messages[i], true
		}
	}
	return published{}, false
}

// mapResolver resolves "protocol/external" keys.
type mapResolver map[string]string

func (m mapResolver) Resolve(protocol lighting.Protocol, externalID string) (string, bool) {
	id, ok := m[string(protocol)+"/"+externalID]
	return id, ok
}

var _ eventbus.Resolver = mapResolver(nil)

type stateWrite struct {
	protocol   lighting.Protocol
	deviceID   string
	externalID string
	state      lighting.State
	at         time.Time
}

type mockWriter struct {
	mu          sync.Mutex
	connections []lighting.Connection
	states      []stateWrite
	samples     []influxdb.BusSample
}

func (m *mockWriter) WriteConnection(conn lighting.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections = append(m.connections, conn)
}

func (m *mockWriter) WriteStateChange(protocol lighting.Protocol, deviceID, externalID string, st lighting.State, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, stateWrite{protocol, deviceID, externalID, st, at})
}

func (m *mockWriter) WriteBusStats(s influxdb.BusSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
}

func (m *mockWriter) stateWrites() []stateWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateWrite(nil), m.states...)
}

func (m *mockWriter) sampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

func (m *mockWriter) lastSample() influxdb.BusSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return influxdb.BusSample{}
	}
	return m.samples[len(m.samples)-1]
}

type fixedStats eventbus.Stats

func (f fixedStats) Stats() eventbus.Stats { return eventbus.Stats(f) }
