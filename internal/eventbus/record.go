package eventbus

import (
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// Resolver maps a protocol-native device id to the canonical device id.
type Resolver interface {
	Resolve(protocol lighting.Protocol, externalID string) (string, bool)
}

// Record is the subscriber-facing shape of an event, as delivered over
// SSE, WebSocket and MQTT.
type Record struct {
	Type      lighting.EventType `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	DeviceID  string             `json:"device_id,omitempty"`
	Protocol  lighting.Protocol  `json:"protocol,omitempty"`
	Data      any                `json:"data"`
}

// ConnectionData is the payload of connection_up and connection_down.
type ConnectionData struct {
	Protocol lighting.Protocol `json:"protocol"`
	Error    string            `json:"error,omitempty"`
}

// NewRecord converts ev to its wire shape, resolving the canonical device
// id when r knows the device. Unknown devices keep an empty DeviceID.
func NewRecord(ev lighting.Event, r Resolver) Record {
	rec := Record{
		Type:      ev.Type,
		Timestamp: ev.Timestamp,
		Protocol:  ev.Source,
		Data:      struct{}{},
	}
	if ev.IsDeviceEvent() && r != nil {
		if id, ok := r.Resolve(ev.Source, ev.DeviceExternalID); ok {
			rec.DeviceID = id
		}
	}

	switch ev.Type {
	case lighting.EventStateChanged:
		if ev.State != nil {
			rec.Data = ev.State.Clone()
		}
	case lighting.EventDeviceAdded:
		if ev.Device != nil {
			rec.Data = *ev.Device
		}
	case lighting.EventDeviceRemoved:
		rec.Data = map[string]string{"external_id": ev.DeviceExternalID}
	case lighting.EventConnectionUp, lighting.EventConnectionDown:
		rec.Data = ConnectionData{Protocol: ev.Source, Error: ev.Error}
	}
	return rec
}
