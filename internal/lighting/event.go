package lighting

import "time"

// EventType identifies the kind of a lighting event.
type EventType string

const (
	EventStateChanged   EventType = "state_changed"
	EventDeviceAdded    EventType = "device_added"
	EventDeviceRemoved  EventType = "device_removed"
	EventConnectionUp   EventType = "connection_up"
	EventConnectionDown EventType = "connection_down"
	// EventHeartbeat is produced by the fan-in bus, never by an adapter.
	EventHeartbeat EventType = "heartbeat"
)

// Event is a notification emitted by an adapter or the bus. Events are
// passed by value and never modified after emission.
type Event struct {
	Type             EventType         `json:"type"`
	Timestamp        time.Time         `json:"timestamp"`
	Source           Protocol          `json:"source,omitempty"`
	DeviceExternalID string            `json:"device_external_id,omitempty"`
	State            *State            `json:"state,omitempty"`
	Device           *DiscoveredDevice `json:"device,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// IsDeviceEvent reports whether the event concerns a single device.
func (e Event) IsDeviceEvent() bool {
	switch e.Type {
	case EventStateChanged, EventDeviceAdded, EventDeviceRemoved:
		return e.DeviceExternalID != ""
	}
	return false
}

// StateChanged builds a state_changed event.
func StateChanged(source Protocol, externalID string, s State) Event {
	st := s.Clone()
	return Event{
		Type:             EventStateChanged,
		Timestamp:        time.Now().UTC(),
		Source:           source,
		DeviceExternalID: externalID,
		State:            &st,
	}
}

// DeviceAdded builds a device_added event.
func DeviceAdded(source Protocol, d DiscoveredDevice) Event {
	d.State = d.State.Clone()
	return Event{
		Type:             EventDeviceAdded,
		Timestamp:        time.Now().UTC(),
		Source:           source,
		DeviceExternalID: d.ExternalID,
		Device:           &d,
	}
}

// DeviceRemoved builds a device_removed event.
func DeviceRemoved(source Protocol, externalID string) Event {
	return Event{
		Type:             EventDeviceRemoved,
		Timestamp:        time.Now().UTC(),
		Source:           source,
		DeviceExternalID: externalID,
	}
}
