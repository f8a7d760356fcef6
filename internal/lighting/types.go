package lighting

import "time"

// Protocol identifies the family of adapter that owns a device.
type Protocol string

const (
	// ProtocolBridge is the local REST+SSE lighting bridge.
	ProtocolBridge Protocol = "bridge"
	// ProtocolMesh is the mesh commissioning protocol reached via a controller.
	ProtocolMesh Protocol = "mesh"
)

// Protocols lists every supported protocol.
var Protocols = []Protocol{ProtocolBridge, ProtocolMesh}

// Valid reports whether p is a known protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolBridge || p == ProtocolMesh
}

// DeviceType is the coarse category of a lighting device.
type DeviceType string

const (
	DeviceTypeLight         DeviceType = "light"
	DeviceTypePlug          DeviceType = "plug"
	DeviceTypeSensor        DeviceType = "sensor"
	DeviceTypeContactSensor DeviceType = "contact_sensor"
)

// Capabilities describes what a device supports. It is computed once at
// discovery or commissioning and only replaced by a resync.
type Capabilities struct {
	SupportsBrightness       bool `json:"supports_brightness"`
	SupportsColor            bool `json:"supports_color"`
	SupportsColorTemperature bool `json:"supports_color_temperature"`
	MinMirek                 *int `json:"min_mirek,omitempty"`
	MaxMirek                 *int `json:"max_mirek,omitempty"`
}

// Supports reports whether the capability set admits a field group.
// The on/off group is always supported.
func (c Capabilities) Supports(group FieldGroup) bool {
	switch group {
	case GroupOn:
		return true
	case GroupBrightness:
		return c.SupportsBrightness
	case GroupColor:
		return c.SupportsColor
	case GroupColorTemperature:
		return c.SupportsColorTemperature
	}
	return false
}

// DiscoveredDevice is what an adapter reports for a device during a listing,
// a device_added event or commissioning.
type DiscoveredDevice struct {
	ExternalID    string       `json:"external_id"`
	Name          string       `json:"name"`
	Type          DeviceType   `json:"type"`
	Capabilities  Capabilities `json:"capabilities"`
	State         State        `json:"state"`
	Online        bool         `json:"online"`
	RoomName      string       `json:"room_name,omitempty"`
	RoomArchetype string       `json:"room_archetype,omitempty"`
}

// ConnectionStatus is the lifecycle status of an adapter's session.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// Connection is the runtime connection record of one adapter.
type Connection struct {
	Protocol          Protocol         `json:"protocol"`
	Status            ConnectionStatus `json:"status"`
	ReconnectAttempts int              `json:"reconnect_attempts"`
	LastError         string           `json:"last_error,omitempty"`
	Since             time.Time        `json:"since"`
}
