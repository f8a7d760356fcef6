package device

import (
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// Device is a canonical lighting device.
type Device struct {
	ID             string                `json:"id"`
	Protocol       lighting.Protocol     `json:"protocol"`
	ExternalID     string                `json:"external_id"`
	Name           string                `json:"name"`
	Type           lighting.DeviceType   `json:"type"`
	RoomID         *string               `json:"room_id,omitempty"`
	RoomName       string                `json:"room_name,omitempty"`
	Capabilities   lighting.Capabilities `json:"capabilities"`
	State          lighting.State        `json:"state"`
	Online         bool                  `json:"online"`
	StateUpdatedAt *time.Time            `json:"state_updated_at,omitempty"`
	LastSeen       *time.Time            `json:"last_seen,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Room groups devices. Rooms are created by name during sync.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Archetype string    `json:"archetype,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns a copy of d that shares no pointers with it.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	cp.State = d.State.Clone()
	if d.RoomID != nil {
		id := *d.RoomID
		cp.RoomID = &id
	}
	if d.Capabilities.MinMirek != nil {
		cp.Capabilities.MinMirek = lighting.Int(*d.Capabilities.MinMirek)
	}
	if d.Capabilities.MaxMirek != nil {
		cp.Capabilities.MaxMirek = lighting.Int(*d.Capabilities.MaxMirek)
	}
	if d.StateUpdatedAt != nil {
		t := *d.StateUpdatedAt
		cp.StateUpdatedAt = &t
	}
	if d.LastSeen != nil {
		t := *d.LastSeen
		cp.LastSeen = &t
	}
	return &cp
}

// key identifies a device by its protocol identity.
type key struct {
	protocol   lighting.Protocol
	externalID string
}

func (d *Device) key() key {
	return key{protocol: d.Protocol, externalID: d.ExternalID}
}

func (k key) String() string {
	return string(k.protocol) + "/" + k.externalID
}
