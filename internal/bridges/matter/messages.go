package matter

import (
	"encoding/json"
	"fmt"
	"time"
)

// Controller actions.
const (
	ActionPing           = "ping"
	ActionListNodes      = "list_nodes"
	ActionReadAttributes = "read_attributes"
	ActionInvoke         = "invoke"
	ActionCommission     = "commission"
	ActionRemoveNode     = "remove_node"
)

// Cluster commands sent with ActionInvoke.
const (
	CommandOn                     = "on"
	CommandOff                    = "off"
	CommandMoveToLevelWithOnOff   = "moveToLevelWithOnOff"
	CommandMoveToColor            = "moveToColor"
	CommandMoveToColorTemperature = "moveToColorTemperature"
)

// transitionTime is the fade applied to level and colour commands, in
// tenths of a second.
const transitionTime = 3

// RequestMessage is sent from the core to the controller.
// Topic: graylogic/request/matter/{request_id}
type RequestMessage struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`

	// Fabric and Token come from the stored mesh credential.
	Fabric string `json:"fabric,omitempty"`
	Token  string `json:"token,omitempty"`

	NodeID     string         `json:"node_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ResponseMessage is sent from the controller in answer to a request.
// Topic: graylogic/response/matter/{request_id}
type ResponseMessage struct {
	RequestID string          `json:"request_id"`
	Timestamp time.Time       `json:"timestamp"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *ResponseError  `json:"error,omitempty"`
}

// ResponseError describes a failed request.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements error so a failed response can be wrapped directly.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Attributes holds raw cluster attribute values. Only attributes present
// on the node or in the report are set.
type Attributes struct {
	OnOff                  *bool `json:"on_off,omitempty"`
	CurrentLevel           *int  `json:"current_level,omitempty"`
	CurrentX               *int  `json:"current_x,omitempty"`
	CurrentY               *int  `json:"current_y,omitempty"`
	ColorTemperatureMireds *int  `json:"color_temperature_mireds,omitempty"`
}

// Clusters reports which server clusters a node's first endpoint exposes.
type Clusters struct {
	OnOff            bool `json:"on_off"`
	LevelControl     bool `json:"level_control"`
	ColorControl     bool `json:"color_control"`
	ColorTemperature bool `json:"color_temperature"`
}

// NodeInfo describes one commissioned node.
type NodeInfo struct {
	NodeID       string     `json:"node_id"`
	Name         string     `json:"name,omitempty"`
	VendorName   string     `json:"vendor_name,omitempty"`
	ProductName  string     `json:"product_name,omitempty"`
	DeviceTypeID uint32     `json:"device_type_id"`
	Clusters     Clusters   `json:"clusters"`
	Reachable    bool       `json:"reachable"`
	Attributes   Attributes `json:"attributes"`
}

// StateMessage is an unsolicited attribute report.
// Topic: graylogic/state/matter/{node_id}
type StateMessage struct {
	NodeID     string     `json:"node_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Attributes Attributes `json:"attributes"`
	Reachable  *bool      `json:"reachable,omitempty"`
}

// Discovery events.
const (
	DiscoveryNodeAdded   = "node_added"
	DiscoveryNodeRemoved = "node_removed"
)

// DiscoveryMessage announces a node joining or leaving the fabric.
// Topic: graylogic/discovery/matter
type DiscoveryMessage struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Node      NodeInfo  `json:"node"`
}

// HealthMessage is the controller's retained status.
// Topic: graylogic/health/matter
type HealthMessage struct {
	Status    string    `json:"status"` // online, offline
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}
