package mqtt

import "fmt"

// Topic prefixes. Every topic uses the flat scheme
// graylogic/{category}/{protocol}/{address}.
const (
	// TopicPrefix is the base for controller-facing topics.
	TopicPrefix = "graylogic"

	// TopicPrefixCore is the base for topics the lighting core publishes.
	TopicPrefixCore = "graylogic/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics builds MQTT topic names.
//
//	topics := mqtt.Topics{}
//	topics.BridgeRequest("matter", "5f0c...") // graylogic/request/matter/5f0c...
type Topics struct{}

// BridgeState is where a protocol controller reports node attribute changes.
//
// Example: graylogic/state/matter/12
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, address)
}

// BridgeRequest is where the core sends a request to a protocol controller.
//
// Example: graylogic/request/matter/5f0c2a9e-...
func (Topics) BridgeRequest(protocol, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s", TopicPrefix, protocol, requestID)
}

// BridgeResponse is where a protocol controller answers a request.
//
// Example: graylogic/response/matter/5f0c2a9e-...
func (Topics) BridgeResponse(protocol, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, protocol, requestID)
}

// BridgeDiscovery is where a protocol controller announces added and
// removed nodes.
//
// Example: graylogic/discovery/matter
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, protocol)
}

// BridgeHealth carries retained health status for a protocol.
//
// Example: graylogic/health/bridge
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeStates matches every state report from one protocol.
//
// Pattern: graylogic/state/matter/+
func (Topics) BridgeStates(protocol string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, protocol)
}

// BridgeResponses matches every response from one protocol.
//
// Pattern: graylogic/response/matter/+
func (Topics) BridgeResponses(protocol string) string {
	return fmt.Sprintf("%s/response/%s/+", TopicPrefix, protocol)
}

// CoreDeviceState is the retained canonical state of one device.
//
// Example: graylogic/core/device/3b1d.../state
func (Topics) CoreDeviceState(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefixCore, deviceID)
}

// CoreEvent carries bus records of one event type.
//
// Example: graylogic/core/event/state_changed
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus carries the core's retained online/offline status.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllCoreEvents matches every core event.
//
// Pattern: graylogic/core/event/+
func (Topics) AllCoreEvents() string {
	return TopicPrefixCore + "/event/+"
}

// AllBridgeHealth matches every protocol health topic.
//
// Pattern: graylogic/health/+
func (Topics) AllBridgeHealth() string {
	return TopicPrefix + "/health/+"
}
