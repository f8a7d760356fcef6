// Package matter is the mesh protocol adapter.
//
// The mesh fabric is owned by an external controller process. The adapter
// talks to it over MQTT with a request/response exchange keyed by a UUID:
//
//	core       -> graylogic/request/matter/{id}     {"action":"read_attributes",...}
//	controller -> graylogic/response/matter/{id}    {"success":true,"data":{...}}
//
// Unsolicited traffic from the controller:
//
//	graylogic/state/matter/{node}   attribute reports  -> state_changed
//	graylogic/discovery/matter      node added/removed -> device_added/removed
//	graylogic/health/matter         controller status  -> session loss when offline
//
// A session is up while the broker connection is up and the controller
// answers a ping. Losing either ends the session, and the reconnect
// machine takes over.
package matter
