// Package relay carries bus events to the outside world.
//
// Republisher mirrors every record onto MQTT: one non-retained message per
// event under graylogic/core/event/{type} and a retained, fully merged
// device state under graylogic/core/device/{id}/state, so late subscribers
// see the last known state of every device.
//
// Telemetry writes operational metrics to InfluxDB: connection
// transitions, state changes and periodic bus counters.
//
// Both consumers take the channel of an eventbus.Subscription and stop when
// the context ends or the channel closes.
package relay
