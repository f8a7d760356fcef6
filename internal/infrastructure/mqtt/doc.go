// Package mqtt connects the lighting core to the site MQTT broker.
//
// The broker carries two kinds of traffic:
//
//   - Mesh controller RPC. The mesh adapter publishes requests on
//     graylogic/request/matter/{id} and reads answers from
//     graylogic/response/matter/{id}; node state and discovery arrive on
//     graylogic/state/matter/+ and graylogic/discovery/matter.
//   - Core output. Bus records are republished on graylogic/core/event/{type}
//     and the last known device state is retained on
//     graylogic/core/device/{id}/state. Adapter health is retained on
//     graylogic/health/{protocol}.
//
// The client reconnects on its own (paho auto-reconnect) and restores its
// subscriptions afterwards. Listeners registered with OnConnect and
// OnDisconnect see every transition. A Last Will on graylogic/system/status
// marks the core offline if it dies without closing.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.CoreEvent("state_changed"), record, 1, false)
package mqtt
