// Package config loads and validates the lighting core configuration.
//
// Load reads a YAML file over built-in defaults, then applies GRAYLOGIC_*
// environment overrides (processed with envconfig) and runs Validate, which
// reports every problem at once.
//
// Besides the infrastructure sections (database, mqtt, api, websocket,
// influxdb, logging, security) the file carries:
//   - protocols.bridge: REST+SSE bridge host, application key, TLS and
//     request timeout. Host and key seed the credential store.
//   - protocols.mesh: mesh controller fabric id and request/commission
//     timeouts.
//   - protocols.reconnect: backoff base and cap in milliseconds. The
//     defaults are 1000 and 30000.
//   - bus: heartbeat interval, per-subscriber and per-source buffers, and
//     the telemetry stats interval.
//
// Secrets (JWT secret, bridge application key, MQTT and InfluxDB
// credentials) belong in the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	base, limit := cfg.ReconnectBaseDelay(), cfg.ReconnectMaxDelay()
package config
