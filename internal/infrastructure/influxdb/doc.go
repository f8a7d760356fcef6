// Package influxdb records lighting telemetry in InfluxDB.
//
// It wraps influxdb-client-go v2 with connection management and a small
// set of point builders: protocol connection transitions, device state
// changes and fan-in bus counters. Writes are batched and non-blocking;
// batch failures are reported through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteConnection(adapter.Connection())
package influxdb
