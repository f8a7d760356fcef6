package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// Measurement names.
const (
	MeasurementConnection  = "lighting_connection"
	MeasurementStateChange = "lighting_state"
	MeasurementBus         = "lighting_bus"
)

// BusSample is one snapshot of fan-in bus counters.
type BusSample struct {
	Sources        int
	Subscribers    int
	Published      uint64
	Dropped        uint64
	SourceDropped  uint64
	HeartbeatsSent uint64
}

// WriteConnection records a protocol connection transition.
func (c *Client) WriteConnection(conn lighting.Connection) {
	c.writePoint(ConnectionPoint(conn, time.Now()))
}

// WriteStateChange records the fields carried by one state_changed event.
// deviceID may be empty for devices the registry does not know yet.
func (c *Client) WriteStateChange(protocol lighting.Protocol, deviceID, externalID string, st lighting.State, at time.Time) {
	p := StateChangePoint(protocol, deviceID, externalID, st, at)
	if p == nil {
		return
	}
	c.writePoint(p)
}

// WriteBusStats records a bus counter snapshot.
func (c *Client) WriteBusStats(s BusSample) {
	c.writePoint(BusPoint(s, time.Now()))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

// ConnectionPoint builds the point for a connection transition.
func ConnectionPoint(conn lighting.Connection, at time.Time) *write.Point {
	fields := map[string]interface{}{
		"connected":          conn.Status == lighting.StatusConnected,
		"reconnect_attempts": conn.ReconnectAttempts,
	}
	if conn.LastError != "" {
		fields["last_error"] = conn.LastError
	}
	return write.NewPoint(
		MeasurementConnection,
		map[string]string{
			"protocol": string(conn.Protocol),
			"status":   string(conn.Status),
		},
		fields,
		at,
	)
}

// StateChangePoint builds the point for a state change. It returns nil
// when st carries no numeric or boolean field worth recording.
func StateChangePoint(protocol lighting.Protocol, deviceID, externalID string, st lighting.State, at time.Time) *write.Point {
	fields := map[string]interface{}{}
	if st.On != nil {
		fields["on"] = *st.On
	}
	if st.Brightness != nil {
		fields["brightness"] = *st.Brightness
	}
	if st.Color != nil {
		fields["color_x"] = st.Color.X
		fields["color_y"] = st.Color.Y
	}
	if st.ColorTemperature != nil {
		fields["color_temperature"] = *st.ColorTemperature
	}
	if st.Reachable != nil {
		fields["reachable"] = *st.Reachable
	}
	if len(fields) == 0 {
		return nil
	}

	tags := map[string]string{
		"protocol":    string(protocol),
		"external_id": externalID,
	}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}
	return write.NewPoint(MeasurementStateChange, tags, fields, at)
}

// BusPoint builds the point for a bus counter snapshot.
func BusPoint(s BusSample, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementBus,
		nil,
		map[string]interface{}{
			"sources":         s.Sources,
			"subscribers":     s.Subscribers,
			"published":       s.Published,
			"dropped":         s.Dropped,
			"source_dropped":  s.SourceDropped,
			"heartbeats_sent": s.HeartbeatsSent,
		},
		at,
	)
}
