package hue

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// eventStreamPath is the bridge's server-sent event endpoint.
const eventStreamPath = "/eventstream/clip/v2"

// maxEventSize bounds a single SSE data payload. Bridges batch updates, so
// lines can be long.
const maxEventSize = 1 << 20

// connectivityConnected is the zigbee_connectivity status of a device whose
// radio link is up.
const connectivityConnected = "connected"

// clipEvent is one entry of an SSE data payload.
type clipEvent struct {
	Type string         `json:"type"` // add, update, delete, error
	Data []clipResource `json:"data"`
}

type clipRef struct {
	Rid   string `json:"rid"`
	Rtype string `json:"rtype"`
}

// clipResource is a partial resource as sent on the stream. Only changed
// fields are present.
type clipResource struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Owner *clipRef `json:"owner,omitempty"`

	On *struct {
		On *bool `json:"on"`
	} `json:"on,omitempty"`
	Dimming *struct {
		Brightness *float64 `json:"brightness"`
	} `json:"dimming,omitempty"`
	Color *struct {
		XY *lighting.XY `json:"xy"`
	} `json:"color,omitempty"`
	ColorTemperature *struct {
		Mirek      *int  `json:"mirek"`
		MirekValid *bool `json:"mirek_valid"`
	} `json:"color_temperature,omitempty"`

	// Status is set on zigbee_connectivity resources.
	Status string `json:"status,omitempty"`
}

// state extracts the canonical fields present in a light update.
func (r clipResource) state() lighting.State {
	var s lighting.State
	if r.On != nil && r.On.On != nil {
		s.On = lighting.Bool(*r.On.On)
	}
	if r.Dimming != nil && r.Dimming.Brightness != nil {
		s.Brightness = lighting.Float(*r.Dimming.Brightness)
	}
	if r.Color != nil && r.Color.XY != nil {
		xy := *r.Color.XY
		s.Color = &xy
	}
	if ct := r.ColorTemperature; ct != nil && ct.Mirek != nil {
		if ct.MirekValid == nil || *ct.MirekValid {
			s.ColorTemperature = lighting.Int(*ct.Mirek)
		}
	}
	return s.Clamped()
}

// readEventStream reads server-sent events from r and calls fn with the
// data of each complete event. Comment, id and event fields are skipped.
// It returns nil when r reaches EOF.
func readEventStream(r io.Reader, fn func(data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()

		if len(line) == 0 {
			if data.Len() > 0 {
				if err := fn(data.Bytes()); err != nil {
					return err
				}
				data.Reset()
			}
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if data.Len() > 0 {
			data.WriteByte('\n')
		}
		data.Write(value)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

// parseEvents decodes one SSE data payload.
func parseEvents(data []byte) ([]clipEvent, error) {
	var events []clipEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decoding event payload: %w", err)
	}
	return events, nil
}
