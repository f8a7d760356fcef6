package hue

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventStream(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single event",
			input: "data: [1]\n\n",
			want:  []string{"[1]"},
		},
		{
			name:  "comments and ids skipped",
			input: ": hi\n\nid: 1:0\nevent: message\ndata: [2]\n\n",
			want:  []string{"[2]"},
		},
		{
			name:  "multi-line data joined",
			input: "data: [\ndata: 3]\n\n",
			want:  []string{"[\n3]"},
		},
		{
			name:  "no space after colon",
			input: "data:[4]\n\n",
			want:  []string{"[4]"},
		},
		{
			name:  "unterminated event dropped at EOF",
			input: "data: [5]\n\ndata: [6]\n",
			want:  []string{"[5]"},
		},
		{
			name:  "empty stream",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := readEventStream(strings.NewReader(tt.input), func(data []byte) error {
				got = append(got, string(data))
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadEventStream_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := readEventStream(strings.NewReader("data: a\n\ndata: b\n\n"), func([]byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestParseEvents(t *testing.T) {
	events, err := parseEvents([]byte(`[{"type":"update","data":[
		{"id":"l1","type":"light","on":{"on":true},"dimming":{"brightness":120},
		 "color":{"xy":{"x":0.3,"y":0.3}},"color_temperature":{"mirek":250,"mirek_valid":true}},
		{"id":"l2","type":"light","color_temperature":{"mirek":null,"mirek_valid":false}}
	]}]`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, events[0].Data, 2)

	full := events[0].Data[0].state()
	assert.True(t, *full.On)
	assert.InDelta(t, 100, *full.Brightness, 0.001, "brightness clamped")
	assert.InDelta(t, 0.3, full.Color.X, 0.001)
	assert.Equal(t, 250, *full.ColorTemperature)

	invalid := events[0].Data[1].state()
	assert.True(t, invalid.IsEmpty(), "colour temperature outside the gamut is ignored")

	_, err = parseEvents([]byte(`{not json`))
	assert.Error(t, err)
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"192.168.1.20", "https://192.168.1.20"},
		{"bridge.local/", "https://bridge.local"},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, baseURL(tt.host))
		})
	}
}
