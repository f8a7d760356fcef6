package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

func TestValidateDevice(t *testing.T) {
	tests := []struct {
		name    string
		device  *Device
		wantErr error
	}{
		{"nil", nil, ErrInvalidDevice},
		{"valid", testDevice("L1"), nil},
		{"unknown protocol", &Device{Protocol: "zwave", ExternalID: "1", Name: "x"}, ErrInvalidDevice},
		{"empty external id", &Device{Protocol: lighting.ProtocolMesh, Name: "x"}, ErrInvalidDevice},
		{"long external id", &Device{Protocol: lighting.ProtocolMesh, ExternalID: strings.Repeat("a", 129), Name: "x"}, ErrInvalidDevice},
		{"blank name", &Device{Protocol: lighting.ProtocolMesh, ExternalID: "1", Name: " "}, ErrInvalidName},
		{"long name", &Device{Protocol: lighting.ProtocolMesh, ExternalID: "1", Name: strings.Repeat("n", 101)}, ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDevice(tt.device)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Living Room", "living-room"},
		{"Kitchen_Pendant #2", "kitchen-pendant-2"},
		{"  Hall  ", "hall"},
		{"Über Lamp", "ber-lamp"},
		{strings.Repeat("ab ", 30), strings.TrimRight(strings.Repeat("ab-", 17)[:50], "-")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateSlug(tt.in))
		})
	}
}

func TestFallbackName(t *testing.T) {
	assert.Equal(t, "mesh 0x12", fallbackName(lighting.ProtocolMesh, "0x12"))
}
