package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRGBToXY(t *testing.T) {
	tests := []struct {
		name  string
		in    RGB
		wantX float64
		wantY float64
	}{
		{"white", RGB{255, 255, 255}, 0.3227, 0.3290},
		{"red", RGB{255, 0, 0}, 0.7006, 0.2993},
		{"black is white point", RGB{0, 0, 0}, WhiteX, WhiteY},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := RGBToXY(tt.in)
			assert.InDelta(t, tt.wantX, x, 0.0001)
			assert.InDelta(t, tt.wantY, y, 0.0001)
		})
	}
}

func TestXYBriToRGB(t *testing.T) {
	white := XYBriToRGB(0.3227, 0.3290, 100)
	assert.GreaterOrEqual(t, white.R, uint8(250))
	assert.GreaterOrEqual(t, white.G, uint8(250))
	assert.GreaterOrEqual(t, white.B, uint8(250))

	red := XYBriToRGB(0.7006, 0.2993, 100)
	assert.Equal(t, uint8(255), red.R)
	assert.Less(t, red.G, uint8(10))
	assert.Less(t, red.B, uint8(10))
}

func TestXYBriToRGB_Degenerate(t *testing.T) {
	assert.Equal(t, RGB{}, XYBriToRGB(0.4, 0, 100))
	assert.Equal(t, RGB{}, XYBriToRGB(0.3, 0.3, 0))
	// out-of-range input is clamped, not rejected
	assert.NotPanics(t, func() { XYBriToRGB(-1, 2, 500) })
}
