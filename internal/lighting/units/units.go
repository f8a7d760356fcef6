// Package units converts between the canonical lighting units and the
// native encodings of each protocol. Every function is pure and total:
// out-of-range input is clamped, NaN goes to the low bound.
package units

import "math"

const (
	MinBrightness = 0.0
	MaxBrightness = 100.0

	MinMirek = 153
	MaxMirek = 500

	// MaxLevel is the top of the mesh level scale.
	MaxLevel = 254

	// MeshXYScale converts a unit xy component to the mesh encoding.
	MeshXYScale = 65536
	// MaxMeshXY is the largest legal mesh xy value.
	MaxMeshXY = 0xFEFF

	// D65 white point, returned for black input.
	WhiteX = 0.3127
	WhiteY = 0.3290
)

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampBrightness forces a brightness percentage into [0,100].
func ClampBrightness(b float64) float64 {
	return clamp(b, MinBrightness, MaxBrightness)
}

// ClampMirek forces a colour temperature into [153,500] mirek.
func ClampMirek(m int) int {
	return ClampMirekRange(m, MinMirek, MaxMirek)
}

// ClampMirekRange forces m into [lo,hi]; the device range is itself bounded
// by the canonical range.
func ClampMirekRange(m, lo, hi int) int {
	lo = max(lo, MinMirek)
	hi = min(hi, MaxMirek)
	if hi < lo {
		hi = lo
	}
	return min(max(m, lo), hi)
}

// ClampUnit forces v into [0,1].
func ClampUnit(v float64) float64 {
	return clamp(v, 0, 1)
}

// ClampXY forces both chromaticity components into [0,1].
func ClampXY(x, y float64) (float64, float64) {
	return ClampUnit(x), ClampUnit(y)
}

// BrightnessToLevel maps a 0-100 percentage onto the 0-254 level scale.
func BrightnessToLevel(b float64) int {
	return int(math.Round(ClampBrightness(b) / MaxBrightness * MaxLevel))
}

// LevelToBrightness maps a 0-254 level onto a whole 0-100 percentage.
func LevelToBrightness(level int) float64 {
	l := min(max(level, 0), MaxLevel)
	return math.Round(float64(l) / MaxLevel * MaxBrightness)
}

// XYToMeshXY encodes a unit xy pair for the mesh protocol.
func XYToMeshXY(x, y float64) (int, int) {
	enc := func(v float64) int {
		return min(int(math.Round(ClampUnit(v)*MeshXYScale)), MaxMeshXY)
	}
	return enc(x), enc(y)
}

// MeshXYToXY decodes a mesh xy pair to unit components rounded to 4 places.
func MeshXYToXY(x, y int) (float64, float64) {
	dec := func(v int) float64 {
		return round4(ClampUnit(float64(v) / MeshXYScale))
	}
	return dec(x), dec(y)
}

// MirekToKelvin converts reciprocal megakelvin to kelvin.
func MirekToKelvin(m int) int {
	if m <= 0 {
		return 0
	}
	return int(math.Round(1e6 / float64(m)))
}

// KelvinToMirek converts kelvin to mirek, clamped to the canonical range.
func KelvinToMirek(k int) int {
	if k <= 0 {
		return MaxMirek
	}
	return ClampMirek(int(math.Round(1e6 / float64(k))))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
