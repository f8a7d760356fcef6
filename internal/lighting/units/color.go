package units

import "math"

// RGB is an 8-bit sRGB triple.
type RGB struct {
	R, G, B uint8
}

// XYBriToRGB converts a CIE xy chromaticity at a brightness percentage to
// sRGB using the wide-gamut D65 matrix. The result is scaled so its brightest
// channel fits in 255. A zero y yields black.
func XYBriToRGB(x, y, bri float64) RGB {
	x, y = ClampXY(x, y)
	if y == 0 {
		return RGB{}
	}
	z := 1 - x - y
	bigY := ClampBrightness(bri) / MaxBrightness
	bigX := bigY / y * x
	bigZ := bigY / y * z

	r := bigX*1.656492 - bigY*0.354851 - bigZ*0.255038
	g := -bigX*0.707196 + bigY*1.655397 + bigZ*0.036152
	b := bigX*0.051713 - bigY*0.121364 + bigZ*1.011530

	r, g, b = gammaCompress(r), gammaCompress(g), gammaCompress(b)

	peak := max(r, g, b, 1)
	return RGB{
		R: to8(r / peak),
		G: to8(g / peak),
		B: to8(b / peak),
	}
}

// RGBToXY converts an sRGB triple to CIE xy rounded to 4 places. Black maps
// to the D65 white point.
func RGBToXY(c RGB) (float64, float64) {
	r := gammaExpand(float64(c.R) / 255)
	g := gammaExpand(float64(c.G) / 255)
	b := gammaExpand(float64(c.B) / 255)

	bigX := r*0.664511 + g*0.154324 + b*0.162028
	bigY := r*0.283881 + g*0.668433 + b*0.047685
	bigZ := r*0.000088 + g*0.072310 + b*0.986039

	sum := bigX + bigY + bigZ
	if sum == 0 {
		return WhiteX, WhiteY
	}
	return round4(bigX / sum), round4(bigY / sum)
}

func gammaCompress(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func gammaExpand(v float64) float64 {
	if v > 0.04045 {
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return v / 12.92
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp(v, 0, 1) * 255))
}
