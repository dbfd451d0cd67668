package subdaux

import (
	"image/color"

	math "github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms1"
)

// HSV conversions adapted from Esme Lamb's (@dedelala) color manipulation
// work presented at Gophercon AU 2024.
// https://github.com/dedelala/disco/tree/main/color

var (
	defaultShadow = color.RGBA{R: 28, G: 38, B: 72, A: 255}
	defaultLit    = color.RGBA{R: 236, G: 204, B: 142, A: 255}
)

// ShadeGradient returns a function mapping a shade in [0, 1] to a color
// interpolated in HSV space from shadow to lit. Shades outside the range
// are clamped. A black to white gradient is interpolated in grayscale.
func ShadeGradient(shadow, lit color.Color) func(shade float32) color.Color {
	if shadow == color.Black && lit == color.White {
		return grayShade
	}
	h0, s0, v0 := colorToHSV(shadow)
	h1, s1, v1 := colorToHSV(lit)
	return func(shade float32) color.Color {
		if !(shade > 0) {
			return shadow
		} else if shade >= 1 {
			return lit
		}
		h, s, v := interpHSV(h0, s0, v0, h1, s1, v1, shade)
		c := rgbToC(hsvToRGB(h, s, v))
		return color.RGBA{R: uint8(c >> 16), G: uint8(c >> 8), B: uint8(c), A: 255}
	}
}

func grayShade(shade float32) color.Color {
	if math.IsNaN(shade) {
		return color.Black
	}
	return color.Gray{Y: uint8(ms1.Clamp(shade, 0, 1) * math.MaxUint8)}
}

func interpHSV(h0, s0, v0, h1, s1, v1, t float32) (h, s, v float32) {
	// Take the short way around the hue circle.
	switch {
	case h1-h0 > 0.5:
		h0 += 1.0
	case h1-h0 < -0.5:
		h1 += 1.0
	}
	h = ms1.Interp(h0, h1, t)
	if h > 1 {
		h -= 1
	}
	s = ms1.Interp(s0, s1, t)
	v = ms1.Interp(v0, v1, t)
	return h, s, v
}

func colorToHSV(c color.Color) (h, s, v float32) {
	r0, g0, b0, _ := c.RGBA()
	return rgbToHSV(float32(r0>>8)/math.MaxUint8, float32(g0>>8)/math.MaxUint8, float32(b0>>8)/math.MaxUint8)
}

// rgbToC packs r, g and b in [0, 1] into the least significant 24 bits of c.
// Inputs are clamped.
func rgbToC(r, g, b float32) (c uint32) {
	return uint32(ms1.Clamp(r, 0, 1)*math.MaxUint8)<<16 |
		uint32(ms1.Clamp(g, 0, 1)*math.MaxUint8)<<8 |
		uint32(ms1.Clamp(b, 0, 1)*math.MaxUint8)
}

// hsvToRGB converts hue, saturation and value in [0, 1] to RGB in [0, 1].
func hsvToRGB(h, s, v float32) (r, g, b float32) {
	var (
		c = s * v
		x = c * (1 - math.Abs(math.Mod(h*6, 2)-1))
		m = v - c
	)
	switch {
	case h <= 1.0/6:
		r, g, b = c, x, 0
	case h <= 2.0/6:
		r, g, b = x, c, 0
	case h <= 3.0/6:
		r, g, b = 0, c, x
	case h <= 4.0/6:
		r, g, b = 0, x, c
	case h <= 5.0/6:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return r + m, g + m, b + m
}

// rgbToHSV converts RGB in [0, 1] to hue, saturation and value in [0, 1].
func rgbToHSV(r, g, b float32) (h, s, v float32) {
	var (
		xmax = max(r, g, b)
		xmin = min(r, g, b)
		c    = xmax - xmin
	)
	v = xmax
	switch {
	case c == 0:
		h = 0
	case v == r:
		h = (g - b) / (c * 6)
	case v == g:
		h = 1.0/3 + (b-r)/(c*6)
	case v == b:
		h = 2.0/3 + (r-g)/(c*6)
	}
	if h < 0 {
		h += 1
	}
	if xmax > 0 {
		s = c / xmax
	}
	return h, s, v
}
