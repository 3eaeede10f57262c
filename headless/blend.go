package headless

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/richinsley/goshadergaze/graphics"
)

// srgbToLinear maps an sRGB encoded byte to linear light.
var srgbToLinear [256]float32

func init() {
	for i := range srgbToLinear {
		r, _, _ := colorful.Color{R: float64(i) / 255}.LinearRgb()
		srgbToLinear[i] = float32(r)
	}
}

func linearToSRGB(v float32) uint8 {
	c := colorful.LinearRgb(float64(clamp01(v)), 0, 0)
	return uint8(math.Round(clamp01f64(c.R) * 255))
}

func clamp01(v float32) float32 {
	return float32(clamp01f64(float64(v)))
}

func clamp01f64(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func factor(f graphics.BlendFactor, srcAlpha float32) float32 {
	switch f {
	case graphics.BlendOne:
		return 1
	case graphics.BlendSrcAlpha:
		return srcAlpha
	case graphics.BlendInvSrcAlpha:
		return 1 - srcAlpha
	}
	return 0
}

// composite blends t into the framebuffer at (x, y). Sampling an sRGB
// texture yields linear values; with framebuffer sRGB enabled the
// destination is decoded before blending and the result re-encoded, as GL
// does. Called with d.state held.
func (d *Device) composite(t *Texture, x, y int) {
	fb := d.framebuffer
	bounds := fb.Rect
	srcF, dstF := d.blend.src, d.blend.dst

	for ty := 0; ty < t.H; ty++ {
		fy := y + ty
		if fy < bounds.Min.Y || fy >= bounds.Max.Y {
			continue
		}
		for tx := 0; tx < t.W; tx++ {
			fx := x + tx
			if fx < bounds.Min.X || fx >= bounds.Max.X {
				continue
			}
			si := (ty*t.W + tx) * 4
			di := fb.PixOffset(fx, fy)
			src := t.Pixels[si : si+4 : si+4]
			dst := fb.Pix[di : di+4 : di+4]

			sa := float32(src[3]) / 255
			fs, fd := factor(srcF, sa), factor(dstF, sa)

			for c := 0; c < 3; c++ {
				sv := float32(src[c]) / 255
				if t.SRGB {
					sv = srgbToLinear[src[c]]
				}
				if d.srgb {
					dv := srgbToLinear[dst[c]]
					dst[c] = linearToSRGB(sv*fs + dv*fd)
				} else {
					dv := float32(dst[c]) / 255
					dst[c] = uint8(math.Round(float64(clamp01(sv*fs+dv*fd)) * 255))
				}
			}
			da := float32(dst[3]) / 255
			dst[3] = uint8(math.Round(float64(clamp01(sa*fs+da*fd)) * 255))
		}
	}
}
