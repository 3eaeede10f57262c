package imagefile

import (
	"image"
	"image/draw"
	"math"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// encodeSteps is the resolution of the linear -> sRGB lookup table.
const encodeSteps = 4096

var (
	lutOnce  sync.Once
	toLinear [256]float64
	toSRGB   [encodeSteps + 1]uint8
)

func buildLUTs() {
	for i := range toLinear {
		v := float64(i) / 255
		r, _, _ := colorful.Color{R: v, G: v, B: v}.LinearRgb()
		toLinear[i] = r
	}
	for i := range toSRGB {
		c := colorful.LinearRgb(float64(i)/encodeSteps, 0, 0)
		toSRGB[i] = uint8(math.Round(clamp01(c.R) * 255))
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Premultiply converts src into a premultiplied *image.RGBA. In
// AlphaPremultiply mode this is the conversion image/draw performs; in
// AlphaPremultiplySRGB mode colour is multiplied by alpha in linear light.
func Premultiply(src image.Image, mode AlphaMode) *image.RGBA {
	b := src.Bounds()
	if mode != AlphaPremultiplySRGB {
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	lutOnce.Do(buildLUTs)

	straight := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(straight, straight.Bounds(), src, b.Min, draw.Src)

	dst := image.NewRGBA(straight.Rect)
	for i := 0; i < len(straight.Pix); i += 4 {
		a := straight.Pix[i+3]
		dst.Pix[i+3] = a
		switch a {
		case 0:
			// fully transparent stays zero
		case 255:
			copy(dst.Pix[i:i+3], straight.Pix[i:i+3])
		default:
			alpha := float64(a) / 255
			for c := 0; c < 3; c++ {
				lin := toLinear[straight.Pix[i+c]] * alpha
				dst.Pix[i+c] = toSRGB[int(math.Round(lin*encodeSteps))]
			}
		}
	}
	return dst
}
