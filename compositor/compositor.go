// Package compositor draws the overlay texture centred on the gaze point.
package compositor

import (
	"github.com/richinsley/goshadergaze/gaze"
	"github.com/richinsley/goshadergaze/graphics"
)

// Origin returns the top-left corner that centres a w x h image on sample
// inside an outW x outH output.
func Origin(sample gaze.Sample, outW, outH, w, h float32) (float32, float32) {
	return sample.X*outW - w/2, sample.Y*outH - h/2
}

// Draw issues one sprite draw of tex centred on sample. Nothing at all is
// issued for a nil texture or NoSignal. Textures hold premultiplied alpha,
// so blending is (One, InvSrcAlpha) into an sRGB framebuffer; the previous
// blend and framebuffer sRGB state are restored before returning.
func Draw(dev graphics.Device, tex graphics.Texture, sample gaze.Sample, outW, outH int) bool {
	if tex == nil || sample.IsNoSignal() {
		return false
	}

	previous := dev.FramebufferSRGB()
	dev.SetFramebufferSRGB(true)
	defer dev.SetFramebufferSRGB(previous)

	dev.PushBlendState()
	defer dev.PopBlendState()
	dev.SetBlendFunc(graphics.BlendOne, graphics.BlendInvSrcAlpha)

	x, y := Origin(sample, float32(outW), float32(outH), float32(tex.Width()), float32(tex.Height()))
	dev.DrawSprite(tex, x, y)
	return true
}
