package graphics

import "image"

// Context defines the interface for the window/OpenGL context owned by the host.
type Context interface {
	MakeCurrent()
	DetachCurrent()
	Shutdown()
	ShouldClose() bool
	EndFrame()
	GetFramebufferSize() (int, int)
	Time() float64
}

// BlendFactor mirrors the subset of GL blend factors the overlay needs.
type BlendFactor int

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcAlpha
	BlendInvSrcAlpha
)

// Texture is a GPU texture handle created by a Device.
type Texture interface {
	Width() int
	Height() int
}

// Device is the GPU collaborator used by the asset pipeline and the compositor.
//
// Texture creation/destruction must happen between Enter and Leave. The render
// callback is invoked by the host with the context already entered, so the draw
// methods assume the caller holds it.
type Device interface {
	// Enter acquires the GPU context exclusively for the calling goroutine.
	Enter()
	// Leave releases a context acquired with Enter.
	Leave()

	// CreateTexture uploads img. srgb selects an sRGB internal format.
	CreateTexture(img *image.RGBA, srgb bool) (Texture, error)
	// UpdateTexture replaces the contents of tex with img (same size).
	UpdateTexture(tex Texture, img *image.RGBA) error
	DeleteTexture(tex Texture)

	FramebufferSRGB() bool
	SetFramebufferSRGB(enabled bool)
	PushBlendState()
	PopBlendState()
	SetBlendFunc(src, dst BlendFactor)

	// DrawSprite draws tex with its top-left corner at (x, y) in output pixels.
	DrawSprite(tex Texture, x, y float32)
}

// Scope runs fn with the device's GPU context held. Leave is deferred so the
// context is released on every path, including panics inside fn.
func Scope(d Device, fn func()) {
	d.Enter()
	defer d.Leave()
	fn()
}
