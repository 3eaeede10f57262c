// Package headless provides a graphics.Device that records GPU operations
// instead of performing them. It backs the viewer's -headless mode and the
// package tests. With a framebuffer attached, DrawSprite also composites the
// sprite on the CPU the way the GL blend stage would.
package headless

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/richinsley/goshadergaze/graphics"
)

// ErrUploadFailed is returned by CreateTexture when FailUploads is set.
var ErrUploadFailed = errors.New("headless: texture upload failed")

// Texture is the recorded texture handle.
type Texture struct {
	ID      int
	W, H    int
	Pixels  []uint8
	SRGB    bool
	Updates int
	deleted bool
}

func (t *Texture) Width() int  { return t.W }
func (t *Texture) Height() int { return t.H }

// DrawCall records one DrawSprite invocation together with the state it ran under.
type DrawCall struct {
	Texture  *Texture
	X, Y     float32
	SRGB     bool
	BlendSrc graphics.BlendFactor
	BlendDst graphics.BlendFactor
}

type blendState struct {
	src, dst graphics.BlendFactor
}

// Device records every call made through the graphics.Device interface.
type Device struct {
	mu    sync.Mutex // the "GPU context"
	state sync.Mutex // protects the recorded fields below

	// FailUploads makes CreateTexture return ErrUploadFailed.
	FailUploads bool

	depth       int
	enters      int
	nextID      int
	live        map[int]*Texture
	created     int
	deleted     int
	doubleFrees int
	outside     int
	draws       []DrawCall

	srgb       bool
	blend      blendState
	blendStack []blendState

	framebuffer *image.RGBA
}

// NewDevice creates a recording device with (One, Zero) blending and sRGB off.
func NewDevice() *Device {
	return &Device{
		live:  make(map[int]*Texture),
		blend: blendState{src: graphics.BlendOne, dst: graphics.BlendZero},
	}
}

func (d *Device) Enter() {
	d.mu.Lock()
	d.state.Lock()
	d.depth++
	d.enters++
	d.state.Unlock()
}

func (d *Device) Leave() {
	d.state.Lock()
	d.depth--
	d.state.Unlock()
	d.mu.Unlock()
}

// checkScope counts texture operations issued outside Enter/Leave.
func (d *Device) checkScope() {
	if d.depth == 0 {
		d.outside++
	}
}

func (d *Device) CreateTexture(img *image.RGBA, srgb bool) (graphics.Texture, error) {
	d.state.Lock()
	defer d.state.Unlock()
	d.checkScope()

	if img == nil {
		return nil, fmt.Errorf("headless: nil image")
	}
	if d.FailUploads {
		return nil, ErrUploadFailed
	}

	d.nextID++
	size := img.Rect.Size()
	t := &Texture{ID: d.nextID, W: size.X, H: size.Y, Pixels: packPixels(img), SRGB: srgb}
	d.live[t.ID] = t
	d.created++
	return t, nil
}

func (d *Device) UpdateTexture(tex graphics.Texture, img *image.RGBA) error {
	d.state.Lock()
	defer d.state.Unlock()
	d.checkScope()

	t, ok := tex.(*Texture)
	if !ok || t.deleted {
		return fmt.Errorf("headless: update of unknown texture")
	}
	if size := img.Rect.Size(); size.X != t.W || size.Y != t.H {
		return fmt.Errorf("headless: update size %dx%d does not match texture %dx%d", size.X, size.Y, t.W, t.H)
	}
	t.Pixels = packPixels(img)
	t.Updates++
	return nil
}

func (d *Device) DeleteTexture(tex graphics.Texture) {
	d.state.Lock()
	defer d.state.Unlock()
	d.checkScope()

	t, ok := tex.(*Texture)
	if !ok {
		return
	}
	if t.deleted {
		d.doubleFrees++
		return
	}
	t.deleted = true
	delete(d.live, t.ID)
	d.deleted++
}

func (d *Device) FramebufferSRGB() bool {
	d.state.Lock()
	defer d.state.Unlock()
	return d.srgb
}

func (d *Device) SetFramebufferSRGB(enabled bool) {
	d.state.Lock()
	defer d.state.Unlock()
	d.srgb = enabled
}

func (d *Device) PushBlendState() {
	d.state.Lock()
	defer d.state.Unlock()
	d.blendStack = append(d.blendStack, d.blend)
}

func (d *Device) PopBlendState() {
	d.state.Lock()
	defer d.state.Unlock()
	if n := len(d.blendStack); n > 0 {
		d.blend = d.blendStack[n-1]
		d.blendStack = d.blendStack[:n-1]
	}
}

func (d *Device) SetBlendFunc(src, dst graphics.BlendFactor) {
	d.state.Lock()
	defer d.state.Unlock()
	d.blend = blendState{src: src, dst: dst}
}

func (d *Device) DrawSprite(tex graphics.Texture, x, y float32) {
	d.state.Lock()
	defer d.state.Unlock()

	t, _ := tex.(*Texture)
	d.draws = append(d.draws, DrawCall{
		Texture:  t,
		X:        x,
		Y:        y,
		SRGB:     d.srgb,
		BlendSrc: d.blend.src,
		BlendDst: d.blend.dst,
	})
	if d.framebuffer != nil && t != nil && !t.deleted {
		d.composite(t, int(x), int(y))
	}
}

// packPixels copies img into a tightly packed buffer.
func packPixels(img *image.RGBA) []uint8 {
	size := img.Rect.Size()
	out := make([]uint8, 0, size.X*size.Y*4)
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		start := img.PixOffset(img.Rect.Min.X, y)
		out = append(out, img.Pix[start:start+size.X*4]...)
	}
	return out
}

// --- framebuffer ---

// AttachFramebuffer gives the device a width x height render target, cleared
// to transparent black.
func (d *Device) AttachFramebuffer(width, height int) {
	d.state.Lock()
	defer d.state.Unlock()
	d.framebuffer = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Clear fills the framebuffer with c.
func (d *Device) Clear(c color.RGBA) {
	d.state.Lock()
	defer d.state.Unlock()
	if d.framebuffer == nil {
		return
	}
	pix := d.framebuffer.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
}

// Framebuffer returns a copy of the render target, or nil when none is attached.
func (d *Device) Framebuffer() *image.RGBA {
	d.state.Lock()
	defer d.state.Unlock()
	if d.framebuffer == nil {
		return nil
	}
	out := image.NewRGBA(d.framebuffer.Rect)
	copy(out.Pix, d.framebuffer.Pix)
	return out
}

// --- inspection ---

// Stats is a snapshot of the recorded counters.
type Stats struct {
	Enters         int
	Depth          int
	Created        int
	Deleted        int
	Live           int
	DoubleFrees    int
	OutsideScope   int
	BlendStackSize int
}

func (d *Device) Stats() Stats {
	d.state.Lock()
	defer d.state.Unlock()
	return Stats{
		Enters:         d.enters,
		Depth:          d.depth,
		Created:        d.created,
		Deleted:        d.deleted,
		Live:           len(d.live),
		DoubleFrees:    d.doubleFrees,
		OutsideScope:   d.outside,
		BlendStackSize: len(d.blendStack),
	}
}

// Draws returns a copy of the recorded draw calls.
func (d *Device) Draws() []DrawCall {
	d.state.Lock()
	defer d.state.Unlock()
	return append([]DrawCall(nil), d.draws...)
}

// ResetDraws forgets recorded draw calls.
func (d *Device) ResetDraws() {
	d.state.Lock()
	defer d.state.Unlock()
	d.draws = d.draws[:0]
}

// BlendFunc returns the current blend factors.
func (d *Device) BlendFunc() (graphics.BlendFactor, graphics.BlendFactor) {
	d.state.Lock()
	defer d.state.Unlock()
	return d.blend.src, d.blend.dst
}
