package headless

import (
	"image"
	"image/color"
	"testing"

	"github.com/richinsley/goshadergaze/graphics"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestScopeAccounting(t *testing.T) {
	d := NewDevice()

	tex, err := d.CreateTexture(solid(1, 1, color.RGBA{}), false)
	if err != nil {
		t.Fatal(err)
	}
	graphics.Scope(d, func() { d.DeleteTexture(tex) })
	graphics.Scope(d, func() { d.DeleteTexture(tex) })

	st := d.Stats()
	if st.OutsideScope != 1 {
		t.Errorf("outside scope = %d, wanted 1", st.OutsideScope)
	}
	if st.DoubleFrees != 1 || st.Live != 0 || st.Deleted != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.Depth != 0 || st.Enters != 2 {
		t.Errorf("unbalanced scope %+v", st)
	}
}

func TestFailUploads(t *testing.T) {
	d := NewDevice()
	d.FailUploads = true
	var err error
	graphics.Scope(d, func() { _, err = d.CreateTexture(solid(1, 1, color.RGBA{}), true) })
	if err != ErrUploadFailed {
		t.Errorf("expected ErrUploadFailed, got %v", err)
	}
}

func TestUpdateSizeMismatch(t *testing.T) {
	d := NewDevice()
	graphics.Scope(d, func() {
		tex, _ := d.CreateTexture(solid(2, 2, color.RGBA{}), true)
		if err := d.UpdateTexture(tex, solid(1, 1, color.RGBA{})); err == nil {
			t.Errorf("expected size mismatch error")
		}
		if err := d.UpdateTexture(tex, solid(2, 2, color.RGBA{1, 2, 3, 4})); err != nil {
			t.Errorf("UpdateTexture() failed: %v", err)
		}
		if got := tex.(*Texture).Updates; got != 1 {
			t.Errorf("updates = %d", got)
		}
	})
}

func TestCompositePremultipliedOver(t *testing.T) {
	d := NewDevice()
	d.AttachFramebuffer(2, 2)
	d.Clear(color.RGBA{0, 0, 0, 255})

	graphics.Scope(d, func() {
		tex, _ := d.CreateTexture(solid(1, 1, color.RGBA{128, 128, 128, 128}), false)
		d.SetBlendFunc(graphics.BlendOne, graphics.BlendInvSrcAlpha)
		d.DrawSprite(tex, 1, 0)
	})

	fb := d.Framebuffer()
	if got := fb.RGBAAt(1, 0); got != (color.RGBA{128, 128, 128, 255}) {
		t.Errorf("blended pixel = %v", got)
	}
	if got := fb.RGBAAt(0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("untouched pixel = %v", got)
	}
}

func TestCompositeSRGBRoundTrip(t *testing.T) {
	d := NewDevice()
	d.AttachFramebuffer(1, 1)

	graphics.Scope(d, func() {
		tex, _ := d.CreateTexture(solid(1, 1, color.RGBA{128, 64, 200, 128}), true)
		d.SetFramebufferSRGB(true)
		d.SetBlendFunc(graphics.BlendOne, graphics.BlendInvSrcAlpha)
		d.DrawSprite(tex, 0, 0)
	})

	if got := d.Framebuffer().RGBAAt(0, 0); got != (color.RGBA{128, 64, 200, 128}) {
		t.Errorf("srgb over transparent black = %v", got)
	}
}

func TestCompositeClips(t *testing.T) {
	d := NewDevice()
	d.AttachFramebuffer(2, 2)

	img := solid(2, 2, color.RGBA{})
	img.SetRGBA(1, 1, color.RGBA{255, 0, 0, 255})
	graphics.Scope(d, func() {
		tex, _ := d.CreateTexture(img, false)
		d.DrawSprite(tex, -1, -1)
	})

	fb := d.Framebuffer()
	if got := fb.RGBAAt(0, 0); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("clipped pixel = %v", got)
	}
	if got := fb.RGBAAt(1, 1); got != (color.RGBA{}) {
		t.Errorf("pixel outside the sprite = %v", got)
	}
}

func TestBlendStack(t *testing.T) {
	d := NewDevice()
	d.PushBlendState()
	d.SetBlendFunc(graphics.BlendSrcAlpha, graphics.BlendInvSrcAlpha)
	d.PopBlendState()
	if src, dst := d.BlendFunc(); src != graphics.BlendOne || dst != graphics.BlendZero {
		t.Errorf("blend func not restored: %v %v", src, dst)
	}
}
