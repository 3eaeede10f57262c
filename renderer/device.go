package renderer

import (
	"fmt"
	"image"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/richinsley/goshadergaze/graphics"
	"github.com/richinsley/goshadergaze/shader"
	"github.com/richinsley/goshadergaze/translator"
)

// Texture is an OpenGL 2D texture.
type Texture struct {
	id     uint32
	width  int
	height int
}

func (t *Texture) Width() int  { return t.width }
func (t *Texture) Height() int { return t.height }

// ID returns the GL texture name.
func (t *Texture) ID() uint32 { return t.id }

type blendState struct {
	enabled            bool
	srcRGB, dstRGB     int32
	srcAlpha, dstAlpha int32
}

// Device implements graphics.Device on an OpenGL 4.1 (or GLES 3) context.
// Enter makes the context current and holds it until Leave.
type Device struct {
	context graphics.Context
	mu      sync.Mutex
	isGLES  bool

	quadVAO uint32
	quadVBO uint32
	program uint32

	vertRectLoc     int32
	vertViewportLoc int32
	imageLoc        int32
	rectLoc         int32
	viewportLoc     int32
	framebufferLoc  int32

	outputWidth  int
	outputHeight int
	blendStack   []blendState
}

var quadVertices = []float32{
	-1.0, 1.0, -1.0, -1.0, 1.0, -1.0,
	-1.0, 1.0, 1.0, -1.0, 1.0, 1.0,
}

// NewDevice builds the sprite program and quad. The context must be current.
func NewDevice(context graphics.Context, isGLES bool, outputWidth, outputHeight int) (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	d := &Device{
		context:      context,
		isGLES:       isGLES,
		outputWidth:  outputWidth,
		outputHeight: outputHeight,
	}

	gl.GenVertexArrays(1, &d.quadVAO)
	gl.GenBuffers(1, &d.quadVBO)
	gl.BindVertexArray(d.quadVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.quadVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(quadVertices)*4, gl.Ptr(quadVertices), gl.STATIC_DRAW)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, gl.PtrOffset(0))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)

	fsCode, names, err := translator.TranslateFragment(shader.GetSpriteFragmentShader(), isGLES)
	if err != nil {
		d.Destroy()
		return nil, err
	}
	d.program, err = newProgram(shader.GenerateVertexShader(isGLES), fsCode)
	if err != nil {
		d.Destroy()
		return nil, fmt.Errorf("failed to create sprite program: %w", err)
	}

	d.vertRectLoc = uniformLocation(d.program, "u_rect")
	d.vertViewportLoc = uniformLocation(d.program, "u_viewport")
	d.imageLoc = mappedUniformLocation(d.program, names, "u_image")
	d.rectLoc = mappedUniformLocation(d.program, names, "u_rect")
	d.viewportLoc = mappedUniformLocation(d.program, names, "u_viewport")
	d.framebufferLoc = mappedUniformLocation(d.program, names, "u_framebuffer")
	return d, nil
}

func uniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func mappedUniformLocation(program uint32, names map[string]string, name string) int32 {
	if mapped, ok := names[name]; ok {
		return uniformLocation(program, mapped)
	}
	return -1
}

// SetOutputSize sets the size of the output space sprites are positioned in.
// The output is scaled to the framebuffer.
func (d *Device) SetOutputSize(width, height int) {
	d.outputWidth, d.outputHeight = width, height
}

// Destroy frees the program and quad. The context must be current.
func (d *Device) Destroy() {
	if d.program != 0 {
		gl.DeleteProgram(d.program)
		d.program = 0
	}
	if d.quadVBO != 0 {
		gl.DeleteBuffers(1, &d.quadVBO)
		d.quadVBO = 0
	}
	if d.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &d.quadVAO)
		d.quadVAO = 0
	}
}

func (d *Device) Enter() {
	d.mu.Lock()
	d.context.MakeCurrent()
}

func (d *Device) Leave() {
	d.mu.Unlock()
}

func (d *Device) CreateTexture(img *image.RGBA, srgb bool) (graphics.Texture, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	size := img.Rect.Size()

	var textureID uint32
	gl.GenTextures(1, &textureID)
	gl.BindTexture(gl.TEXTURE_2D, textureID)

	var internalFormat int32 = gl.RGBA8
	if srgb {
		// sampled values are linearized by the GPU
		internalFormat = gl.SRGB8_ALPHA8
	}

	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 4)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexImage2D(gl.TEXTURE_2D, 0, internalFormat, int32(size.X), int32(size.Y), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if e := gl.GetError(); e != gl.NO_ERROR {
		gl.DeleteTextures(1, &textureID)
		return nil, fmt.Errorf("texture upload failed: GL error 0x%x", e)
	}
	return &Texture{id: textureID, width: size.X, height: size.Y}, nil
}

func (d *Device) UpdateTexture(tex graphics.Texture, img *image.RGBA) error {
	t, ok := tex.(*Texture)
	if !ok || t.id == 0 {
		return fmt.Errorf("not a GL texture")
	}
	size := img.Rect.Size()
	if size.X != t.width || size.Y != t.height {
		return fmt.Errorf("frame is %dx%d, texture is %dx%d", size.X, size.Y, t.width, t.height)
	}

	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, int32(img.Stride/4))
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(size.X), int32(size.Y), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.PixelStorei(gl.UNPACK_ROW_LENGTH, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("texture update failed: GL error 0x%x", e)
	}
	return nil
}

func (d *Device) DeleteTexture(tex graphics.Texture) {
	t, ok := tex.(*Texture)
	if !ok || t.id == 0 {
		return
	}
	gl.DeleteTextures(1, &t.id)
	t.id = 0
}

func (d *Device) FramebufferSRGB() bool {
	if d.isGLES {
		return false
	}
	return gl.IsEnabled(gl.FRAMEBUFFER_SRGB)
}

func (d *Device) SetFramebufferSRGB(enabled bool) {
	// GLES has no switch; sRGB writes follow the surface format.
	if d.isGLES {
		return
	}
	if enabled {
		gl.Enable(gl.FRAMEBUFFER_SRGB)
	} else {
		gl.Disable(gl.FRAMEBUFFER_SRGB)
	}
}

func (d *Device) PushBlendState() {
	var s blendState
	s.enabled = gl.IsEnabled(gl.BLEND)
	gl.GetIntegerv(gl.BLEND_SRC_RGB, &s.srcRGB)
	gl.GetIntegerv(gl.BLEND_DST_RGB, &s.dstRGB)
	gl.GetIntegerv(gl.BLEND_SRC_ALPHA, &s.srcAlpha)
	gl.GetIntegerv(gl.BLEND_DST_ALPHA, &s.dstAlpha)
	d.blendStack = append(d.blendStack, s)
}

func (d *Device) PopBlendState() {
	n := len(d.blendStack)
	if n == 0 {
		return
	}
	s := d.blendStack[n-1]
	d.blendStack = d.blendStack[:n-1]

	gl.BlendFuncSeparate(uint32(s.srcRGB), uint32(s.dstRGB), uint32(s.srcAlpha), uint32(s.dstAlpha))
	if s.enabled {
		gl.Enable(gl.BLEND)
	} else {
		gl.Disable(gl.BLEND)
	}
}

func glBlendFactor(f graphics.BlendFactor) uint32 {
	switch f {
	case graphics.BlendOne:
		return gl.ONE
	case graphics.BlendSrcAlpha:
		return gl.SRC_ALPHA
	case graphics.BlendInvSrcAlpha:
		return gl.ONE_MINUS_SRC_ALPHA
	}
	return gl.ZERO
}

func (d *Device) SetBlendFunc(src, dst graphics.BlendFactor) {
	gl.Enable(gl.BLEND)
	gl.BlendFunc(glBlendFactor(src), glBlendFactor(dst))
}

func (d *Device) DrawSprite(tex graphics.Texture, x, y float32) {
	t, ok := tex.(*Texture)
	if !ok || t.id == 0 {
		return
	}
	fbWidth, fbHeight := d.context.GetFramebufferSize()
	w, h := float32(t.width), float32(t.height)
	ow, oh := float32(d.outputWidth), float32(d.outputHeight)

	gl.Viewport(0, 0, int32(fbWidth), int32(fbHeight))
	gl.UseProgram(d.program)
	for _, loc := range []int32{d.vertRectLoc, d.rectLoc} {
		if loc != -1 {
			gl.Uniform4f(loc, x, y, w, h)
		}
	}
	for _, loc := range []int32{d.vertViewportLoc, d.viewportLoc} {
		if loc != -1 {
			gl.Uniform2f(loc, ow, oh)
		}
	}
	if d.framebufferLoc != -1 {
		gl.Uniform2f(d.framebufferLoc, float32(fbWidth), float32(fbHeight))
	}

	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	if d.imageLoc != -1 {
		gl.Uniform1i(d.imageLoc, 0)
	}
	gl.BindVertexArray(d.quadVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 6)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}
