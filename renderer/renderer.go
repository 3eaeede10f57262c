package renderer

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/richinsley/goshadergaze/glfwcontext"
)

// Renderer owns the viewer window and its GL device.
type Renderer struct {
	context *glfwcontext.Context
	device  *Device
	width   int
	height  int
}

// NewRenderer opens a window showing a width x height output.
func NewRenderer(width, height int, visible bool) (*Renderer, error) {
	r := &Renderer{
		width:  width,
		height: height,
	}

	var err error
	r.context, err = glfwcontext.New(width, height, "goshadergaze", visible, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize glfw context: %w", err)
	}
	r.context.MakeCurrent()

	r.device, err = NewDevice(r.context, r.context.IsGLES(), width, height)
	if err != nil {
		r.context.Shutdown()
		return nil, fmt.Errorf("failed to create GL device: %w", err)
	}
	return r, nil
}

// Context returns the window context.
func (r *Renderer) Context() *glfwcontext.Context { return r.context }

// Device returns the GL device.
func (r *Renderer) Device() *Device { return r.device }

func (r *Renderer) Shutdown() {
	r.device.Enter()
	r.device.Destroy()
	r.device.Leave()
	r.context.Shutdown()
}

// Run drives the frame loop until the window closes. tick runs outside the
// GPU scope; render runs inside it, after the framebuffer is cleared.
func (r *Renderer) Run(tick func(now, delta float64), render func()) {
	startTime := r.context.Time()
	last := 0.0

	for !r.context.ShouldClose() {
		now := r.context.Time() - startTime
		tick(now, now-last)
		last = now

		r.device.Enter()
		fbWidth, fbHeight := r.context.GetFramebufferSize()
		gl.Viewport(0, 0, int32(fbWidth), int32(fbHeight))
		gl.ClearColor(0, 0, 0, 1)
		gl.Clear(gl.COLOR_BUFFER_BIT)
		render()
		r.device.Leave()

		r.context.EndFrame()
	}
}
