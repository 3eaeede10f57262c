package glfwcontext

import (
	"log"
	"runtime"

	glfw "github.com/go-gl/glfw/v3.3/glfw"
)

// Context is a GLFW window with an OpenGL 4.1 core context.
type Context struct {
	window *glfw.Window
	title  string
	// A map to store functions to be called on key presses.
	keyCallbacks map[glfw.Key]func()
}

// New creates and initializes a new GLFW window and returns a Context object.
// The window is scaled down to fit the primary monitor; rendering happens in
// output coordinates regardless of the window size.
func New(width, height int, title string, visible bool, share interface{}) (*Context, error) {
	sharecontext, _ := share.(*glfw.Window)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.SRGBCapable, glfw.True)

	if visible {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}

	winWidth, winHeight := fitToMonitor(width, height)
	win, err := glfw.CreateWindow(winWidth, winHeight, title, nil, sharecontext)
	if err != nil {
		return nil, err
	}

	c := &Context{
		window:       win,
		title:        title,
		keyCallbacks: make(map[glfw.Key]func()),
	}

	// Set the key callback for the window to be the method on our new context instance.
	win.SetKeyCallback(c.glfwKeyCallback)

	return c, nil
}

// RegisterKeyCallback allows the main application to register a function to be
// called when a specific key is pressed.
func (c *Context) RegisterKeyCallback(key glfw.Key, f func()) {
	c.keyCallbacks[key] = f
}

// RegisterDropCallback calls f with the paths of files dropped on the window.
func (c *Context) RegisterDropCallback(f func(paths []string)) {
	c.window.SetDropCallback(func(w *glfw.Window, names []string) {
		f(names)
	})
}

// Close asks the frame loop to stop.
func (c *Context) Close() {
	c.window.SetShouldClose(true)
}

// glfwKeyCallback is the function that will be called by GLFW on a key event.
// It now dispatches to our registered custom callbacks.
func (c *Context) glfwKeyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	// Handle the default Escape key behavior
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
	}

	// If a key is pressed and we have a callback for it, run it.
	if action == glfw.Press {
		if callback, ok := c.keyCallbacks[key]; ok {
			callback()
		}
	}
}

// DetachCurrent makes no context current on the calling thread.
func (c *Context) DetachCurrent() {
	glfw.DetachCurrentContext()
}

func (c *Context) IsGLES() bool {
	// GLFW does not provide a direct way to check if the context is GLES.
	return false
}

// Title returns the window title.
func (c *Context) Title() string { return c.title }

// fitToMonitor halves the requested size until it fits the primary monitor.
func fitToMonitor(width, height int) (int, int) {
	monitor := glfw.GetPrimaryMonitor()
	if monitor == nil {
		return width, height
	}
	mode := monitor.GetVideoMode()
	if mode == nil {
		return width, height
	}
	for (width > mode.Width || height > mode.Height) && width > 1 && height > 1 {
		width, height = width/2, height/2
	}
	return width, height
}

// CursorPosition returns the cursor in normalized window coordinates and
// whether it is inside the window.
func (c *Context) CursorPosition() (x, y float32, inside bool) {
	if c.window == nil {
		return 0, 0, false
	}
	winWidth, winHeight := c.window.GetSize()
	if winWidth <= 0 || winHeight <= 0 {
		return 0, 0, false
	}

	cursorX, cursorY := c.window.GetCursorPos()
	x = float32(cursorX / float64(winWidth))
	y = float32(cursorY / float64(winHeight))
	inside = c.window.GetAttrib(glfw.Hovered) == glfw.True &&
		x >= 0 && x <= 1 && y >= 0 && y <= 1
	return x, y, inside
}

// MakeCurrent makes the context current for the calling goroutine.
func (c *Context) MakeCurrent() {
	c.window.MakeContextCurrent()
}

// Shutdown destroys the window. GLFW itself is released by TerminateGraphics.
func (c *Context) Shutdown() {
	c.window.Destroy()
}

func (c *Context) ShouldClose() bool {
	return c.window.ShouldClose()
}

func (c *Context) EndFrame() {
	c.window.SwapBuffers()
	glfw.PollEvents()
}

func (c *Context) GetFramebufferSize() (int, int) {
	return c.window.GetFramebufferSize()
}

func (c *Context) Time() float64 {
	return glfw.GetTime()
}

// Window returns the underlying *glfw.Window.
func (c *Context) Window() *glfw.Window {
	return c.window
}

// InitGraphics initializes the main graphics subsystem (GLFW). Must be called from the main thread.
func InitGraphics() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return err
	}
	log.Printf("GLFW Initialized")
	return nil
}

// TerminateGraphics shuts down the graphics subsystem. Must be called from the main thread.
func TerminateGraphics() {
	glfw.Terminate()
	log.Printf("GLFW Terminated")
}
