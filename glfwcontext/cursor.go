package glfwcontext

import (
	"errors"
	"time"

	"github.com/richinsley/goshadergaze/gaze"
)

// CursorURL is the device URL the cursor tracker enumerates as.
const CursorURL = "cursor://glfw"

// CursorTracker exposes the mouse cursor over c as a gaze device, so the
// overlay can be driven without tracker hardware. The cursor is only read
// inside ProcessCallbacks, which must run on the main thread.
func CursorTracker(c *Context) gaze.DeviceAPIFactory {
	return func() (gaze.DeviceAPI, error) {
		if c == nil || c.window == nil {
			return nil, errors.New("glfwcontext: no window for cursor tracker")
		}
		return &cursorAPI{context: c}, nil
	}
}

type cursorAPI struct {
	context *Context
}

func (a *cursorAPI) EnumerateDevices() ([]string, error) {
	return []string{CursorURL}, nil
}

func (a *cursorAPI) Open(url string) (gaze.Device, error) {
	if url != CursorURL {
		return nil, gaze.ErrNoDevice
	}
	return &cursorDevice{context: a.context, start: time.Now()}, nil
}

func (a *cursorAPI) Close() error { return nil }

type cursorDevice struct {
	context *Context
	start   time.Time
	fn      func(gaze.GazePoint)
}

func (d *cursorDevice) SubscribeGazePoint(fn func(gaze.GazePoint)) error {
	d.fn = fn
	return nil
}

func (d *cursorDevice) Unsubscribe() error {
	d.fn = nil
	return nil
}

// ProcessCallbacks reports one point per call; it is invalid while the
// cursor is outside the window.
func (d *cursorDevice) ProcessCallbacks() error {
	if d.fn == nil {
		return nil
	}
	x, y, inside := d.context.CursorPosition()
	d.fn(gaze.GazePoint{
		X:           x,
		Y:           y,
		Valid:       inside,
		TimestampUs: time.Since(d.start).Microseconds(),
	})
	return nil
}

func (d *cursorDevice) Close() error { return nil }
