//go:build !tobii || !cgo

package tobii

import "github.com/richinsley/goshadergaze/gaze"

// Available reports whether the SDK binding is compiled in.
const Available = false

// NewAPI always fails in builds without the SDK.
func NewAPI() (gaze.DeviceAPI, error) {
	return nil, ErrUnavailable
}
