// Package tobii binds the Tobii Stream Engine to gaze.DeviceAPI.
//
// The binding needs cgo and the Stream Engine headers and library; build with
// -tags tobii to enable it. Without the tag NewAPI returns ErrUnavailable.
package tobii

import (
	"errors"

	"github.com/richinsley/goshadergaze/gaze"
)

// ErrUnavailable is returned when the binary was built without the SDK.
var ErrUnavailable = errors.New("tobii stream engine support not compiled in")

// Factory returns NewAPI as a gaze.DeviceAPIFactory.
func Factory() gaze.DeviceAPIFactory {
	return NewAPI
}
