//go:build tobii && cgo

package tobii

/*
#cgo LDFLAGS: -ltobii_stream_engine

#include <stdint.h>
#include <stdlib.h>
#include <tobii/tobii.h>
#include <tobii/tobii_streams.h>

extern void goDeviceURL(char *url, uintptr_t handle);
extern void goGazePoint(int64_t timestamp_us, int valid, float x, float y, uintptr_t handle);

static void url_receiver(char const *url, void *user_data) {
	goDeviceURL((char *)url, (uintptr_t)user_data);
}

static void gaze_point_callback(tobii_gaze_point_t const *p, void *user_data) {
	goGazePoint(p->timestamp_us, p->validity == TOBII_VALIDITY_VALID,
		p->position_xy[0], p->position_xy[1], (uintptr_t)user_data);
}

static tobii_error_t enumerate_urls(tobii_api_t *api, uintptr_t handle) {
	return tobii_enumerate_local_device_urls(api, url_receiver, (void *)handle);
}

static tobii_error_t subscribe_gaze_point(tobii_device_t *device, uintptr_t handle) {
	return tobii_gaze_point_subscribe(device, gaze_point_callback, (void *)handle);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"

	"github.com/richinsley/goshadergaze/gaze"
)

// Available reports whether the SDK binding is compiled in.
const Available = true

func tobiiError(op string, e C.tobii_error_t) error {
	if e == C.TOBII_ERROR_NO_ERROR {
		return nil
	}
	return fmt.Errorf("%s: %s", op, C.GoString(C.tobii_error_message(e)))
}

//export goDeviceURL
func goDeviceURL(url *C.char, handle C.uintptr_t) {
	urls := cgo.Handle(handle).Value().(*[]string)
	*urls = append(*urls, C.GoString(url))
}

//export goGazePoint
func goGazePoint(timestamp C.int64_t, valid C.int, x, y C.float, handle C.uintptr_t) {
	d := cgo.Handle(handle).Value().(*device)
	if d.fn != nil {
		d.fn(gaze.GazePoint{X: float32(x), Y: float32(y), Valid: valid != 0, TimestampUs: int64(timestamp)})
	}
}

type api struct {
	p *C.tobii_api_t
}

// NewAPI creates a Stream Engine API instance.
func NewAPI() (gaze.DeviceAPI, error) {
	a := &api{}
	if err := tobiiError("tobii_api_create", C.tobii_api_create(&a.p, nil, nil)); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *api) EnumerateDevices() ([]string, error) {
	var urls []string
	h := cgo.NewHandle(&urls)
	defer h.Delete()
	if err := tobiiError("tobii_enumerate_local_device_urls", C.enumerate_urls(a.p, C.uintptr_t(h))); err != nil {
		return nil, err
	}
	return urls, nil
}

func (a *api) Open(url string) (gaze.Device, error) {
	curl := C.CString(url)
	defer C.free(unsafe.Pointer(curl))

	d := &device{}
	if err := tobiiError("tobii_device_create", C.tobii_device_create(a.p, curl, &d.p)); err != nil {
		return nil, err
	}
	return d, nil
}

func (a *api) Close() error {
	if a.p == nil {
		return nil
	}
	err := tobiiError("tobii_api_destroy", C.tobii_api_destroy(a.p))
	a.p = nil
	return err
}

type device struct {
	p      *C.tobii_device_t
	fn     func(gaze.GazePoint)
	handle cgo.Handle
}

func (d *device) SubscribeGazePoint(fn func(gaze.GazePoint)) error {
	d.fn = fn
	d.handle = cgo.NewHandle(d)
	if err := tobiiError("tobii_gaze_point_subscribe", C.subscribe_gaze_point(d.p, C.uintptr_t(d.handle))); err != nil {
		d.handle.Delete()
		d.handle = 0
		return err
	}
	return nil
}

func (d *device) Unsubscribe() error {
	err := tobiiError("tobii_gaze_point_unsubscribe", C.tobii_gaze_point_unsubscribe(d.p))
	if d.handle != 0 {
		d.handle.Delete()
		d.handle = 0
	}
	return err
}

func (d *device) ProcessCallbacks() error {
	return tobiiError("tobii_device_process_callbacks", C.tobii_device_process_callbacks(d.p))
}

func (d *device) Close() error {
	if d.p == nil {
		return nil
	}
	err := tobiiError("tobii_device_destroy", C.tobii_device_destroy(d.p))
	d.p = nil
	return err
}
