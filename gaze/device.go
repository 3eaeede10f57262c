package gaze

import (
	"errors"
	"fmt"
	"log/slog"
)

// MaxDeviceCallbacks bounds the ProcessCallbacks calls made per poll.
const MaxDeviceCallbacks = 10

// ErrNoDevice is returned when no tracker is attached.
var ErrNoDevice = errors.New("no gaze device found")

// GazePoint is one point reported by a tracker.
type GazePoint struct {
	X, Y float32
	// Valid is false when the tracker lost the eyes.
	Valid bool
	// TimestampUs is the tracker's timestamp in microseconds.
	TimestampUs int64
}

// DeviceAPI is a tracker SDK instance.
type DeviceAPI interface {
	// EnumerateDevices lists the URLs of locally attached trackers.
	EnumerateDevices() ([]string, error)
	Open(url string) (Device, error)
	Close() error
}

// Device is an open tracker.
type Device interface {
	// SubscribeGazePoint registers fn. fn is only ever called from inside
	// ProcessCallbacks.
	SubscribeGazePoint(fn func(GazePoint)) error
	Unsubscribe() error
	// ProcessCallbacks delivers pending points without blocking.
	ProcessCallbacks() error
	Close() error
}

// DeviceAPIFactory creates a DeviceAPI.
type DeviceAPIFactory func() (DeviceAPI, error)

// DeviceBackend reads gaze points from a tracker subscription.
type DeviceBackend struct {
	api        DeviceAPI
	device     Device
	url        string
	subscribed bool

	current *sampleCell
	logger  *slog.Logger
}

// NewDeviceBackend creates the API, opens the first enumerated device and
// subscribes to its gaze points. Partially acquired resources are released
// on failure.
func NewDeviceBackend(factory DeviceAPIFactory, logger *slog.Logger) (b *DeviceBackend, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	api, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create device API: %w", err)
	}

	b = &DeviceBackend{api: api, current: newSampleCell(), logger: logger}
	defer func() {
		if err != nil {
			b.Teardown()
			b = nil
		}
	}()

	urls, err := api.EnumerateDevices()
	if err != nil {
		return b, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if len(urls) == 0 || urls[0] == "" {
		return b, ErrNoDevice
	}
	b.url = urls[0]

	b.device, err = api.Open(b.url)
	if err != nil {
		return b, fmt.Errorf("failed to open device %s: %w", b.url, err)
	}

	if err = b.device.SubscribeGazePoint(b.onGazePoint); err != nil {
		return b, fmt.Errorf("failed to subscribe to gaze points: %w", err)
	}
	b.subscribed = true

	logger.Info("gaze device subscribed", "url", b.url)
	return b, nil
}

func (b *DeviceBackend) onGazePoint(p GazePoint) {
	if !p.Valid {
		return
	}
	s := Sample{X: p.X, Y: p.Y}
	if !s.Finite() {
		return
	}
	b.current.Store(s)
}

// URL returns the device in use.
func (b *DeviceBackend) URL() string { return b.url }

// Subscribed reports whether the subscription is still delivering.
func (b *DeviceBackend) Subscribed() bool { return b.subscribed }

// PollOnce processes up to MaxDeviceCallbacks batches of pending callbacks.
// The first error ends the subscription until the next reconfigure.
func (b *DeviceBackend) PollOnce() Sample {
	if !b.subscribed {
		return b.current.Load()
	}
	for i := 0; i < MaxDeviceCallbacks; i++ {
		if err := b.device.ProcessCallbacks(); err != nil {
			b.subscribed = false
			b.logger.Warn("gaze device stopped delivering", "url", b.url, "error", err)
			break
		}
	}
	return b.current.Load()
}

func (b *DeviceBackend) CurrentSample() Sample {
	return b.current.Load()
}

// Teardown unsubscribes, closes the device and destroys the API.
func (b *DeviceBackend) Teardown() error {
	var errs []error
	if b.device != nil {
		if b.subscribed {
			if err := b.device.Unsubscribe(); err != nil {
				errs = append(errs, err)
			}
			b.subscribed = false
		}
		if err := b.device.Close(); err != nil {
			errs = append(errs, err)
		}
		b.device = nil
	}
	if b.api != nil {
		if err := b.api.Close(); err != nil {
			errs = append(errs, err)
		}
		b.api = nil
	}
	return errors.Join(errs...)
}
