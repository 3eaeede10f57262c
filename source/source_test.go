package source

import (
	"image"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinsley/goshadergaze/gaze"
	"github.com/richinsley/goshadergaze/headless"
	"github.com/richinsley/goshadergaze/options"
)

type fakeHost struct {
	showing   bool
	frameTime uint64
	missing   []string
	repair    func(string)
}

func (h *fakeHost) Showing() bool     { return h.showing }
func (h *fakeHost) FrameTime() uint64 { return h.frameTime }

func (h *fakeHost) ReportMissingFile(path string, repair func(string)) {
	h.missing = append(h.missing, path)
	h.repair = repair
}

// advance moves the frame clock by d and ticks s.
func (h *fakeHost) advance(s *Source, d time.Duration) {
	h.frameTime += uint64(d)
	s.Tick(d.Seconds())
}

type fakeAPI struct{ dev *fakeDevice }

func (a *fakeAPI) EnumerateDevices() ([]string, error) { return []string{"fake://tracker"}, nil }
func (a *fakeAPI) Open(string) (gaze.Device, error)    { return a.dev, nil }
func (a *fakeAPI) Close() error                        { return nil }

type fakeDevice struct {
	fn     func(gaze.GazePoint)
	point  gaze.GazePoint
	closed bool
}

func (d *fakeDevice) SubscribeGazePoint(fn func(gaze.GazePoint)) error { d.fn = fn; return nil }
func (d *fakeDevice) Unsubscribe() error                               { return nil }
func (d *fakeDevice) Close() error                                     { d.closed = true; return nil }

func (d *fakeDevice) ProcessCallbacks() error {
	d.fn(d.point)
	return nil
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 20, 10))); err != nil {
		t.Fatal(err)
	}
}

func writeGIF(t *testing.T, path string) {
	t.Helper()
	g := &gif.GIF{}
	for i := 0; i < 3; i++ {
		g.Image = append(g.Image, image.NewPaletted(image.Rect(0, 0, 4, 4), palette.Plan9))
		g.Delay = append(g.Delay, 10)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatal(err)
	}
}

func settingsFor(file string) options.Settings {
	s := options.Defaults()
	s.File = file
	s.Backend = "none"
	return s
}

func newSource(t *testing.T, host *fakeHost, settings options.Settings, opts ...Option) (*Source, *headless.Device) {
	t.Helper()
	dev := headless.NewDevice()
	s := New(host, dev, settings, opts...)
	t.Cleanup(s.Destroy)
	return s, dev
}

func TestPersistentLoadsOnCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.png")
	writePNG(t, path)
	s, _ := newSource(t, &fakeHost{}, settingsFor(path))

	if !s.Pipeline().TextureReady() {
		t.Error("persistent source not loaded while hidden")
	}
	if s.MemoryUsage() != 20*10*4 {
		t.Errorf("MemoryUsage() = %d", s.MemoryUsage())
	}
	if s.Width() != 2560 || s.Height() != 1600 {
		t.Errorf("size = %dx%d", s.Width(), s.Height())
	}
}

func TestUnloadWhenHidden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.png")
	writePNG(t, path)
	settings := settingsFor(path)
	settings.Unload = true
	host := &fakeHost{}
	s, dev := newSource(t, host, settings)

	if s.Pipeline().Decoded() {
		t.Fatal("non-persistent hidden source was loaded")
	}

	host.showing = true
	s.Show()
	if !s.Pipeline().TextureReady() {
		t.Fatal("Show() did not load")
	}

	host.showing = false
	s.Hide()
	if s.Pipeline().Decoded() || dev.Stats().Live != 0 {
		t.Error("Hide() did not unload")
	}
}

func TestSlideShortCircuits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.png")
	writePNG(t, path)
	settings := settingsFor(path)
	settings.IsSlide = true
	settings.Unload = true
	host := &fakeHost{showing: true}
	s, dev := newSource(t, host, settings)

	s.Show()
	host.advance(s, time.Second)
	if s.Pipeline().Decoded() || dev.Stats().Enters != 0 {
		t.Error("slide touched the asset pipeline")
	}
}

func TestSwitchingToSlideReleasesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.png")
	writePNG(t, path)
	device := &fakeDevice{point: gaze.GazePoint{X: 0.5, Y: 0.5, Valid: true}}
	settings := settingsFor(path)
	settings.Backend = "device"
	host := &fakeHost{showing: true}
	factory := func() (gaze.DeviceAPI, error) { return &fakeAPI{dev: device}, nil }
	s, dev := newSource(t, host, settings, WithGazeOptions(gaze.WithDeviceAPI(factory)))

	host.advance(s, 16*time.Millisecond)
	if !s.Render() {
		t.Fatal("Render() drew nothing before the switch")
	}

	settings.IsSlide = true
	s.Update(settings)
	if s.Provider().Active() || !device.closed {
		t.Error("slide kept the gaze device subscribed")
	}
	if s.Pipeline().TextureReady() || dev.Stats().Live != 0 {
		t.Error("slide kept the texture loaded")
	}
	if s.Render() {
		t.Error("slide rendered the overlay")
	}

	settings.IsSlide = false
	s.Update(settings)
	if !s.Pipeline().TextureReady() || !s.Provider().Active() {
		t.Error("leaving slide mode did not reload")
	}
}

func TestUpdateAppliesAsyncDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.png")
	writePNG(t, path)
	host := &fakeHost{showing: true}
	s, _ := newSource(t, host, settingsFor(path))
	if !s.Pipeline().TextureReady() {
		t.Fatal("synchronous load did not upload")
	}

	settings := settingsFor(path)
	settings.AsyncDecode = true
	s.Update(settings)
	s.Pipeline().Wait()
	if !s.Pipeline().Decoded() {
		t.Fatal("async decode did not complete")
	}
	if s.Pipeline().TextureReady() {
		t.Error("async_decode change ignored: upload ran inside Update")
	}

	host.advance(s, 16*time.Millisecond)
	if !s.Pipeline().TextureReady() {
		t.Error("tick did not upload the async decode")
	}
}

func TestActivateRestartsAnimation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.gif")
	writeGIF(t, path)
	host := &fakeHost{showing: true, frameTime: uint64(time.Second)}
	s, _ := newSource(t, host, settingsFor(path))

	host.advance(s, 16*time.Millisecond)
	host.advance(s, 150*time.Millisecond)
	if a := s.Pipeline().Animation(); a.Frame != 1 {
		t.Fatalf("animation did not advance: %+v", a)
	}

	s.Activate()
	host.advance(s, 16*time.Millisecond)
	if a := s.Pipeline().Animation(); a.Frame != 0 || a.Loop != 0 {
		t.Errorf("animation not restarted: %+v", a)
	}
	if s.RestartPending() {
		t.Error("restart still pending")
	}
}

func TestHideRestartsAnimation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.gif")
	writeGIF(t, path)
	host := &fakeHost{showing: true, frameTime: uint64(time.Second)}
	s, _ := newSource(t, host, settingsFor(path))

	host.advance(s, 16*time.Millisecond)
	host.advance(s, 150*time.Millisecond)
	host.showing = false
	host.advance(s, 16*time.Millisecond)
	if a := s.Pipeline().Animation(); a.Frame != 0 {
		t.Errorf("hiding did not rewind: %+v", a)
	}
}

func TestHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.png")
	writePNG(t, path)
	host := &fakeHost{showing: true}
	s, dev := newSource(t, host, settingsFor(path))

	host.advance(s, 500*time.Millisecond)
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	host.advance(s, 600*time.Millisecond)

	if st := dev.Stats(); st.Created != 2 || st.Deleted != 1 {
		t.Errorf("no reload within one second: %+v", st)
	}
	if !s.Pipeline().TextureReady() {
		t.Error("reload left the pipeline unready")
	}
}

func TestMissingFileRepair(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "gone.png")
	host := &fakeHost{}
	s, _ := newSource(t, host, settingsFor(missing))

	if len(host.missing) != 1 || host.missing[0] != missing {
		t.Fatalf("missing file not reported: %v", host.missing)
	}
	if got := s.MissingFiles(); len(got) != 1 || got[0] != missing {
		t.Errorf("MissingFiles() = %v", got)
	}

	replacement := filepath.Join(dir, "found.png")
	writePNG(t, replacement)
	host.repair(replacement)

	if s.Settings().File != replacement {
		t.Errorf("repair did not update settings: %q", s.Settings().File)
	}
	if s.Pipeline().Texture() == nil {
		t.Error("repaired file not loaded")
	}
	if len(s.MissingFiles()) != 0 {
		t.Error("still missing after repair")
	}
}

func TestRenderFollowsGaze(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.png")
	writePNG(t, path)
	device := &fakeDevice{point: gaze.GazePoint{X: 0.5, Y: 0.5, Valid: true}}
	settings := settingsFor(path)
	settings.Backend = "device"
	host := &fakeHost{showing: true}
	factory := func() (gaze.DeviceAPI, error) { return &fakeAPI{dev: device}, nil }
	s, dev := newSource(t, host, settings, WithGazeOptions(gaze.WithDeviceAPI(factory)))

	if s.Render() {
		t.Fatal("drew before any gaze sample")
	}

	host.advance(s, 16*time.Millisecond)
	if !s.Render() {
		t.Fatal("Render() drew nothing")
	}
	draws := dev.Draws()
	if len(draws) != 1 || draws[0].X != 1270 || draws[0].Y != 795 {
		t.Errorf("draws = %+v", draws)
	}

	s.Destroy()
	if !device.closed || dev.Stats().Live != 0 {
		t.Error("Destroy() leaked the device or texture")
	}
	if s.Render() {
		t.Error("destroyed source rendered")
	}
}

func TestInvalidServerKeepsSourceUsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eye.png")
	writePNG(t, path)
	settings := settingsFor(path)
	settings.Backend = "network"
	settings.Server = "not-an-address"
	host := &fakeHost{showing: true}
	s, dev := newSource(t, host, settings)

	host.advance(s, 16*time.Millisecond)
	if s.Provider().Active() {
		t.Error("provider active with a malformed server")
	}
	if s.Render() || len(dev.Draws()) != 0 {
		t.Error("drew without a gaze signal")
	}
}
