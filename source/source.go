// Package source ties an asset pipeline and a gaze provider to the host's
// lifecycle callbacks.
package source

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/richinsley/goshadergaze/asset"
	"github.com/richinsley/goshadergaze/compositor"
	"github.com/richinsley/goshadergaze/gaze"
	"github.com/richinsley/goshadergaze/graphics"
	"github.com/richinsley/goshadergaze/imagefile"
	"github.com/richinsley/goshadergaze/options"
)

// Host is the compositor hosting the source.
type Host interface {
	// Showing reports whether the source is currently visible in any output.
	Showing() bool
	// FrameTime returns the timestamp of the video frame being produced, in ns.
	FrameTime() uint64
	// ReportMissingFile tells the user path is gone. repair may be called
	// later, from any goroutine, with a replacement path.
	ReportMissingFile(path string, repair func(newPath string))
}

// Option customizes a Source.
type Option func(*Source)

// WithName sets the name used in log lines.
func WithName(name string) Option {
	return func(s *Source) { s.name = name }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// WithGazeOptions passes options to the gaze provider.
func WithGazeOptions(opts ...gaze.ProviderOption) Option {
	return func(s *Source) { s.gazeOpts = append(s.gazeOpts, opts...) }
}

// Source is one gaze overlay.
type Source struct {
	name     string
	id       uuid.UUID
	host     Host
	dev      graphics.Device
	logger   *slog.Logger
	gazeOpts []gaze.ProviderOption

	pipeline *asset.Pipeline
	provider *gaze.Provider

	mu       sync.Mutex
	settings options.Settings

	// host goroutine only
	active    bool
	restart   bool
	lastTime  uint64
	destroyed bool
}

// New creates a source and applies settings.
func New(host Host, dev graphics.Device, settings options.Settings, opts ...Option) *Source {
	s := &Source{
		name:   "gaze",
		id:     uuid.New(),
		host:   host,
		dev:    dev,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("source", s.name, "id", s.id.String())

	s.pipeline = asset.New(dev,
		asset.WithLogger(s.logger),
		asset.WithAsyncDecode(settings.AsyncDecode),
		asset.WithDecodeOptions(&imagefile.Options{FFmpegPath: settings.FFmpegPath}),
		asset.WithMissingFileHandler(s.reportMissing),
	)
	s.provider = gaze.NewProvider(append([]gaze.ProviderOption{gaze.WithLogger(s.logger)}, s.gazeOpts...)...)

	s.Update(settings)
	return s
}

// ID returns the instance id.
func (s *Source) ID() uuid.UUID { return s.id }

// Settings returns the current settings.
func (s *Source) Settings() options.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Pipeline returns the asset pipeline.
func (s *Source) Pipeline() *asset.Pipeline { return s.pipeline }

// Provider returns the gaze provider.
func (s *Source) Provider() *gaze.Provider { return s.provider }

// Update applies new settings. Switching to a slide releases the image and
// the gaze backend; slide settings are otherwise only recorded.
func (s *Source) Update(settings options.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	if settings.IsSlide {
		// a slide owns no image or gaze backend
		if s.pipeline.Path() != "" {
			s.pipeline.Configure("", false)
		}
		if s.provider.Active() {
			if err := s.provider.Teardown(); err != nil {
				s.logger.Warn("gaze teardown failed", "error", err)
			}
		}
		return
	}

	s.pipeline.SetAsync(settings.AsyncDecode)
	s.pipeline.SetDecodeOptions(&imagefile.Options{FFmpegPath: settings.FFmpegPath})

	s.pipeline.Configure(settings.File, settings.LinearAlpha)
	if settings.Persistent() || s.host.Showing() {
		s.pipeline.Load()
	} else {
		s.pipeline.Unload()
	}

	kind, err := gaze.ParseBackendKind(settings.Backend)
	if err != nil {
		s.logger.Debug("gaze disabled", "error", err)
		kind = gaze.BackendNone
	}
	// Reconfigure logs the reason at debug level; the source stays usable
	// without a signal.
	_ = s.provider.Reconfigure(gaze.Config{Backend: kind, Server: settings.Server})
}

func (s *Source) reportMissing(path string) {
	s.host.ReportMissingFile(path, func(newPath string) {
		settings := s.Settings()
		settings.File = newPath
		s.logger.Info("replacing missing file", "old", path, "new", newPath)
		s.Update(settings)
	})
}

// MissingFiles lists configured files that do not exist.
func (s *Source) MissingFiles() []string {
	file := s.Settings().File
	if file == "" {
		return nil
	}
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		return []string{file}
	}
	return nil
}

// Show is called when the source becomes visible.
func (s *Source) Show() {
	settings := s.Settings()
	if !settings.Persistent() && !settings.IsSlide {
		s.pipeline.Load()
	}
}

// Hide is called when the source stops being visible.
func (s *Source) Hide() {
	settings := s.Settings()
	if !settings.Persistent() && !settings.IsSlide {
		s.pipeline.Unload()
	}
}

// Activate requests an animation restart on the next tick.
func (s *Source) Activate() {
	s.restart = true
}

// RestartPending reports whether an activation has not been serviced yet.
func (s *Source) RestartPending() bool { return s.restart }

// Tick advances the source by seconds of host time.
func (s *Source) Tick(seconds float64) {
	if s.destroyed || s.Settings().IsSlide {
		return
	}
	defer s.provider.PollOnce()

	if !s.pipeline.TextureReady() {
		if !s.pipeline.Decoded() {
			return
		}
		s.pipeline.UploadTextureIfNeeded()
	}

	frameTime := s.host.FrameTime()
	showing := s.host.Showing()

	if s.pipeline.CheckReload(seconds, showing) {
		s.logger.Info("file changed, reloading", "file", s.pipeline.Path())
		s.pipeline.Load()
	}

	animated := s.pipeline.Animated()
	if !showing {
		if s.active {
			s.pipeline.Restart()
			s.active = false
		}
		return
	}

	if !s.active {
		if animated {
			s.lastTime = frameTime
		}
		s.active = true
	}
	if s.restart && s.pipeline.Restart() {
		s.restart = false
		s.lastTime = frameTime
	}

	if s.lastTime != 0 && animated && frameTime > s.lastTime {
		if s.pipeline.Tick(frameTime - s.lastTime) {
			s.pipeline.RefreshTexture()
		}
	}
	s.lastTime = frameTime
}

// Render draws the overlay. It reports whether a sprite was drawn.
func (s *Source) Render() bool {
	if s.destroyed || s.Settings().IsSlide {
		return false
	}
	return compositor.Draw(s.dev, s.pipeline.Texture(), s.provider.CurrentSample(), s.Width(), s.Height())
}

// Width returns the output width.
func (s *Source) Width() int {
	if w := s.Settings().Width; w > 0 {
		return w
	}
	return options.DefaultWidth
}

// Height returns the output height.
func (s *Source) Height() int {
	if h := s.Settings().Height; h > 0 {
		return h
	}
	return options.DefaultHeight
}

// MemoryUsage returns the bytes held by the decoded image.
func (s *Source) MemoryUsage() uint64 {
	return s.pipeline.MemoryUsage()
}

// Destroy releases the image, its texture and the gaze backend.
func (s *Source) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.pipeline.Close()
	if err := s.provider.Teardown(); err != nil {
		s.logger.Warn("gaze teardown failed", "error", err)
	}
	s.logger.Debug("destroyed")
}
