// Package asset implements the two-stage overlay image pipeline: decode the
// file into memory on any goroutine, then upload the current frame to a GPU
// texture inside a graphics scope, then keep the texture in step with the
// animation clock.
//
// decoded and textureReady are the only state shared with decode goroutines.
// Each Configure or Unload starts a new generation; a decode that finishes
// for an older generation is discarded.
package asset

import (
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/richinsley/goshadergaze/filewatch"
	"github.com/richinsley/goshadergaze/graphics"
	"github.com/richinsley/goshadergaze/imagefile"
)

// State is the pipeline's position in its load cycle.
type State int

const (
	StateUnloaded State = iota
	StateDecoding
	StateDecoded
	StateUploading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDecoding:
		return "decoding"
	case StateDecoded:
		return "decoded"
	case StateUploading:
		return "uploading"
	case StateReady:
		return "ready"
	}
	return "unloaded"
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithDecodeOptions passes opts to imagefile.Decode.
func WithDecodeOptions(opts *imagefile.Options) Option {
	return func(p *Pipeline) { p.decodeOpts = opts }
}

// WithAsyncDecode makes Load decode on a separate goroutine. The texture is
// then uploaded by a later UploadTextureIfNeeded.
func WithAsyncDecode(async bool) Option {
	return func(p *Pipeline) { p.async = async }
}

// WithMissingFileHandler registers fn to be called when the configured file
// does not exist at decode time. fn may run on a decode goroutine.
func WithMissingFileHandler(fn func(path string)) Option {
	return func(p *Pipeline) { p.onMissing = fn }
}

// Pipeline owns one overlay image and its texture.
type Pipeline struct {
	dev       graphics.Device
	logger    *slog.Logger
	onMissing func(path string)

	decoded      atomic.Bool
	textureReady atomic.Bool
	uploading    atomic.Bool
	pending      atomic.Int32
	generation   atomic.Uint64
	wg           sync.WaitGroup

	// mu guards the fields shared with decode goroutines.
	mu          sync.Mutex
	path        string
	linearAlpha bool
	async       bool
	decodeOpts  *imagefile.Options
	image       *imagefile.Image
	watcher     *filewatch.Watcher
	interval    time.Duration

	// render goroutine only
	texture graphics.Texture
	anim    imagefile.Animation
}

// New creates an unloaded pipeline drawing through dev.
func New(dev graphics.Device, opts ...Option) *Pipeline {
	p := &Pipeline{
		dev:      dev,
		logger:   slog.Default(),
		watcher:  filewatch.New(""),
		interval: filewatch.DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configure sets the file and alpha mode, dropping whatever was loaded.
func (p *Pipeline) Configure(path string, linearAlpha bool) {
	p.mu.Lock()
	p.path = path
	p.linearAlpha = linearAlpha
	p.watcher = filewatch.New(path)
	p.watcher.SetInterval(p.interval)
	p.mu.Unlock()

	p.Unload()
}

// SetAsync switches between decoding on the calling goroutine and on a new
// one. It takes effect on the next Load.
func (p *Pipeline) SetAsync(async bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.async = async
}

// SetDecodeOptions replaces the options passed to imagefile.Decode. It takes
// effect on the next decode.
func (p *Pipeline) SetDecodeOptions(opts *imagefile.Options) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decodeOpts = opts
}

// Path returns the configured file.
func (p *Pipeline) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

func (p *Pipeline) alphaMode() imagefile.AlphaMode {
	if p.linearAlpha {
		return imagefile.AlphaPremultiplySRGB
	}
	return imagefile.AlphaPremultiply
}

// DecodeIfNeeded decodes the configured file unless the current generation
// is already decoded. It may be called from any goroutine.
func (p *Pipeline) DecodeIfNeeded() {
	if p.decoded.Load() {
		return
	}
	p.decode(p.generation.Load())
}

// DecodeAsync runs DecodeIfNeeded on a new goroutine.
func (p *Pipeline) DecodeAsync() {
	if p.decoded.Load() {
		return
	}
	gen := p.generation.Load()
	p.pending.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)
		p.decode(gen)
	}()
}

// Wait blocks until every outstanding DecodeAsync has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) decode(gen uint64) {
	p.mu.Lock()
	path, mode, opts := p.path, p.alphaMode(), p.decodeOpts
	if path == "" || gen != p.generation.Load() {
		p.mu.Unlock()
		return
	}
	p.watcher.Record()
	p.mu.Unlock()

	img, err := imagefile.Decode(path, mode, opts)

	p.mu.Lock()
	if gen != p.generation.Load() || p.decoded.Load() {
		p.mu.Unlock()
		p.logger.Debug("discarding stale decode", "file", path)
		return
	}
	p.image = img
	// A failed decode still completes the stage so it is not retried every
	// tick; the file is picked up again when its modification time changes.
	p.decoded.Store(true)
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("failed to decode image", "file", path, "error", err)
		if errors.Is(err, fs.ErrNotExist) && p.onMissing != nil {
			p.onMissing(path)
		}
		return
	}
	p.logger.Debug("decoded image", "file", path, "frames", len(img.Frames), "format", img.Format)
}

// UploadTextureIfNeeded creates the texture for a decoded image. It reports
// whether the texture stage is complete. A failed upload is logged and still
// completes the stage.
func (p *Pipeline) UploadTextureIfNeeded() bool {
	if p.textureReady.Load() {
		return true
	}
	if !p.decoded.Load() {
		return false
	}

	p.mu.Lock()
	img, path := p.image, p.path
	p.mu.Unlock()

	p.logger.Debug("loading texture", "file", path)
	p.uploading.Store(true)
	defer p.uploading.Store(false)

	var err error
	graphics.Scope(p.dev, func() {
		if p.texture != nil {
			p.dev.DeleteTexture(p.texture)
			p.texture = nil
		}
		if img == nil {
			err = errors.New("no decoded image")
			return
		}
		p.anim.Reset()
		p.texture, err = p.dev.CreateTexture(img.FrameAt(p.anim), true)
	})
	if err != nil {
		p.texture = nil
		p.logger.Warn("failed to load texture", "file", path, "error", err)
	}

	p.mu.Lock()
	p.watcher.ResetElapsed()
	p.mu.Unlock()

	p.textureReady.Store(true)
	return true
}

// Load unloads and then runs both stages. In async mode only the decode is
// started.
func (p *Pipeline) Load() {
	p.Unload()
	p.mu.Lock()
	path, async := p.path, p.async
	p.mu.Unlock()
	if path == "" {
		return
	}
	if async {
		p.DecodeAsync()
		return
	}
	p.DecodeIfNeeded()
	p.UploadTextureIfNeeded()
}

// Unload clears both flags, frees the texture and drops the decoded frames.
// Calling it again has no further effect.
func (p *Pipeline) Unload() {
	p.mu.Lock()
	p.generation.Add(1)
	p.textureReady.Store(false)
	p.decoded.Store(false)
	p.image = nil
	p.mu.Unlock()

	graphics.Scope(p.dev, func() {
		if p.texture != nil {
			p.dev.DeleteTexture(p.texture)
			p.texture = nil
		}
	})
	p.anim.Reset()
}

// Close unloads and waits for in-flight decodes.
func (p *Pipeline) Close() {
	p.Unload()
	p.wg.Wait()
}

// Decoded reports whether the decode stage of the current generation is done.
func (p *Pipeline) Decoded() bool { return p.decoded.Load() }

// TextureReady reports whether the upload stage is done.
func (p *Pipeline) TextureReady() bool { return p.textureReady.Load() }

// Texture returns the texture to draw, or nil when none is ready.
func (p *Pipeline) Texture() graphics.Texture {
	if !p.textureReady.Load() {
		return nil
	}
	return p.texture
}

// State reports the current load stage.
func (p *Pipeline) State() State {
	switch {
	case p.textureReady.Load():
		return StateReady
	case p.uploading.Load():
		return StateUploading
	case p.decoded.Load():
		return StateDecoded
	case p.pending.Load() > 0:
		return StateDecoding
	}
	return StateUnloaded
}

// Animated reports whether the decoded image has several frames.
func (p *Pipeline) Animated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.image.Animated()
}

// Animation returns the current playback position.
func (p *Pipeline) Animation() imagefile.Animation { return p.anim }

// Tick advances the animation by elapsedNs and reports whether the visible
// frame changed.
func (p *Pipeline) Tick(elapsedNs uint64) bool {
	if !p.textureReady.Load() {
		return false
	}
	p.mu.Lock()
	img := p.image
	p.mu.Unlock()
	if !img.Animated() {
		return false
	}
	return img.Advance(&p.anim, elapsedNs)
}

// RefreshTexture uploads the current animation frame.
func (p *Pipeline) RefreshTexture() {
	if !p.textureReady.Load() || p.texture == nil {
		return
	}
	p.mu.Lock()
	img := p.image
	p.mu.Unlock()
	frame := img.FrameAt(p.anim)
	if frame == nil {
		return
	}

	graphics.Scope(p.dev, func() {
		if err := p.dev.UpdateTexture(p.texture, frame); err != nil {
			p.logger.Warn("failed to update texture", "file", img.Path, "error", err)
		}
	})
}

// Restart rewinds an animated image to its first frame and refreshes the
// texture. It reports false, doing nothing, for still or unloaded images.
func (p *Pipeline) Restart() bool {
	if !p.textureReady.Load() || !p.Animated() {
		return false
	}
	p.anim.Reset()
	p.RefreshTexture()
	return true
}

// CheckReload advances the hot-reload clock. While showing, the file is
// re-stat'ed once per second of accumulated time; true means it changed
// and the caller should Load again.
func (p *Pipeline) CheckReload(seconds float64, showing bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return false
	}
	return p.watcher.Advance(time.Duration(seconds*float64(time.Second)), showing)
}

// SetReloadInterval overrides the hot-reload polling interval.
func (p *Pipeline) SetReloadInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
	p.watcher.SetInterval(d)
}

// MemoryUsage returns the bytes held by decoded frames.
func (p *Pipeline) MemoryUsage() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.image.MemoryUsage()
}

// Size returns the decoded image size, or 0x0.
func (p *Pipeline) Size() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.image == nil {
		return 0, 0
	}
	return p.image.Width, p.image.Height
}
