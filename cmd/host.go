package main

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// viewerHost is the stand-in compositor the viewer runs a source under.
type viewerHost struct {
	logger    *slog.Logger
	showing   atomic.Bool
	frameTime atomic.Uint64

	mu      sync.Mutex
	missing string
	repair  func(newPath string)
}

func newViewerHost(logger *slog.Logger) *viewerHost {
	h := &viewerHost{logger: logger}
	h.showing.Store(true)
	return h
}

func (h *viewerHost) Showing() bool     { return h.showing.Load() }
func (h *viewerHost) FrameTime() uint64 { return h.frameTime.Load() }

func (h *viewerHost) ReportMissingFile(path string, repair func(newPath string)) {
	h.logger.Warn("image file is missing; drop a replacement on the window", "file", path)
	h.mu.Lock()
	h.missing, h.repair = path, repair
	h.mu.Unlock()
}

// takeRepair returns the pending repair for the last missing file, if any.
func (h *viewerHost) takeRepair() (string, func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	path, repair := h.missing, h.repair
	h.missing, h.repair = "", nil
	return path, repair
}

// toggle flips visibility and reports the new state.
func (h *viewerHost) toggle() bool {
	for {
		old := h.showing.Load()
		if h.showing.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
