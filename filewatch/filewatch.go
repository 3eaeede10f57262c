// Package filewatch detects external edits to a file by polling its
// modification time on a fixed interval of accumulated tick time.
package filewatch

import (
	"os"
	"time"
)

// DefaultInterval is how much tick time must pass between two stats.
const DefaultInterval = time.Second

// ModTime returns the file's modification time, or the zero time when the
// file cannot be stat'ed.
func ModTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}

// Watcher remembers the modification time recorded at load and compares it
// against the file once per interval. It is driven by the caller's clock, not
// by a timer, so it only advances while the caller ticks it.
type Watcher struct {
	path     string
	interval time.Duration
	elapsed  time.Duration
	recorded time.Time

	// stat is replaceable in tests.
	stat func(string) time.Time
}

// New creates a watcher for path with DefaultInterval.
func New(path string) *Watcher {
	return &Watcher{path: path, interval: DefaultInterval, stat: ModTime}
}

// SetInterval overrides the polling interval.
func (w *Watcher) SetInterval(d time.Duration) {
	w.interval = d
}

// Path returns the watched path.
func (w *Watcher) Path() string { return w.path }

// Record stores the modification time observed when the file was loaded and
// returns it.
func (w *Watcher) Record() time.Time {
	w.recorded = w.stat(w.path)
	return w.recorded
}

// Recorded returns the last recorded modification time.
func (w *Watcher) Recorded() time.Time { return w.recorded }

// ResetElapsed restarts the interval countdown.
func (w *Watcher) ResetElapsed() {
	w.elapsed = 0
}

// Advance adds d to the elapsed time. When poll is true and at least one
// interval has elapsed, the file is stat'ed, the countdown restarts, and
// changed reports whether the modification time differs from the recorded one.
func (w *Watcher) Advance(d time.Duration, poll bool) (changed bool) {
	w.elapsed += d
	if !poll || w.elapsed < w.interval {
		return false
	}
	w.elapsed = 0
	return !w.stat(w.path).Equal(w.recorded)
}
