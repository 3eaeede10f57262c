// Package gaze turns a live gaze-tracking signal into one smoothed overlay
// coordinate per tick.
//
// A Provider owns exactly one Backend at a time. The device backend subscribes
// to a locally attached tracker through a DeviceAPI; the network backend
// receives [x, y] float32 pairs over UDP from a telemetry server and keeps the
// server informed of its address with periodic liveness datagrams.
package gaze

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Sample is a gaze position in normalized overlay space, [0,1]x[0,1].
type Sample struct {
	X, Y float32
}

// NoSignal means "do not draw". It is the only Sample with a NaN component.
var NoSignal = Sample{X: float32(math.NaN()), Y: float32(math.NaN())}

// IsNoSignal reports whether s carries no position.
func (s Sample) IsNoSignal() bool {
	return s.X != s.X || s.Y != s.Y
}

// Finite reports whether both coordinates are finite numbers.
func (s Sample) Finite() bool {
	return !math.IsNaN(float64(s.X)) && !math.IsInf(float64(s.X), 0) &&
		!math.IsNaN(float64(s.Y)) && !math.IsInf(float64(s.Y), 0)
}

func (s Sample) String() string {
	if s.IsNoSignal() {
		return "no-signal"
	}
	return fmt.Sprintf("(%.4f, %.4f)", s.X, s.Y)
}

// Smoothing weights of the exponential moving average.
const (
	NewWeight   = 0.2
	PriorWeight = 0.8
)

// Smooth folds next into prior. A prior of NoSignal is replaced verbatim.
func Smooth(prior, next Sample) Sample {
	if prior.IsNoSignal() {
		return next
	}
	return Sample{
		X: NewWeight*next.X + PriorWeight*prior.X,
		Y: NewWeight*next.Y + PriorWeight*prior.Y,
	}
}

// sampleCell stores a Sample as two float32 bit patterns in one word so the
// render goroutine can read it without taking a lock.
type sampleCell struct {
	v atomic.Uint64
}

func pack(s Sample) uint64 {
	return uint64(math.Float32bits(s.X))<<32 | uint64(math.Float32bits(s.Y))
}

func unpack(v uint64) Sample {
	return Sample{X: math.Float32frombits(uint32(v >> 32)), Y: math.Float32frombits(uint32(v))}
}

func newSampleCell() *sampleCell {
	c := &sampleCell{}
	c.Store(NoSignal)
	return c
}

func (c *sampleCell) Load() Sample   { return unpack(c.v.Load()) }
func (c *sampleCell) Store(s Sample) { c.v.Store(pack(s)) }
