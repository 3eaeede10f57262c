package main

import (
	"fmt"
	"math"
	"time"

	"github.com/richinsley/goshadergaze/gaze"
)

// Path produces the simulated gaze position at time t since start.
type Path func(t time.Duration) gaze.Sample

// ParsePath returns the named path. radius is in normalized screen units.
func ParsePath(name string, period time.Duration, radius float64) (Path, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid period %s", period)
	}
	phase := func(t time.Duration) float64 {
		return 2 * math.Pi * float64(t%period) / float64(period)
	}

	switch name {
	case "circle":
		return func(t time.Duration) gaze.Sample {
			a := phase(t)
			return gaze.Sample{X: float32(0.5 + radius*math.Cos(a)), Y: float32(0.5 + radius*math.Sin(a))}
		}, nil
	case "lissajous":
		return func(t time.Duration) gaze.Sample {
			a := phase(t)
			return gaze.Sample{X: float32(0.5 + radius*math.Sin(3*a)), Y: float32(0.5 + radius*math.Sin(2*a))}
		}, nil
	case "center":
		return func(time.Duration) gaze.Sample {
			return gaze.Sample{X: 0.5, Y: 0.5}
		}, nil
	case "saccade":
		// jumps between the corners of a square, the way fixations do
		corners := []gaze.Sample{
			{X: float32(0.5 - radius), Y: float32(0.5 - radius)},
			{X: float32(0.5 + radius), Y: float32(0.5 - radius)},
			{X: float32(0.5 + radius), Y: float32(0.5 + radius)},
			{X: float32(0.5 - radius), Y: float32(0.5 + radius)},
		}
		return func(t time.Duration) gaze.Sample {
			return corners[int(t/(period/4))%len(corners)]
		}, nil
	}
	return nil, fmt.Errorf("unknown path %q", name)
}
