package main

import (
	"github.com/gdamore/tcell/v2"

	"github.com/richinsley/goshadergaze/gaze"
)

const trailLength = 24

// trail keeps the most recent gaze cells, oldest first.
type trail struct {
	points []point
}

type point struct {
	x, y int
}

func (t *trail) push(p point) {
	if n := len(t.points); n > 0 && t.points[n-1] == p {
		return
	}
	t.points = append(t.points, p)
	if len(t.points) > trailLength {
		t.points = t.points[len(t.points)-trailLength:]
	}
}

func (t *trail) clear() { t.points = t.points[:0] }

// cellFor maps a normalized sample into a w x h plot area. Samples outside
// [0,1] and NoSignal have no cell.
func cellFor(s gaze.Sample, w, h int) (point, bool) {
	if s.IsNoSignal() || !s.Finite() || w <= 0 || h <= 0 {
		return point{}, false
	}
	if s.X < 0 || s.X > 1 || s.Y < 0 || s.Y > 1 {
		return point{}, false
	}
	x := int(s.X * float32(w))
	y := int(s.Y * float32(h))
	if x == w {
		x--
	}
	if y == h {
		y--
	}
	return point{x, y}, true
}

// trailColor fades older trail entries towards the background.
func trailColor(i, n int) tcell.Color {
	if n <= 1 {
		return tcell.ColorGreen
	}
	level := int32(64 + 191*i/(n-1))
	return tcell.NewRGBColor(0, level, level/2)
}
