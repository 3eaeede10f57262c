package imagefile

import "image"

// Animation is the playback position within an animated Image.
type Animation struct {
	Frame int
	Loop  int
	// Time is the number of nanoseconds spent in the current frame.
	Time uint64
}

// Reset rewinds to the first frame of the first loop.
func (a *Animation) Reset() {
	*a = Animation{}
}

func (img *Image) frameDelayNs(i int) uint64 {
	d := img.Delays[i]
	if d <= 0 {
		d = defaultDelay
	}
	return uint64(d)
}

// Advance moves a forward by elapsedNs and reports whether the visible frame
// changed. Once a finite loop count is exhausted the last frame is held.
func (img *Image) Advance(a *Animation, elapsedNs uint64) bool {
	if !img.Animated() {
		return false
	}

	loops := img.Loops
	if loops != 0 && a.Loop >= loops {
		return false
	}

	next := a.Frame
	a.Time += elapsedNs
	for {
		t := img.frameDelayNs(next)
		if a.Time <= t {
			break
		}
		a.Time -= t

		next++
		if next < len(img.Frames) {
			continue
		}
		if loops == 0 {
			next = 0
			continue
		}
		a.Loop++
		if a.Loop < loops {
			next = 0
			continue
		}
		next--
		break
	}

	changed := next != a.Frame
	a.Frame = next
	return changed
}

// FrameAt returns the composited frame shown at a.
func (img *Image) FrameAt(a Animation) *image.RGBA {
	if img == nil || len(img.Frames) == 0 {
		return nil
	}
	if a.Frame < 0 || a.Frame >= len(img.Frames) {
		return img.Frames[0]
	}
	return img.Frames[a.Frame]
}
