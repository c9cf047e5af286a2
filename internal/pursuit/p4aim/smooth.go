package p4aim

import "github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"

// Smoother low-pass filters the aim point across ticks so the head
// never jumps. It must be stepped exactly once per tick; the engine
// resets it to the frame centre whenever the selection clears.
type Smoother struct {
	cur    geom.Vec2
	active bool
}

// Reset returns the filter to the neutral aim point, the position the
// next Step blends away from.
func (s *Smoother) Reset(neutral geom.Vec2) {
	s.cur = neutral
	s.active = false
}

// Active reports whether the filter has stepped since the last reset.
func (s *Smoother) Active() bool { return s.active }

// Current returns the filter output from the last step (or the neutral
// point right after a reset).
func (s *Smoother) Current() geom.Vec2 { return s.cur }

// Step blends the aim point toward desired and returns the new aim.
// factor 0 snaps immediately; factor approaching 1 freezes the aim.
// Out-of-range factors clamp.
func (s *Smoother) Step(desired geom.Vec2, factor float64) geom.Vec2 {
	if factor < 0 {
		factor = 0
	} else if factor > 1 {
		factor = 1
	}
	s.cur = s.cur.Add(desired.Sub(s.cur).Scale(1 - factor))
	s.active = true
	return s.cur
}
