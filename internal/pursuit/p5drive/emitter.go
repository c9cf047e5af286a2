// Package p5drive converts aim-point changes into clamped slew steps
// for the mount and owns the auto-capture trigger.
package p5drive

import (
	"sync/atomic"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// EmitParams are the drive inputs from the tuning snapshot.
type EmitParams struct {
	Sensitivity     float64 // slew gain in [0,1]
	AutoCapture     bool
	CaptureRadiusPx float64
	CaptureCooldown time.Duration
}

// Emitter dispatches slew steps and shutter triggers to the sink. A
// nil sink is allowed; steps are then computed but not dispatched,
// which the simulator-free tests rely on.
type Emitter struct {
	sink pursuit.DriveSink

	lastCapture time.Time

	moves    atomic.Uint64
	captures atomic.Uint64
}

// New returns an emitter driving sink.
func New(sink pursuit.DriveSink) *Emitter {
	return &Emitter{sink: sink}
}

// Step dispatches the slew from the previous aim point to the new one,
// scaled by sensitivity and clamped to MaxStepPerTick with direction
// preserved. A zero delta is a no-op, not an error. Returns the delta
// actually emitted (zero when nothing was dispatched).
func (e *Emitter) Step(from, to geom.Vec2, p EmitParams) geom.Vec2 {
	delta := to.Sub(from).Scale(p.Sensitivity).ClampLen(pursuit.MaxStepPerTick)
	if delta.X == 0 && delta.Y == 0 {
		return geom.Vec2{}
	}
	if e.sink != nil {
		e.sink.MoveBy(delta.X, delta.Y)
	}
	e.moves.Add(1)
	return delta
}

// MaybeCapture fires the shutter when auto-capture is on, the target is
// within the capture radius of frame centre, and the cooldown has
// elapsed. Independent of the slew; a capture can fire on a tick with
// no movement.
func (e *Emitter) MaybeCapture(now time.Time, target *pursuit.Target, cam pursuit.CameraState, p EmitParams) bool {
	if !p.AutoCapture || target == nil {
		return false
	}
	if geom.ScreenCenterDist(target.Screen, cam.Width, cam.Height) > p.CaptureRadiusPx {
		return false
	}
	if !e.lastCapture.IsZero() && now.Sub(e.lastCapture) < p.CaptureCooldown {
		return false
	}
	if e.sink != nil {
		e.sink.Trigger()
	}
	e.lastCapture = now
	e.captures.Add(1)
	return true
}

// Capture fires the shutter unconditionally. Manual triggers bypass
// the auto-capture gate but still arm the cooldown so an automatic
// capture does not double-fire on the next tick.
func (e *Emitter) Capture(now time.Time) {
	if e.sink != nil {
		e.sink.Trigger()
	}
	e.lastCapture = now
	e.captures.Add(1)
}

// Reset clears the capture cooldown. Used when a session restarts.
func (e *Emitter) Reset() { e.lastCapture = time.Time{} }

// Moves returns how many slew steps have been dispatched.
func (e *Emitter) Moves() uint64 { return e.moves.Load() }

// Captures returns how many shutter triggers have fired.
func (e *Emitter) Captures() uint64 { return e.captures.Load() }
