package p4aim

import (
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// Standard Perlin parameters, matching the usual smooth-noise setup.
const (
	perlinAlpha = 2.0
	perlinBeta  = 2.0
	perlinN     = int32(3)
)

// OperatorParams control the hand-operated character of the output.
type OperatorParams struct {
	Enabled  bool
	JitterPx float64       // uniform per-axis jitter amplitude
	Reaction time.Duration // hold after acquiring a new target
	DriftPx  float64       // Perlin drift amplitude, 0 disables
	DriftHz  float64       // Perlin drift frequency
}

// Operator perturbs the smoothed aim point to avoid the perfectly
// linear motion a servo loop produces: bounded uniform jitter, a slow
// Perlin drift, and a reaction hold after each new acquisition. The
// hold is a wall-clock deadline, never a sleep; the engine simply
// withholds the slew until it passes. Seeded, so a recorded session
// replays identically.
type Operator struct {
	rng    *rand.Rand
	driftX *perlin.Perlin
	driftY *perlin.Perlin
	epoch  time.Time

	targetID  string
	holdUntil time.Time
}

// NewOperator returns an operator seeded for reproducible sessions.
// epoch anchors the drift phase; the engine passes its start time.
func NewOperator(seed int64, epoch time.Time) *Operator {
	return &Operator{
		rng:    rand.New(rand.NewSource(seed)),
		driftX: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed),
		driftY: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed+1), // offset seed for Y
		epoch:  epoch,
	}
}

// Observe tracks the current target ID and starts a reaction hold when
// it changes to a new non-empty target. Losing the target (empty ID)
// clears the hold.
func (o *Operator) Observe(now time.Time, targetID string, p OperatorParams) {
	if targetID == o.targetID {
		return
	}
	o.targetID = targetID
	if targetID == "" {
		o.holdUntil = time.Time{}
		return
	}
	if p.Enabled && p.Reaction > 0 {
		o.holdUntil = now.Add(p.Reaction)
	} else {
		o.holdUntil = time.Time{}
	}
}

// Holding reports whether slews are still withheld for the current
// acquisition.
func (o *Operator) Holding(now time.Time) bool {
	return !o.holdUntil.IsZero() && now.Before(o.holdUntil)
}

// HoldUntil returns the active reaction deadline, zero when none.
func (o *Operator) HoldUntil() time.Time { return o.holdUntil }

// Perturb applies jitter and drift to the aim point. The returned
// offset is what was added, recorded into the aim state for
// diagnostics. Disabled or zero-amplitude params pass the aim through
// untouched.
func (o *Operator) Perturb(now time.Time, aim geom.Vec2, p OperatorParams) (geom.Vec2, geom.Vec2) {
	if !p.Enabled {
		return aim, geom.Vec2{}
	}
	var off geom.Vec2
	if p.JitterPx > 0 {
		off.X += (o.rng.Float64()*2 - 1) * p.JitterPx
		off.Y += (o.rng.Float64()*2 - 1) * p.JitterPx
	}
	if p.DriftPx > 0 && p.DriftHz > 0 {
		t := now.Sub(o.epoch).Seconds() * p.DriftHz
		off.X += o.driftX.Noise1D(t) * p.DriftPx
		off.Y += o.driftY.Noise1D(t) * p.DriftPx
	}
	return aim.Add(off), off
}
