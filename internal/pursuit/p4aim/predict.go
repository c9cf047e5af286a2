// Package p4aim holds the per-tick aim filters: velocity prediction,
// exponential smoothing, and the operator model that keeps footage
// looking hand-operated.
package p4aim

import (
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
)

// PredictParams control the linear lookahead.
type PredictParams struct {
	Enabled   bool
	Strength  float64       // scales Lookahead; 0 behaves like disabled
	Lookahead time.Duration // base lookahead, typically 100ms
}

// Predict fills t.PredictedPos and t.PredictedScreen by extrapolating
// the target along its velocity. With prediction disabled the
// predicted position is the measured position, bit for bit. A target
// without velocity predicts to its measured position; that is not an
// error, the feed simply had nothing better.
//
// When the extrapolated point falls outside the valid projection range
// the predicted screen position stays at the measured one so the drive
// never chases an unprojectable point.
func Predict(t *pursuit.Target, cam pursuit.CameraState, p PredictParams) {
	t.PredictedPos = t.Pos
	t.PredictedScreen = t.Screen
	if !p.Enabled || p.Strength <= 0 || t.Vel.IsZero() || !t.Vel.Finite() {
		return
	}

	ahead := p.Lookahead.Seconds() * p.Strength
	t.PredictedPos = t.Pos.Add(t.Vel.Scale(ahead))
	if screen, ok := cam.Project(t.PredictedPos); ok {
		t.PredictedScreen = screen
	}
}
