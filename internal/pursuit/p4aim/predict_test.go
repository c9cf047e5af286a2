package p4aim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

func aimCam() pursuit.CameraState {
	return pursuit.CameraState{
		Pose:   geom.LookAt(geom.Vec3{}, geom.Vec3{Z: 1}, geom.Vec3{Y: 1}),
		FOVDeg: 90,
		Width:  1920,
		Height: 1080,
	}
}

func TestPredictDisabledIsIdentity(t *testing.T) {
	tgt := pursuit.Target{
		Pos:    geom.Vec3{X: 3, Y: 7, Z: 100},
		Vel:    geom.Vec3{X: 25, Y: -4, Z: 1},
		Screen: geom.Vec2{X: 900, Y: 500},
	}
	Predict(&tgt, aimCam(), PredictParams{Enabled: false, Strength: 1, Lookahead: 100 * time.Millisecond})

	// Identity means bit for bit, not merely close.
	assert.Equal(t, tgt.Pos, tgt.PredictedPos)
	assert.Equal(t, tgt.Screen, tgt.PredictedScreen)
}

func TestPredictZeroStrengthIsIdentity(t *testing.T) {
	tgt := pursuit.Target{
		Pos: geom.Vec3{Z: 100},
		Vel: geom.Vec3{X: 25},
	}
	Predict(&tgt, aimCam(), PredictParams{Enabled: true, Strength: 0, Lookahead: 100 * time.Millisecond})
	assert.Equal(t, tgt.Pos, tgt.PredictedPos)
}

func TestPredictZeroVelocityIsIdentity(t *testing.T) {
	tgt := pursuit.Target{
		Pos:    geom.Vec3{Z: 100},
		Screen: geom.Vec2{X: 960, Y: 540},
	}
	Predict(&tgt, aimCam(), PredictParams{Enabled: true, Strength: 1, Lookahead: 100 * time.Millisecond})
	assert.Equal(t, tgt.Pos, tgt.PredictedPos)
	assert.Equal(t, tgt.Screen, tgt.PredictedScreen)
}

func TestPredictNonFiniteVelocityIsIdentity(t *testing.T) {
	tgt := pursuit.Target{
		Pos: geom.Vec3{Z: 100},
		Vel: geom.Vec3{X: math.NaN()},
	}
	Predict(&tgt, aimCam(), PredictParams{Enabled: true, Strength: 1, Lookahead: 100 * time.Millisecond})
	assert.Equal(t, tgt.Pos, tgt.PredictedPos)
}

func TestPredictExtrapolatesAlongVelocity(t *testing.T) {
	cam := aimCam()
	tgt := pursuit.Target{
		Pos:    geom.Vec3{Z: 100},
		Vel:    geom.Vec3{X: 10},
		Screen: geom.Vec2{X: 960, Y: 540},
	}
	Predict(&tgt, cam, PredictParams{Enabled: true, Strength: 1, Lookahead: 100 * time.Millisecond})

	assert.InDelta(t, 1.0, tgt.PredictedPos.X, 1e-9)
	assert.InDelta(t, 0.0, tgt.PredictedPos.Y, 1e-9)
	assert.InDelta(t, 100.0, tgt.PredictedPos.Z, 1e-9)

	// The predicted screen point is the projection of the lead point.
	want, ok := cam.Project(tgt.PredictedPos)
	require.True(t, ok)
	assert.InDelta(t, want.X, tgt.PredictedScreen.X, 1e-9)
	assert.InDelta(t, want.Y, tgt.PredictedScreen.Y, 1e-9)
	assert.NotEqual(t, tgt.Screen, tgt.PredictedScreen)
}

func TestPredictStrengthScalesLookahead(t *testing.T) {
	tgt := pursuit.Target{Pos: geom.Vec3{Z: 100}, Vel: geom.Vec3{X: 10}}
	Predict(&tgt, aimCam(), PredictParams{Enabled: true, Strength: 2, Lookahead: 100 * time.Millisecond})
	assert.InDelta(t, 2.0, tgt.PredictedPos.X, 1e-9)
}

func TestPredictUnprojectableLeadKeepsMeasuredScreen(t *testing.T) {
	// The lead point ends up behind the camera; the screen aim must
	// not follow it there.
	tgt := pursuit.Target{
		Pos:    geom.Vec3{Z: 2},
		Vel:    geom.Vec3{Z: -100},
		Screen: geom.Vec2{X: 960, Y: 540},
	}
	Predict(&tgt, aimCam(), PredictParams{Enabled: true, Strength: 1, Lookahead: 100 * time.Millisecond})

	assert.InDelta(t, -8.0, tgt.PredictedPos.Z, 1e-9)
	assert.Equal(t, tgt.Screen, tgt.PredictedScreen)
}
