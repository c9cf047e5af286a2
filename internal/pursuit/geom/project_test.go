package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPose() Pose {
	// Camera at origin looking along +Z with +Y as up, the convention
	// used by the acquisition scenarios.
	return LookAt(Vec3{}, Vec3{Z: 1}, Vec3{Y: 1})
}

func TestLookAtBasisOrthonormal(t *testing.T) {
	p := LookAt(Vec3{X: 2, Y: 3, Z: 1}, Vec3{X: 10, Y: -4, Z: 3}, Vec3{Z: 1})

	assert.InDelta(t, 1.0, p.Forward.Len(), 1e-12)
	assert.InDelta(t, 1.0, p.Up.Len(), 1e-12)
	assert.InDelta(t, 1.0, p.Right.Len(), 1e-12)
	assert.InDelta(t, 0.0, p.Forward.Dot(p.Up), 1e-12)
	assert.InDelta(t, 0.0, p.Forward.Dot(p.Right), 1e-12)
	assert.InDelta(t, 0.0, p.Up.Dot(p.Right), 1e-12)
}

func TestPanTiltRoundTrip(t *testing.T) {
	for _, tc := range []struct{ pan, tilt float64 }{
		{0, 0}, {45, 10}, {-120, -30}, {179, 60}, {90, 0},
	} {
		p := PanTilt(Vec3{}, tc.pan, tc.tilt)
		pan, tilt := p.PanTiltAngles()
		assert.InDelta(t, tc.pan, pan, 1e-9, "pan for %+v", tc)
		assert.InDelta(t, tc.tilt, tilt, 1e-9, "tilt for %+v", tc)
	}
}

func TestProjectCentersForwardPoint(t *testing.T) {
	pt, ok := Project(testPose(), 90, 1920, 1080, Vec3{Z: 50})
	require.True(t, ok)
	assert.InDelta(t, 960.0, pt.X, 1e-9)
	assert.InDelta(t, 540.0, pt.Y, 1e-9)
}

func TestProjectRejectsBehindCamera(t *testing.T) {
	_, ok := Project(testPose(), 90, 1920, 1080, Vec3{Z: -10})
	assert.False(t, ok)

	// On the camera plane: inside the near clip.
	_, ok = Project(testPose(), 90, 1920, 1080, Vec3{X: 5})
	assert.False(t, ok)
}

func TestProjectLateralOffsetShrinksWithDepth(t *testing.T) {
	// A fixed lateral offset must move toward the frame centre as depth
	// grows. This is the continuity property the FOV gate relies on.
	pose := testPose()
	prev := -1.0
	for _, depth := range []float64{2, 5, 10, 50, 200, 1000} {
		pt, ok := Project(pose, 90, 1920, 1080, Vec3{X: 3, Z: depth})
		require.True(t, ok, "depth %v", depth)
		d := ScreenCenterDist(pt, 1920, 1080)
		if prev >= 0 {
			assert.Less(t, d, prev, "depth %v", depth)
		}
		prev = d
	}
}

func TestProjectSameRaySamePixel(t *testing.T) {
	pose := testPose()
	dir := Vec3{X: 1, Y: 0.5, Z: 4}.Norm()
	first, ok := Project(pose, 90, 1920, 1080, dir.Scale(5))
	require.True(t, ok)
	for _, r := range []float64{20, 100, 500} {
		pt, ok := Project(pose, 90, 1920, 1080, dir.Scale(r))
		require.True(t, ok)
		assert.InDelta(t, first.X, pt.X, 1e-6)
		assert.InDelta(t, first.Y, pt.Y, 1e-6)
	}
}

func TestFocalPx(t *testing.T) {
	// 90 degree vertical FOV: focal length equals half the frame height.
	assert.InDelta(t, 540.0, FocalPx(90, 1080), 1e-9)
	assert.Equal(t, 0.0, FocalPx(0, 1080))
	assert.Equal(t, 0.0, FocalPx(185, 1080))
}

func TestOnScreen(t *testing.T) {
	assert.True(t, OnScreen(Vec2{X: 0, Y: 0}, 100, 100))
	assert.True(t, OnScreen(Vec2{X: 100, Y: 100}, 100, 100))
	assert.False(t, OnScreen(Vec2{X: -1, Y: 50}, 100, 100))
	assert.False(t, OnScreen(Vec2{X: 50, Y: 101}, 100, 100))
}
