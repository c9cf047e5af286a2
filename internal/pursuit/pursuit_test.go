package pursuit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

func testCamera() CameraState {
	return CameraState{
		Pose:   geom.LookAt(geom.Vec3{}, geom.Vec3{Z: 1}, geom.Vec3{Y: 1}),
		FOVDeg: 90,
		Width:  1920,
		Height: 1080,
	}
}

func TestIDPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewTargetID(), "trk_"))
	assert.True(t, strings.HasPrefix(NewSessionID(), "ses_"))
	assert.NotEqual(t, NewTargetID(), NewTargetID())
}

func TestCameraProjectRejectsInsideMinRange(t *testing.T) {
	cam := testCamera()

	// Ahead of the camera but closer than the minimum tracking range.
	_, ok := cam.Project(geom.Vec3{Z: 0.5})
	assert.False(t, ok)

	pt, ok := cam.Project(geom.Vec3{Z: 50})
	require.True(t, ok)
	assert.InDelta(t, 960.0, pt.X, 1e-9)
	assert.InDelta(t, 540.0, pt.Y, 1e-9)
}

func TestCameraValid(t *testing.T) {
	cam := testCamera()
	assert.True(t, cam.Valid())

	bad := cam
	bad.Width = 0
	assert.False(t, bad.Valid())

	bad = cam
	bad.FOVDeg = 5
	assert.False(t, bad.Valid())

	bad = cam
	bad.Pose.Forward = geom.Vec3{}
	assert.False(t, bad.Valid())
}

func TestHistoryCollapsesSameID(t *testing.T) {
	h := NewHistory(10)
	h.Add(Target{ID: "trk_a", Priority: 1})
	h.Add(Target{ID: "trk_a", Priority: 2})
	h.Add(Target{ID: "trk_b", Priority: 3})

	require.Equal(t, 2, h.Len())
	got := h.Recent()
	assert.Equal(t, "trk_a", got[0].ID)
	assert.Equal(t, 2.0, got[0].Priority) // updated in place
	assert.Equal(t, "trk_b", got[1].ID)
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		h.Add(Target{ID: id, LastSeen: time.Now()})
	}
	require.Equal(t, 3, h.Len())
	got := h.Recent()
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "e", got[2].ID)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "e", last.ID)
}

func TestHistoryRecentIsACopy(t *testing.T) {
	h := NewHistory(5)
	h.Add(Target{ID: "a"})
	got := h.Recent()
	got[0].ID = "mutated"

	again := h.Recent()
	assert.Equal(t, "a", again[0].ID)
}
