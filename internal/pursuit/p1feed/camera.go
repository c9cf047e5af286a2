package p1feed

import (
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// StaticCamera serves a fixed camera state for installations without a
// feedback channel from the head: the mount position and boresight are
// surveyed once and configured, and slews are assumed small enough not
// to move the modelled pose. Dev mode uses the simulator's mount model
// instead.
type StaticCamera struct {
	state pursuit.CameraState
}

// NewStaticCamera builds a provider from a surveyed mount position and
// boresight. FOV is clamped to the supported range, which is open at
// both ends; a zero frame size defaults to 1920x1080.
func NewStaticCamera(position geom.Vec3, panDeg, tiltDeg, fovDeg float64, width, height int) *StaticCamera {
	if fovDeg <= pursuit.MinCameraFOVDeg {
		fovDeg = pursuit.MinCameraFOVDeg + 1
	}
	if fovDeg >= pursuit.MaxCameraFOVDeg {
		fovDeg = pursuit.MaxCameraFOVDeg - 1
	}
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	return &StaticCamera{
		state: pursuit.CameraState{
			Pose:   geom.PanTilt(position, panDeg, tiltDeg),
			FOVDeg: fovDeg,
			Width:  width,
			Height: height,
		},
	}
}

// Camera implements pursuit.CameraProvider.
func (c *StaticCamera) Camera() (pursuit.CameraState, error) {
	return c.state, nil
}
