package geom

import "math"

// worldUp is the +Z axis of the local east/north/up frame.
var worldUp = Vec3{Z: 1}

// Pose is a camera position plus an orthonormal viewing basis.
type Pose struct {
	Position Vec3 `json:"position"`
	Forward  Vec3 `json:"forward"`
	Up       Vec3 `json:"up"`
	Right    Vec3 `json:"right"`
}

// LookAt builds a pose at eye looking toward at. up is a hint and need
// not be orthogonal to the view direction; it defaults to world up when
// zero or parallel to the view direction.
func LookAt(eye, at, up Vec3) Pose {
	fwd := at.Sub(eye).Norm()
	if fwd.IsZero() {
		fwd = Vec3{Y: 1}
	}
	if up.IsZero() {
		up = worldUp
	}
	right := fwd.Cross(up)
	if right.Len() < 1e-9 {
		// View direction parallel to up. Any perpendicular works.
		right = fwd.Cross(Vec3{X: 1})
		if right.Len() < 1e-9 {
			right = fwd.Cross(Vec3{Y: 1})
		}
	}
	right = right.Norm()
	return Pose{
		Position: eye,
		Forward:  fwd,
		Up:       right.Cross(fwd).Norm(),
		Right:    right,
	}
}

// PanTilt builds a pose for a pan-tilt head at position. Pan is degrees
// clockwise from north (+Y), tilt is degrees above the horizon. Tilt is
// limited to ±89 degrees to keep the basis well conditioned.
func PanTilt(position Vec3, panDeg, tiltDeg float64) Pose {
	if tiltDeg > 89 {
		tiltDeg = 89
	} else if tiltDeg < -89 {
		tiltDeg = -89
	}
	pan := DegToRad(panDeg)
	tilt := DegToRad(tiltDeg)
	fwd := Vec3{
		X: math.Sin(pan) * math.Cos(tilt),
		Y: math.Cos(pan) * math.Cos(tilt),
		Z: math.Sin(tilt),
	}
	return LookAt(position, position.Add(fwd), worldUp)
}

// PanTiltAngles recovers the pan and tilt angles in degrees from the
// pose's forward vector. Inverse of PanTilt for in-range tilts.
func (p Pose) PanTiltAngles() (panDeg, tiltDeg float64) {
	panDeg = RadToDeg(math.Atan2(p.Forward.X, p.Forward.Y))
	tiltDeg = RadToDeg(math.Asin(clamp(p.Forward.Z, -1, 1)))
	return panDeg, tiltDeg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
