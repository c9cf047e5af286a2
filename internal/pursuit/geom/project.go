package geom

import "math"

// nearClip is the minimum forward depth accepted by Project. Points
// closer than this along the view axis produce unusable screen
// coordinates from the perspective divide.
const nearClip = 0.01

// Project maps a world point onto the screen through a pinhole model.
// fovDeg is the vertical field of view and w, h the frame size in
// pixels. The second return is false when the point is behind the
// camera or inside the near clip.
func Project(pose Pose, fovDeg float64, w, h int, world Vec3) (Vec2, bool) {
	d := world.Sub(pose.Position)
	depth := d.Dot(pose.Forward)
	if depth < nearClip {
		return Vec2{}, false
	}
	f := FocalPx(fovDeg, h)
	if f <= 0 || math.IsInf(f, 0) {
		return Vec2{}, false
	}
	sx := float64(w)/2 + d.Dot(pose.Right)*f/depth
	sy := float64(h)/2 - d.Dot(pose.Up)*f/depth
	if math.IsNaN(sx) || math.IsNaN(sy) {
		return Vec2{}, false
	}
	return Vec2{X: sx, Y: sy}, true
}

// FocalPx returns the focal length in pixels for a vertical field of
// view and frame height. Degenerate FOVs return 0.
func FocalPx(fovDeg float64, h int) float64 {
	if fovDeg <= 0 || fovDeg >= 180 || h <= 0 {
		return 0
	}
	return float64(h) / 2 / math.Tan(DegToRad(fovDeg)/2)
}

// ScreenCenter returns the centre of a w by h frame.
func ScreenCenter(w, h int) Vec2 {
	return Vec2{X: float64(w) / 2, Y: float64(h) / 2}
}

// ScreenCenterDist returns the pixel distance from pt to the centre of
// a w by h frame.
func ScreenCenterDist(pt Vec2, w, h int) float64 {
	return pt.Dist(ScreenCenter(w, h))
}

// OnScreen reports whether pt lies within the frame bounds, inclusive.
func OnScreen(pt Vec2, w, h int) bool {
	return pt.X >= 0 && pt.X <= float64(w) && pt.Y >= 0 && pt.Y <= float64(h)
}
