package sim

import (
	"math"
	"sync"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// MountConfig places the simulated head. Zero FOV and frame size pick
// the defaults below.
type MountConfig struct {
	Position geom.Vec3
	PanDeg   float64
	TiltDeg  float64
	FOVDeg   float64
	Width    int
	Height   int
}

const (
	defaultFOVDeg = 60.0
	defaultWidth  = 1920
	defaultHeight = 1080

	tiltLimitDeg = 89.0
)

// MountModel is a simulated pan-tilt head. It accepts the same
// screen-space slews a real drive does and integrates them into pan
// and tilt angles through the camera's focal length, so the camera it
// reports swings exactly as far as the commanded pixels imply.
//
// It implements both pursuit.DriveSink and pursuit.CameraProvider.
type MountModel struct {
	mu       sync.Mutex
	pos      geom.Vec3
	panDeg   float64
	tiltDeg  float64
	fovDeg   float64
	width    int
	height   int
	moves    uint64
	triggers uint64
}

// NewMountModel builds a MountModel from cfg. The FOV is clamped
// strictly inside the supported range so the reported camera state is
// always projectable.
func NewMountModel(cfg MountConfig) *MountModel {
	if cfg.FOVDeg <= 0 {
		cfg.FOVDeg = defaultFOVDeg
	}
	if cfg.FOVDeg <= pursuit.MinCameraFOVDeg {
		cfg.FOVDeg = pursuit.MinCameraFOVDeg + 1
	}
	if cfg.FOVDeg >= pursuit.MaxCameraFOVDeg {
		cfg.FOVDeg = pursuit.MaxCameraFOVDeg - 1
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = defaultHeight
	}
	return &MountModel{
		pos:     cfg.Position,
		panDeg:  wrap180(cfg.PanDeg),
		tiltDeg: clamp(cfg.TiltDeg, -tiltLimitDeg, tiltLimitDeg),
		fovDeg:  cfg.FOVDeg,
		width:   cfg.Width,
		height:  cfg.Height,
	}
}

// MoveBy implements pursuit.DriveSink. Screen right is pan right,
// screen down is tilt down.
func (m *MountModel) MoveBy(dx, dy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := geom.FocalPx(m.fovDeg, m.height)
	if f <= 0 {
		return
	}
	m.panDeg = wrap180(m.panDeg + geom.RadToDeg(math.Atan2(dx, f)))
	m.tiltDeg = clamp(m.tiltDeg-geom.RadToDeg(math.Atan2(dy, f)), -tiltLimitDeg, tiltLimitDeg)
	m.moves++
}

// Trigger implements pursuit.DriveSink.
func (m *MountModel) Trigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers++
}

// Camera implements pursuit.CameraProvider.
func (m *MountModel) Camera() (pursuit.CameraState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pursuit.CameraState{
		Pose:   geom.PanTilt(m.pos, m.panDeg, m.tiltDeg),
		FOVDeg: m.fovDeg,
		Width:  m.width,
		Height: m.height,
	}, nil
}

// Pose returns the current pose. Its signature matches what
// World.SetBoresight expects.
func (m *MountModel) Pose() (geom.Pose, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return geom.PanTilt(m.pos, m.panDeg, m.tiltDeg), true
}

// Angles returns the current pan and tilt in degrees.
func (m *MountModel) Angles() (panDeg, tiltDeg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panDeg, m.tiltDeg
}

// Moves reports how many slews have been applied.
func (m *MountModel) Moves() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moves
}

// Triggers reports how many shutter releases have fired.
func (m *MountModel) Triggers() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggers
}

// wrap180 folds an angle into [-180, 180).
func wrap180(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}
