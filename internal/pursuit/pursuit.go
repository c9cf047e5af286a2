// Package pursuit defines the shared model for the tracking head: the
// sightings supplied by a detector feed, the targets derived from them,
// the camera state they are projected through, and the collaborator
// interfaces the engine drives. The pipeline stages live in the
// numbered subpackages (p1feed through p5drive) and are orchestrated by
// the pipeline package.
package pursuit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// Fixed pipeline limits. These are deliberately not tunable: they bound
// worst-case work per tick and worst-case slew regardless of config.
const (
	// MaxTargetsPerFrame caps the scanner output per scan cycle.
	MaxTargetsPerFrame = 20

	// MinTargetDistance is the closest range, in metres, that the head
	// will track. Projection inside this range is rejected to avoid the
	// divide-by-near-zero reticle jump.
	MinTargetDistance = 1.0

	// MaxStepPerTick caps the magnitude of a single slew step in
	// pixels. Oversized steps are rescaled, keeping direction.
	MaxStepPerTick = 50.0

	// TargetHistorySize bounds the recently-tracked ring kept for
	// continuity heuristics and the dashboard.
	TargetHistorySize = 50
)

// Camera field-of-view limits in degrees. Values outside clamp.
const (
	MinCameraFOVDeg = 10.0
	MaxCameraFOVDeg = 120.0
)

// Sighting is one raw detection from the feed. Sightings are transient:
// a fresh set arrives each tick with no identity carried between them.
type Sighting struct {
	Pos   geom.Vec3 `json:"p"`             // World position, metres
	Vel   geom.Vec3 `json:"v"`             // World velocity, m/s; zero when the feed has none
	Valid bool      `json:"valid"`         // False for detections the feed itself distrusts
	Class string    `json:"class"`         // Detector class tag ("drone", "bird", ...), may be empty
	Vis   *bool     `json:"vis,omitempty"` // Optional occlusion hint; nil when the feed has no opinion
}

// Target is a sighting that passed validity and field-of-view filtering
// and was scored for selection. Targets are plain values; identity
// across scans is the ID string, assigned by nearest-match association.
type Target struct {
	// Identity
	ID    string `json:"id"`
	Class string `json:"class,omitempty"`

	// Geometry
	Pos             geom.Vec3 `json:"pos"`
	Vel             geom.Vec3 `json:"vel"`
	Distance        float64   `json:"distance_m"` // World distance to the camera, always >= 0
	Screen          geom.Vec2 `json:"screen"`
	PredictedPos    geom.Vec3 `json:"predicted_pos"`
	PredictedScreen geom.Vec2 `json:"predicted_screen"`

	// Scoring
	Priority float64 `json:"priority"`
	Visible  bool    `json:"visible"`

	// Lifecycle
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Tracked   bool      `json:"tracked"` // True while this target is the current selection
}

// NewTargetID returns a fresh track identifier.
func NewTargetID() string {
	return fmt.Sprintf("trk_%s", uuid.NewString())
}

// NewSessionID returns a fresh recording session identifier.
func NewSessionID() string {
	return fmt.Sprintf("ses_%s", uuid.NewString())
}

// CameraState is a read-only snapshot of the head's optics for one
// tick: where it points, how wide it sees, and the frame it renders.
type CameraState struct {
	Pose   geom.Pose `json:"pose"`
	FOVDeg float64   `json:"fov_deg"` // Vertical field of view
	Width  int       `json:"width"`   // Frame width, px
	Height int       `json:"height"`  // Frame height, px
}

// Project maps a world point into the frame. It fails when the point is
// behind the camera, inside the near clip, or closer than
// MinTargetDistance in world range.
func (c CameraState) Project(world geom.Vec3) (geom.Vec2, bool) {
	if world.Sub(c.Pose.Position).Len() < MinTargetDistance {
		return geom.Vec2{}, false
	}
	return geom.Project(c.Pose, c.FOVDeg, c.Width, c.Height, world)
}

// Center returns the frame centre in pixels.
func (c CameraState) Center() geom.Vec2 {
	return geom.ScreenCenter(c.Width, c.Height)
}

// Valid reports whether the snapshot is usable for projection.
func (c CameraState) Valid() bool {
	return c.Width > 0 && c.Height > 0 &&
		c.FOVDeg > MinCameraFOVDeg && c.FOVDeg < MaxCameraFOVDeg &&
		c.Pose.Forward.Finite() && !c.Pose.Forward.IsZero()
}

// AimState is the engine's pointing state. It is owned by the tick path
// and mutated at most once per tick; external readers get copies.
type AimState struct {
	Aim        geom.Vec2 `json:"aim"`         // Commanded aim point, px; advances by emitted slews
	AimVel     geom.Vec2 `json:"aim_vel"`     // Smoothed aim movement over the last tick, px
	LastDelta  geom.Vec2 `json:"last_delta"`  // Last emitted slew step, px
	Jitter     geom.Vec2 `json:"jitter"`      // Operator jitter applied last tick, px
	TargetID   string    `json:"target_id"`   // Current selection, empty when idle
	AcquiredAt time.Time `json:"acquired_at"` // When the current selection was acquired
	HoldUntil  time.Time `json:"hold_until"`  // Operator reaction deadline; no slews before it
}

// Feed supplies the current set of sightings. Implementations must
// return promptly; the engine treats any error as an empty tick.
type Feed interface {
	Sightings(maxDistance float64) ([]Sighting, error)
}

// CameraProvider supplies the camera snapshot for the current tick.
type CameraProvider interface {
	Camera() (CameraState, error)
}

// DriveSink receives slew steps and shutter triggers. Calls are
// fire-and-forget; implementations own their error reporting.
type DriveSink interface {
	// MoveBy slews the head by a screen-space delta in pixels.
	MoveBy(dx, dy float64)
	// Trigger fires the shutter.
	Trigger()
}
