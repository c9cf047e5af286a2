// Package p2scan turns raw sightings into screen-space targets: range
// and validity filtering, projection through the camera, the
// field-of-view gate around frame centre, and the per-frame cap.
package p2scan

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// ScoreFunc computes a selection priority for a target. Injected by
// the engine from the ranking stage so the scanner can order targets
// when truncating to the per-frame cap.
type ScoreFunc func(t pursuit.Target, cam pursuit.CameraState) float64

// Params are the per-scan inputs derived from the tuning snapshot and
// the engine's measured timing.
type Params struct {
	FOVRadiusPx       float64       // acquisition radius around frame centre
	MaxDistanceM      float64       // world-range cutoff
	AssociationRadius float64       // nearest-match radius for identity carry-over, metres
	MinInterval       time.Duration // rescan no more often than this
}

// Scanner owns the scan cadence and the previous result. Not safe for
// concurrent use; the engine's tick path is the only caller.
type Scanner struct {
	score ScoreFunc

	lastScan time.Time
	prev     []pursuit.Target

	throttled atomic.Uint64
	scans     atomic.Uint64
}

// New returns a scanner using score to order targets at the cap.
func New(score ScoreFunc) *Scanner {
	return &Scanner{score: score}
}

// Scan produces the target list for this tick. If the time since the
// last scan is shorter than p.MinInterval the previous result is
// returned unchanged with no side effects. The returned slice is owned
// by the scanner; callers must copy before retaining.
func (s *Scanner) Scan(now time.Time, sightings []pursuit.Sighting, cam pursuit.CameraState, p Params) []pursuit.Target {
	if !s.lastScan.IsZero() && now.Sub(s.lastScan) < p.MinInterval {
		s.throttled.Add(1)
		return s.prev
	}

	out := make([]pursuit.Target, 0, min(len(sightings), pursuit.MaxTargetsPerFrame))
	claimed := make([]bool, len(s.prev))
	for _, sg := range sightings {
		if !sg.Valid || !sg.Pos.Finite() {
			continue
		}
		dist := sg.Pos.Dist(cam.Pose.Position)
		if dist > p.MaxDistanceM {
			continue
		}
		screen, ok := cam.Project(sg.Pos)
		if !ok {
			continue
		}
		if geom.ScreenCenterDist(screen, cam.Width, cam.Height) > p.FOVRadiusPx {
			continue
		}

		visible := geom.OnScreen(screen, cam.Width, cam.Height)
		if sg.Vis != nil {
			visible = visible || *sg.Vis
		}

		t := pursuit.Target{
			Pos:      sg.Pos,
			Vel:      sg.Vel,
			Distance: dist,
			Screen:   screen,
			Class:    sg.Class,
			Visible:  visible,
			LastSeen: now,
		}
		// Until the predictor runs, the prediction is the measurement.
		t.PredictedPos = t.Pos
		t.PredictedScreen = t.Screen

		if i := s.match(t.Pos, p.AssociationRadius, claimed); i >= 0 {
			claimed[i] = true
			t.ID = s.prev[i].ID
			t.FirstSeen = s.prev[i].FirstSeen
		} else {
			t.ID = pursuit.NewTargetID()
			t.FirstSeen = now
		}

		if s.score != nil {
			t.Priority = s.score(t, cam)
		}
		out = append(out, t)
	}

	if len(out) > pursuit.MaxTargetsPerFrame {
		// Keep the highest-priority targets. Stable so equal scores
		// preserve scan order.
		sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
		out = out[:pursuit.MaxTargetsPerFrame]
	}

	s.lastScan = now
	s.prev = out
	s.scans.Add(1)
	return out
}

// match returns the index of the nearest unclaimed previous target
// within radius, or -1.
func (s *Scanner) match(pos geom.Vec3, radius float64, claimed []bool) int {
	best := -1
	bestDist := radius
	for i := range s.prev {
		if claimed[i] {
			continue
		}
		if d := s.prev[i].Pos.Dist(pos); d <= bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// Previous returns the last scan result without triggering a rescan.
func (s *Scanner) Previous() []pursuit.Target { return s.prev }

// Reset drops all scan state. Used when the loop is disabled so a
// re-enable starts from a clean acquisition.
func (s *Scanner) Reset() {
	s.lastScan = time.Time{}
	s.prev = nil
}

// Throttled returns how many Scan calls returned the cached result.
func (s *Scanner) Throttled() uint64 { return s.throttled.Load() }

// Scans returns how many full scans have run.
func (s *Scanner) Scans() uint64 { return s.scans.Load() }
