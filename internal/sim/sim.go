// Package sim provides a deterministic stand-in for the hardware side
// of the tracking head: a World of wandering airborne subjects that
// implements the sighting feed, and a MountModel that implements the
// drive sink and camera provider by integrating slews into a simulated
// pan-tilt pose. Wiring both to the engine closes the loop with no
// detector array or gimbal attached.
package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
	"github.com/kestrel-optics/pursuit.camera/internal/timeutil"
)

// Behaviour constants. Tuning these changes how hard the subjects are
// to track, not the correctness of the pipeline.
const (
	// wanderArriveM is the range at which a subject considers its
	// wander waypoint reached and picks a new one.
	wanderArriveM = 5.0

	// Waypoint dwell bounds. A new waypoint is picked when the timer
	// expires even if the current one was never reached.
	wanderIntervalMin = 2 * time.Second
	wanderIntervalMax = 8 * time.Second

	// evadeConeDeg is the half-angle of the boresight cone that a
	// subject treats as "being tracked".
	evadeConeDeg = 2.5

	// evadeAfter is how long a subject tolerates the boresight before
	// breaking into an evasive burst.
	evadeAfter = 800 * time.Millisecond

	// evadeDuration and evadeSpeedFactor shape the burst itself.
	evadeDuration    = 1500 * time.Millisecond
	evadeSpeedFactor = 2.0

	// dropoutRate is the fraction of emitted sightings flagged invalid,
	// imitating detector self-distrust.
	dropoutRate = 0.02

	// maxStepDt bounds a single integration step so a stalled caller
	// does not teleport subjects across the arena.
	maxStepDt = 250 * time.Millisecond
)

// band describes the flight envelope of one subject class.
type band struct {
	class  string
	speed  float64 // cruise, m/s
	minAlt float64 // metres
	maxAlt float64
}

var bands = []band{
	{class: "drone", speed: 12, minAlt: 20, maxAlt: 120},
	{class: "bird", speed: 8, minAlt: 5, maxAlt: 60},
	{class: "rotor", speed: 25, minAlt: 40, maxAlt: 200},
}

type subject struct {
	band band
	pos  geom.Vec3
	vel  geom.Vec3

	wanderTarget geom.Vec3
	nextWander   time.Time

	trackedSince time.Time
	evadeDir     geom.Vec3
	evadeUntil   time.Time
}

// Config sets up a World. Zero values select the defaults.
type Config struct {
	Seed     int64
	Subjects int
	ExtentM  float64 // half-size of the square arena, metres
	Clock    timeutil.Clock
}

// World is a seeded arena of wandering subjects. It advances itself by
// wall-clock (or mock-clock) time on each Sightings call, so the
// engine's own tick cadence drives the simulation.
type World struct {
	mu        sync.Mutex
	rng       *rand.Rand
	clock     timeutil.Clock
	extent    float64
	subjects  []*subject
	boresight func() (geom.Pose, bool)
	last      time.Time
	steps     uint64
}

// NewWorld builds a World. A zero Seed derives one from the clock, so
// pass an explicit seed for reproducible runs.
func NewWorld(cfg Config) *World {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Subjects <= 0 {
		cfg.Subjects = 6
	}
	if cfg.ExtentM <= 0 {
		cfg.ExtentM = 250
	}
	if cfg.Seed == 0 {
		cfg.Seed = cfg.Clock.Now().UnixNano()
	}
	w := &World{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		clock:  cfg.Clock,
		extent: cfg.ExtentM,
	}
	for i := 0; i < cfg.Subjects; i++ {
		b := bands[i%len(bands)]
		s := &subject{band: b}
		s.pos = w.randomPoint(b)
		s.wanderTarget = s.pos
		w.subjects = append(w.subjects, s)
	}
	return w
}

// SetBoresight wires in where the head is pointing so subjects can
// react to being tracked. fn is called once per integration step; a
// false return means no pose is available this step.
func (w *World) SetBoresight(fn func() (geom.Pose, bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.boresight = fn
}

// Sightings implements pursuit.Feed. The world advances by the time
// elapsed since the previous call before the snapshot is taken. When a
// boresight pose is known, subjects beyond maxDistance from it are
// withheld, matching what a ranged detector array would deliver.
func (w *World) Sightings(maxDistance float64) ([]pursuit.Sighting, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	dt := now.Sub(w.last)
	if w.last.IsZero() || dt < 0 {
		dt = 0
	}
	if dt > maxStepDt {
		dt = maxStepDt
	}
	w.last = now
	w.advance(now, dt)

	origin := geom.Vec3{}
	if pose, ok := w.pose(); ok {
		origin = pose.Position
	}
	out := make([]pursuit.Sighting, 0, len(w.subjects))
	for _, s := range w.subjects {
		if maxDistance > 0 && s.pos.Dist(origin) > maxDistance {
			continue
		}
		sight := pursuit.Sighting{
			Pos:   s.pos,
			Vel:   s.vel,
			Valid: w.rng.Float64() >= dropoutRate,
			Class: s.band.class,
		}
		out = append(out, sight)
	}
	return out, nil
}

// Steps reports how many integration steps have run.
func (w *World) Steps() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.steps
}

func (w *World) pose() (geom.Pose, bool) {
	if w.boresight == nil {
		return geom.Pose{}, false
	}
	return w.boresight()
}

func (w *World) advance(now time.Time, dt time.Duration) {
	if dt <= 0 {
		return
	}
	sec := dt.Seconds()
	pose, havePose := w.pose()
	for _, s := range w.subjects {
		w.steer(s, now, pose, havePose)
		s.pos = s.pos.Add(s.vel.Scale(sec))
		w.confine(s)
	}
	w.steps++
}

// steer picks the subject's velocity for this step: evasive burst while
// one is active, otherwise cruise toward the current wander waypoint.
func (w *World) steer(s *subject, now time.Time, pose geom.Pose, havePose bool) {
	if havePose && !now.Before(s.evadeUntil) {
		w.noticeBoresight(s, now, pose)
	}
	if now.Before(s.evadeUntil) {
		s.vel = s.evadeDir.Scale(s.band.speed * evadeSpeedFactor)
		return
	}

	if !s.nextWander.After(now) || s.pos.Dist(s.wanderTarget) < wanderArriveM {
		s.wanderTarget = w.randomPoint(s.band)
		s.nextWander = now.Add(w.randomInterval(wanderIntervalMin, wanderIntervalMax))
	}
	dir := s.wanderTarget.Sub(s.pos)
	dist := dir.Len()
	if dist < 1 {
		s.vel = geom.Vec3{}
		return
	}
	s.vel = dir.Scale(s.band.speed / dist)
}

// noticeBoresight arms and fires the evasion timer while the head's
// forward axis stays inside the tracking cone around the subject.
func (w *World) noticeBoresight(s *subject, now time.Time, pose geom.Pose) {
	to := s.pos.Sub(pose.Position)
	if to.Len() < 1 {
		return
	}
	if to.Norm().Dot(pose.Forward) < math.Cos(geom.DegToRad(evadeConeDeg)) {
		s.trackedSince = time.Time{}
		return
	}
	if s.trackedSince.IsZero() {
		s.trackedSince = now
		return
	}
	if now.Sub(s.trackedSince) < evadeAfter {
		return
	}

	// Break perpendicular to the line of sight, with a random lateral
	// sign and a mild climb or dive.
	los := to.Norm()
	side := los.Cross(geom.Vec3{Z: 1}).Norm()
	if side.IsZero() {
		side = geom.Vec3{X: 1}
	}
	if w.rng.Intn(2) == 0 {
		side = side.Scale(-1)
	}
	climb := (w.rng.Float64() - 0.5) * 0.6
	s.evadeDir = side.Add(geom.Vec3{Z: climb}).Norm()
	s.evadeUntil = now.Add(evadeDuration)
	s.trackedSince = time.Time{}
}

func (w *World) confine(s *subject) {
	s.pos.X = clamp(s.pos.X, -w.extent, w.extent)
	s.pos.Y = clamp(s.pos.Y, -w.extent, w.extent)
	s.pos.Z = clamp(s.pos.Z, s.band.minAlt, s.band.maxAlt)
}

// randomPoint picks a position uniformly over the arena disc, at an
// altitude uniform within the band.
func (w *World) randomPoint(b band) geom.Vec3 {
	angle := w.rng.Float64() * 2 * math.Pi
	r := w.extent * math.Sqrt(w.rng.Float64())
	return geom.Vec3{
		X: math.Cos(angle) * r,
		Y: math.Sin(angle) * r,
		Z: b.minAlt + w.rng.Float64()*(b.maxAlt-b.minAlt),
	}
}

func (w *World) randomInterval(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(w.rng.Int63n(int64(max-min)))
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
