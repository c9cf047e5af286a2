package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/config"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/p2scan"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/p3rank"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/p4aim"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/p5drive"
	"github.com/kestrel-optics/pursuit.camera/internal/timeutil"
)

var (
	errNoCamera  = errors.New("no camera provider configured")
	errBadCamera = errors.New("camera state invalid")
	errNoFeed    = errors.New("no feed configured")
)

// State is the phase the engine last completed. Between ticks an
// engine with a live selection reads as StateAiming; one seeing no
// sightings reads as StateScanning.
type State string

const (
	StateIdle         State = "idle"
	StateScanning     State = "scanning"
	StatePrioritizing State = "prioritizing"
	StateTracking     State = "tracking"
	StateAiming       State = "aiming"
)

// frameWindowSize is the number of tick-duration samples in the
// rolling average that drives load shedding and rate adaptation.
const frameWindowSize = 60

// Rate adaptation steps. Back off fast when ticks blow the frame
// budget, recover slowly once the average clears half of it.
const (
	backoffFactor = 0.9
	recoverFactor = 1.05
)

// emptyTickLogEvery limits ops-stream noise during a collaborator
// outage; the first failed tick always logs.
const emptyTickLogEvery = 300

// TickReport is the per-tick record handed to the observer hook.
type TickReport struct {
	Time      time.Time     `json:"time"`
	State     State         `json:"state"`
	Work      time.Duration `json:"work_ns"`
	DesiredHz float64       `json:"desired_hz"`
	Targets   int           `json:"targets"`
	CurrentID string        `json:"current_id"`
	Delta     geom.Vec2     `json:"delta"`
	Captured  bool          `json:"captured"`
	Dropped   bool          `json:"dropped"`
	Empty     bool          `json:"empty"`

	// Current is a copy of the selected target, nil when none.
	Current *pursuit.Target `json:"current,omitempty"`
	// CenterDist is the selected target's distance from the frame
	// centre in pixels, zero when nothing is selected.
	CenterDist float64 `json:"center_dist_px"`
}

// EngineConfig holds the engine's collaborators. Feed, Camera and
// Drive may be nil; a nil Feed or Camera makes every tick an empty
// tick, a nil Drive computes slews without dispatching them.
type EngineConfig struct {
	Feed   pursuit.Feed
	Camera pursuit.CameraProvider
	Drive  pursuit.DriveSink
	Store  *config.Store  // nil gets a store seeded with defaults
	Clock  timeutil.Clock // nil gets the real clock
	Seed   int64          // operator model seed; 0 seeds from the clock

	// Observer, when non-nil, receives a report after every enabled
	// tick, including dropped and empty ones. Called outside the
	// engine lock, so it may call back into the snapshot getters.
	Observer func(TickReport)
}

// Snapshot is a consistent copy of the engine's observable state.
type Snapshot struct {
	Enabled        bool                `json:"enabled"`
	State          State               `json:"state"`
	DesiredHz      float64             `json:"desired_hz"`
	AvgTick        time.Duration       `json:"avg_tick_ns"`
	Targets        int                 `json:"targets"`
	CurrentID      string              `json:"current_id"`
	Ticks          uint64              `json:"ticks"`
	Drops          uint64              `json:"drops"`
	EmptyTicks     uint64              `json:"empty_ticks"`
	Scans          uint64              `json:"scans"`
	ThrottledScans uint64              `json:"throttled_scans"`
	Moves          uint64              `json:"moves"`
	Captures       uint64              `json:"captures"`
	Aim            pursuit.AimState    `json:"aim"`
	Camera         pursuit.CameraState `json:"camera"`
	CameraOK       bool                `json:"camera_ok"`
}

// Engine drives the tick pipeline: scan, rank, predict, smooth,
// perturb, emit. One Update call is one tick; all pipeline state is
// owned by the tick path and guarded by mu so the HTTP surface can
// read consistent copies while the loop runs.
type Engine struct {
	feed     pursuit.Feed
	camera   pursuit.CameraProvider
	store    *config.Store
	clock    timeutil.Clock
	observer func(TickReport)

	scanner  *p2scan.Scanner
	ranker   *p3rank.Ranker
	emitter  *p5drive.Emitter
	operator *p4aim.Operator
	smoother p4aim.Smoother
	history  *pursuit.History

	mu        sync.RWMutex
	enabled   bool
	state     State
	targets   []pursuit.Target
	aim       pursuit.AimState
	lastCam   pursuit.CameraState
	lastCamOK bool

	window    tickWindow
	desiredHz float64

	ticks      uint64
	drops      uint64
	emptyTicks uint64
}

// NewEngine wires the stage components around the given collaborators.
// The engine starts disabled; call Enable(true) to start tracking.
func NewEngine(cfg EngineConfig) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	store := cfg.Store
	if store == nil {
		store = config.NewStore(nil)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}

	e := &Engine{
		feed:     cfg.Feed,
		camera:   cfg.Camera,
		store:    store,
		clock:    clock,
		observer: cfg.Observer,
		ranker:   p3rank.NewRanker(p3rank.ParseStrategy(store.Snapshot().GetStrategy())),
		emitter:  p5drive.New(cfg.Drive),
		operator: p4aim.NewOperator(seed, clock.Now()),
		history:  pursuit.NewHistory(pursuit.TargetHistorySize),
		state:    StateIdle,
	}
	e.scanner = p2scan.New(func(t pursuit.Target, cam pursuit.CameraState) float64 {
		return e.ranker.Strategy().Score(t, cam)
	})
	e.desiredHz = store.Snapshot().GetUpdateHz()
	return e
}

// Enable turns the loop on or off. Disabling clears the target list,
// the selection, and the aim state, and the engine reads as StateIdle
// until re-enabled.
func (e *Engine) Enable(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v == e.enabled {
		return
	}
	e.enabled = v
	if v {
		e.state = StateScanning
		diagf("[engine] enabled")
		return
	}
	e.state = StateIdle
	e.targets = nil
	e.ranker.Clear()
	e.scanner.Reset()
	e.smoother.Reset(e.neutralLocked())
	e.operator.Observe(e.clock.Now(), "", p4aim.OperatorParams{})
	e.aim = pursuit.AimState{Aim: e.neutralLocked()}
	diagf("[engine] disabled")
}

// Enabled reports whether the loop is running.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// SetConfig replaces the whole tuning document. Out-of-range values
// clamp during normalization; this never fails.
func (e *Engine) SetConfig(t *config.Tuning) {
	e.store.Replace(t)
}

// Config returns the current tuning snapshot. Treat it as read-only.
func (e *Engine) Config() *config.Tuning {
	return e.store.Snapshot()
}

// Store exposes the tuning store for partial updates from the HTTP
// surface.
func (e *Engine) Store() *config.Store {
	return e.store
}

// VisibleTargets returns a copy of the latest ranked target list.
func (e *Engine) VisibleTargets() []pursuit.Target {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]pursuit.Target, len(e.targets))
	copy(out, e.targets)
	return out
}

// CurrentTarget returns a copy of the current selection, or nil.
func (e *Engine) CurrentTarget() *pursuit.Target {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cur := e.ranker.Current()
	if cur == nil {
		return nil
	}
	c := *cur
	return &c
}

// Capture fires the drive's shutter immediately, outside the
// auto-capture gate. The trigger is counted with automatic captures
// and arms the same cooldown.
func (e *Engine) Capture() {
	e.emitter.Capture(e.clock.Now())
}

// History returns the recent-selection ring, oldest first.
func (e *Engine) History() []pursuit.Target {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.Recent()
}

// Snapshot returns a consistent copy of the observable engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := Snapshot{
		Enabled:        e.enabled,
		State:          e.state,
		DesiredHz:      e.desiredHz,
		AvgTick:        e.window.avg(),
		Targets:        len(e.targets),
		Ticks:          e.ticks,
		Drops:          e.drops,
		EmptyTicks:     e.emptyTicks,
		Scans:          e.scanner.Scans(),
		ThrottledScans: e.scanner.Throttled(),
		Moves:          e.emitter.Moves(),
		Captures:       e.emitter.Captures(),
		Aim:            e.aim,
		Camera:         e.lastCam,
		CameraOK:       e.lastCamOK,
	}
	if cur := e.ranker.Current(); cur != nil {
		snap.CurrentID = cur.ID
	}
	return snap
}

// Update advances the pipeline one tick. Disabled engines mutate
// nothing and dispatch nothing.
func (e *Engine) Update() {
	report, ok := e.tick()
	if ok && e.observer != nil {
		e.observer(report)
	}
}

func (e *Engine) tick() (TickReport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return TickReport{}, false
	}

	now := e.clock.Now()
	cfg := e.store.Snapshot()
	adaptive := cfg.GetAdaptivePerformance()
	budget := cfg.GetFrameBudget()

	report := TickReport{Time: now, DesiredHz: e.desiredHz}

	// Load shedding: when the rolling average blows the frame budget,
	// skip the whole tick. The target list and aim state keep their
	// previous values; only the drop is visible.
	if adaptive && e.window.n > 0 && e.window.avg() > budget {
		e.drops++
		report.Dropped = true
		report.State = e.state
		report.Targets = len(e.targets)
		if cur := e.ranker.Current(); cur != nil {
			report.CurrentID = cur.ID
		}
		e.finishTick(now, cfg, &report)
		tracef("[engine] tick dropped (avg %v > budget %v)", e.window.avg(), budget)
		return report, true
	}

	e.ticks++
	e.ranker.SetStrategy(p3rank.ParseStrategy(cfg.GetStrategy()))

	cam, err := e.cameraState()
	if err != nil {
		e.lastCamOK = false
		e.emptyTick(now, cfg, "camera", err)
		report.State = e.state
		report.Empty = true
		e.finishTick(now, cfg, &report)
		return report, true
	}
	e.lastCam = cam
	e.lastCamOK = true

	e.state = StateScanning
	sightings, err := e.sightings(cfg.GetMaxDistanceM())
	if err != nil {
		e.emptyTick(now, cfg, "feed", err)
		report.State = e.state
		report.Empty = true
		e.finishTick(now, cfg, &report)
		return report, true
	}

	scanned := e.scanner.Scan(now, sightings, cam, p2scan.Params{
		FOVRadiusPx:       cfg.GetFOVRadiusPx(),
		MaxDistanceM:      cfg.GetMaxDistanceM(),
		AssociationRadius: cfg.GetAssociationRadiusM(),
		MinInterval:       e.scanInterval(adaptive),
	})

	// Work on an owned copy so ranking never reorders the scanner's
	// association memory.
	e.targets = append(e.targets[:0], scanned...)

	if len(e.targets) == 0 {
		e.clearSelection(now, cam, cfg)
		report.State = e.state
		e.finishTick(now, cfg, &report)
		return report, true
	}

	e.state = StatePrioritizing
	e.targets = e.ranker.Rank(e.targets, cam)

	prevID := ""
	if cur := e.ranker.Current(); cur != nil {
		prevID = cur.ID
	}
	cur := e.ranker.Select(e.targets, cfg.GetMaxDistanceM())
	if cur == nil {
		e.clearSelection(now, cam, cfg)
		report.State = e.state
		report.Targets = len(e.targets)
		e.finishTick(now, cfg, &report)
		return report, true
	}
	if cur.ID != prevID {
		diagf("[engine] acquired %s (class=%s dist=%.1fm prio=%.1f)", cur.ID, cur.Class, cur.Distance, cur.Priority)
	}

	e.state = StateTracking
	p4aim.Predict(cur, cam, p4aim.PredictParams{
		Enabled:   cfg.GetPredictionEnabled(),
		Strength:  cfg.GetPredictionStrength(),
		Lookahead: cfg.GetLookahead(),
	})
	e.history.Add(*cur)

	e.state = StateAiming
	report.Captured = e.aimAndEmit(now, cur, cam, cfg)

	report.State = e.state
	report.Targets = len(e.targets)
	report.CurrentID = cur.ID
	report.Delta = e.aim.LastDelta
	curCopy := *cur
	report.Current = &curCopy
	report.CenterDist = geom.ScreenCenterDist(cur.Screen, cam.Width, cam.Height)
	e.finishTick(now, cfg, &report)
	tracef("[engine] tick %d state=%s targets=%d cur=%s delta=(%.1f,%.1f) work=%v",
		e.ticks, e.state, len(e.targets), cur.ID, e.aim.LastDelta.X, e.aim.LastDelta.Y, report.Work)
	return report, true
}

// aimAndEmit runs the aim filters for the selected target and
// dispatches the slew, honouring the operator reaction hold. Returns
// whether a capture fired.
func (e *Engine) aimAndEmit(now time.Time, cur *pursuit.Target, cam pursuit.CameraState, cfg *config.Tuning) bool {
	op := p4aim.OperatorParams{
		Enabled:  cfg.GetOperatorEnabled(),
		JitterPx: cfg.GetJitterPx(),
		Reaction: cfg.GetReactionTime(),
		DriftPx:  cfg.GetDriftAmplitudePx(),
		DriftHz:  cfg.GetDriftHz(),
	}
	em := p5drive.EmitParams{
		Sensitivity:     cfg.GetSensitivity(),
		AutoCapture:     cfg.GetAutoCapture(),
		CaptureRadiusPx: cfg.GetCaptureRadiusPx(),
		CaptureCooldown: cfg.GetCaptureCooldown(),
	}

	e.operator.Observe(now, cur.ID, op)
	if cur.ID != e.aim.TargetID {
		e.aim.TargetID = cur.ID
		e.aim.AcquiredAt = now
	}
	e.aim.HoldUntil = e.operator.HoldUntil()

	if e.operator.Holding(now) {
		// Reaction hold: the aim trajectory pauses here and resumes
		// once the deadline passes. Nothing is dispatched.
		e.aim.AimVel = geom.Vec2{}
		e.aim.LastDelta = geom.Vec2{}
		e.aim.Jitter = geom.Vec2{}
	} else {
		if !e.smoother.Active() {
			e.smoother.Reset(cam.Center())
			e.aim.Aim = cam.Center()
		}
		prevSmoothed := e.smoother.Current()
		smoothed := e.smoother.Step(cur.PredictedScreen, cfg.GetSmoothingFactor())
		perturbed, jitter := e.operator.Perturb(now, smoothed, op)

		delta := e.emitter.Step(e.aim.Aim, perturbed, em)
		e.aim.AimVel = smoothed.Sub(prevSmoothed)
		e.aim.Aim = e.aim.Aim.Add(delta)
		e.aim.LastDelta = delta
		e.aim.Jitter = jitter
	}

	captured := e.emitter.MaybeCapture(now, cur, cam, em)
	if captured {
		diagf("[engine] capture fired on %s (%.1fpx off centre)", cur.ID,
			geom.ScreenCenterDist(cur.Screen, cam.Width, cam.Height))
	}
	return captured
}

// clearSelection drops the current target and returns the aim state to
// neutral. The engine reads as StateScanning afterwards.
func (e *Engine) clearSelection(now time.Time, cam pursuit.CameraState, cfg *config.Tuning) {
	hadTarget := e.ranker.Current() != nil
	e.ranker.Select(nil, cfg.GetMaxDistanceM())
	e.smoother.Reset(cam.Center())
	e.operator.Observe(now, "", p4aim.OperatorParams{})
	e.aim = pursuit.AimState{Aim: cam.Center()}
	e.state = StateScanning
	if hadTarget {
		diagf("[engine] selection cleared")
	}
}

// emptyTick is the non-fatal failure path: empty target list, no
// selection, no emission, loop continues.
func (e *Engine) emptyTick(now time.Time, cfg *config.Tuning, what string, err error) {
	e.emptyTicks++
	if e.emptyTicks%emptyTickLogEvery == 1 {
		opsf("[engine] %s unavailable, empty tick %d: %v", what, e.emptyTicks, err)
	}
	e.targets = nil
	e.ranker.Clear()
	e.smoother.Reset(e.neutralLocked())
	e.operator.Observe(now, "", p4aim.OperatorParams{})
	e.aim = pursuit.AimState{Aim: e.neutralLocked()}
	e.state = StateScanning
}

// finishTick records the tick's measured work and adapts the desired
// rate. Runs for processed, empty, and dropped ticks alike.
func (e *Engine) finishTick(start time.Time, cfg *config.Tuning, report *TickReport) {
	work := e.clock.Since(start)
	e.window.push(work)
	report.Work = work

	if cfg.GetAdaptivePerformance() {
		e.desiredHz = adaptHz(e.desiredHz,
			cfg.GetMinUpdateHz(), cfg.GetMaxUpdateHz(),
			e.window.avg(), cfg.GetFrameBudget())
	} else {
		e.desiredHz = cfg.GetUpdateHz()
	}
	report.DesiredHz = e.desiredHz
}

// scanInterval is the scanner throttle floor: the tick period, or the
// measured average tick time when that is longer and adaptation is on.
func (e *Engine) scanInterval(adaptive bool) time.Duration {
	period := hzPeriod(e.desiredHz)
	if adaptive {
		if avg := e.window.avg(); avg > period {
			return avg
		}
	}
	return period
}

func (e *Engine) cameraState() (pursuit.CameraState, error) {
	if e.camera == nil {
		return pursuit.CameraState{}, errNoCamera
	}
	cam, err := e.camera.Camera()
	if err != nil {
		return pursuit.CameraState{}, err
	}
	if !cam.Valid() {
		return pursuit.CameraState{}, errBadCamera
	}
	return cam, nil
}

func (e *Engine) sightings(maxDistance float64) ([]pursuit.Sighting, error) {
	if e.feed == nil {
		return nil, errNoFeed
	}
	return e.feed.Sightings(maxDistance)
}

// neutralLocked is the aim reset point: the centre of the last good
// frame, or the origin before any camera has been seen.
func (e *Engine) neutralLocked() geom.Vec2 {
	if e.lastCam.Valid() {
		return e.lastCam.Center()
	}
	return geom.Vec2{}
}

// adaptHz nudges the desired rate toward what the host sustains: back
// off while the average tick blows the budget, climb while it clears
// half of it, hold in between.
func adaptHz(cur, lo, hi float64, avg, budget time.Duration) float64 {
	if avg > budget {
		cur *= backoffFactor
	} else if avg <= budget/2 {
		cur *= recoverFactor
	}
	if cur < lo {
		cur = lo
	}
	if cur > hi {
		cur = hi
	}
	return cur
}

func hzPeriod(hz float64) time.Duration {
	if hz <= 0 {
		hz = config.DefaultUpdateHz
	}
	return time.Duration(float64(time.Second) / hz)
}

// tickWindow is a fixed rolling window of tick durations with an O(1)
// running average.
type tickWindow struct {
	samples [frameWindowSize]time.Duration
	idx     int
	n       int
	sum     time.Duration
}

func (w *tickWindow) push(d time.Duration) {
	if w.n == len(w.samples) {
		w.sum -= w.samples[w.idx]
	} else {
		w.n++
	}
	w.samples[w.idx] = d
	w.sum += d
	w.idx = (w.idx + 1) % len(w.samples)
}

func (w *tickWindow) avg() time.Duration {
	if w.n == 0 {
		return 0
	}
	return w.sum / time.Duration(w.n)
}
