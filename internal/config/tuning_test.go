package config

import (
	"strings"
	"testing"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/fsutil"
)

func writeTuningFile(t *testing.T, fsys fsutil.FileSystem, path, body string) {
	t.Helper()
	if err := fsys.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestEmptyTuningDefaults(t *testing.T) {
	cfg := EmptyTuning()

	if got := cfg.GetStrategy(); got != StrategyAdaptive {
		t.Errorf("GetStrategy = %q, want %q", got, StrategyAdaptive)
	}
	if got := cfg.GetSensitivity(); got != DefaultSensitivity {
		t.Errorf("GetSensitivity = %v, want %v", got, DefaultSensitivity)
	}
	if got := cfg.GetFOVRadiusPx(); got != DefaultFOVRadiusPx {
		t.Errorf("GetFOVRadiusPx = %v, want %v", got, DefaultFOVRadiusPx)
	}
	if got := cfg.GetLookahead(); got != DefaultLookahead {
		t.Errorf("GetLookahead = %v, want %v", got, DefaultLookahead)
	}
	if got := cfg.GetReactionTime(); got != DefaultReactionTime {
		t.Errorf("GetReactionTime = %v, want %v", got, DefaultReactionTime)
	}
	if got := cfg.GetCaptureCooldown(); got != DefaultCaptureCooldown {
		t.Errorf("GetCaptureCooldown = %v, want %v", got, DefaultCaptureCooldown)
	}
	if !cfg.GetPredictionEnabled() {
		t.Error("GetPredictionEnabled = false, want true")
	}
	if cfg.GetAutoCapture() {
		t.Error("GetAutoCapture = true, want false")
	}
	if got := cfg.GetMinUpdateHz(); got != DefaultMinUpdateHz {
		t.Errorf("GetMinUpdateHz = %v, want %v", got, DefaultMinUpdateHz)
	}
	if got := cfg.GetMaxUpdateHz(); got != DefaultMaxUpdateHz {
		t.Errorf("GetMaxUpdateHz = %v, want %v", got, DefaultMaxUpdateHz)
	}
	if got := cfg.GetFrameBudget(); got != DefaultFrameBudget {
		t.Errorf("GetFrameBudget = %v, want %v", got, DefaultFrameBudget)
	}
	if got := cfg.GetDriftAmplitudePx(); got != 0 {
		t.Errorf("GetDriftAmplitudePx = %v, want 0 (drift off by default)", got)
	}
}

func TestLoadTuningPartialFile(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeTuningFile(t, fsys, "tuning.json", `{"strategy":"closest","sensitivity":0.5}`)

	cfg, err := LoadTuning(fsys, "tuning.json")
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if got := cfg.GetStrategy(); got != StrategyClosest {
		t.Errorf("GetStrategy = %q, want %q", got, StrategyClosest)
	}
	if got := cfg.GetSensitivity(); got != 0.5 {
		t.Errorf("GetSensitivity = %v, want 0.5", got)
	}
	// Unset fields keep defaults.
	if got := cfg.GetSmoothingFactor(); got != DefaultSmoothingFactor {
		t.Errorf("GetSmoothingFactor = %v, want %v", got, DefaultSmoothingFactor)
	}
}

func TestLoadTuningRejectsNonJSONExtension(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeTuningFile(t, fsys, "tuning.yaml", `{}`)

	if _, err := LoadTuning(fsys, "tuning.yaml"); err == nil {
		t.Fatal("expected error for non-.json extension")
	}
}

func TestLoadTuningRejectsMalformedJSON(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeTuningFile(t, fsys, "tuning.json", `{"strategy":`)

	if _, err := LoadTuning(fsys, "tuning.json"); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestLoadTuningRejectsBadDuration(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeTuningFile(t, fsys, "tuning.json", `{"lookahead":"fast"}`)

	_, err := LoadTuning(fsys, "tuning.json")
	if err == nil {
		t.Fatal("expected error for unparseable duration")
	}
	if !strings.Contains(err.Error(), "lookahead") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestLoadTuningMissingFile(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if _, err := LoadTuning(fsys, "absent.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNormalizeClampsOutOfRange(t *testing.T) {
	cfg := &Tuning{
		Sensitivity:     ptrFloat64(1.8),
		SmoothingFactor: ptrFloat64(-0.3),
		FOVRadiusPx:     ptrFloat64(0),
		MaxDistanceM:    ptrFloat64(-50),
		JitterPx:        ptrFloat64(1000),
	}
	cfg.Normalize()

	if *cfg.Sensitivity != 1 {
		t.Errorf("Sensitivity clamped to %v, want 1", *cfg.Sensitivity)
	}
	if *cfg.SmoothingFactor != 0 {
		t.Errorf("SmoothingFactor clamped to %v, want 0", *cfg.SmoothingFactor)
	}
	if *cfg.FOVRadiusPx != 1 {
		t.Errorf("FOVRadiusPx clamped to %v, want 1", *cfg.FOVRadiusPx)
	}
	if *cfg.MaxDistanceM != minMaxDistanceM {
		t.Errorf("MaxDistanceM clamped to %v, want %v", *cfg.MaxDistanceM, minMaxDistanceM)
	}
	if *cfg.JitterPx != maxJitterPx {
		t.Errorf("JitterPx clamped to %v, want %v", *cfg.JitterPx, maxJitterPx)
	}
}

func TestNormalizeUnknownStrategyFallsBack(t *testing.T) {
	cfg := &Tuning{Strategy: ptrString("Aggressive")}
	cfg.Normalize()
	if *cfg.Strategy != DefaultStrategy {
		t.Errorf("Strategy = %q, want %q", *cfg.Strategy, DefaultStrategy)
	}

	cfg = &Tuning{Strategy: ptrString("  Threat ")}
	cfg.Normalize()
	if *cfg.Strategy != StrategyThreat {
		t.Errorf("Strategy = %q, want %q (case/space insensitive)", *cfg.Strategy, StrategyThreat)
	}
}

func TestNormalizeReordersFrequencyBounds(t *testing.T) {
	cfg := &Tuning{
		MinUpdateHz: ptrFloat64(100),
		MaxUpdateHz: ptrFloat64(40),
		UpdateHz:    ptrFloat64(200),
	}
	cfg.Normalize()

	if *cfg.MinUpdateHz != 40 || *cfg.MaxUpdateHz != 100 {
		t.Errorf("bounds = [%v,%v], want [40,100]", *cfg.MinUpdateHz, *cfg.MaxUpdateHz)
	}
	if *cfg.UpdateHz != 100 {
		t.Errorf("UpdateHz = %v, want clamped to 100", *cfg.UpdateHz)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Tuning{
		Strategy:    ptrString(StrategyClosest),
		Sensitivity: ptrFloat64(0.4),
	}
	cp := orig.Clone()
	*cp.Sensitivity = 0.9
	*cp.Strategy = StrategyThreat

	if *orig.Sensitivity != 0.4 {
		t.Errorf("original Sensitivity mutated to %v", *orig.Sensitivity)
	}
	if *orig.Strategy != StrategyClosest {
		t.Errorf("original Strategy mutated to %q", *orig.Strategy)
	}
}

func TestOverlayAppliesOnlySetFields(t *testing.T) {
	base := &Tuning{
		Strategy:    ptrString(StrategyClosest),
		Sensitivity: ptrFloat64(0.4),
		JitterPx:    ptrFloat64(2),
	}
	patch := &Tuning{Sensitivity: ptrFloat64(0.8)}

	out := base.Overlay(patch)
	if *out.Sensitivity != 0.8 {
		t.Errorf("Sensitivity = %v, want 0.8", *out.Sensitivity)
	}
	if *out.Strategy != StrategyClosest {
		t.Errorf("Strategy = %q, want untouched %q", *out.Strategy, StrategyClosest)
	}
	if *out.JitterPx != 2 {
		t.Errorf("JitterPx = %v, want untouched 2", *out.JitterPx)
	}
}

func TestSaveTuningRoundTrip(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	orig := &Tuning{
		Strategy:     ptrString(StrategyCentered),
		Sensitivity:  ptrFloat64(0.7),
		Lookahead:    ptrString("150ms"),
		ReactionTime: ptrString("90ms"),
	}
	if err := SaveTuning(fsys, "out.json", orig); err != nil {
		t.Fatalf("SaveTuning: %v", err)
	}

	got, err := LoadTuning(fsys, "out.json")
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if *got.Strategy != StrategyCentered || *got.Sensitivity != 0.7 {
		t.Errorf("round trip lost values: %+v", got)
	}
	if got.GetLookahead() != 150*time.Millisecond {
		t.Errorf("GetLookahead = %v, want 150ms", got.GetLookahead())
	}
	if got.GetReactionTime() != 90*time.Millisecond {
		t.Errorf("GetReactionTime = %v, want 90ms", got.GetReactionTime())
	}
}
