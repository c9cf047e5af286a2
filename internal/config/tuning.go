package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/fsutil"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Strategy names accepted by the selection stage.
const (
	StrategyClosest  = "closest"
	StrategyCentered = "centered"
	StrategyThreat   = "threat"
	StrategyAdaptive = "adaptive"
)

// Fallback values applied by the Get* accessors when a field is unset.
const (
	DefaultStrategy           = StrategyAdaptive
	DefaultFOVRadiusPx        = 160.0
	DefaultMaxDistanceM       = 400.0
	DefaultAssociationRadiusM = 5.0
	DefaultSmoothingFactor    = 0.35
	DefaultPredictionStrength = 1.0
	DefaultLookahead          = 100 * time.Millisecond
	DefaultJitterPx           = 1.2
	DefaultReactionTime       = 180 * time.Millisecond
	DefaultDriftHz            = 0.4
	DefaultSensitivity        = 0.65
	DefaultCaptureRadiusPx    = 24.0
	DefaultCaptureCooldown    = 2 * time.Second
	DefaultUpdateHz           = 60.0
	DefaultMinUpdateHz        = 30.0
	DefaultMaxUpdateHz        = 120.0
	DefaultFrameBudget        = 30 * time.Millisecond
)

// Hard bounds used by Normalize. Out-of-range values clamp to these
// rather than failing: a bad slider value in the UI must never take the
// head offline.
const (
	maxFOVRadiusPx     = 4096.0
	minMaxDistanceM    = 1.0 // below the minimum tracking range nothing is selectable
	maxMaxDistanceM    = 10000.0
	maxAssociationM    = 100.0
	maxPredStrength    = 3.0
	maxJitterPx        = 64.0
	maxDriftPx         = 32.0
	maxDriftHz         = 5.0
	maxCaptureRadiusPx = 512.0
	minHzBound         = 1.0
	maxHzBound         = 240.0
)

// Tuning is the runtime tuning surface for the tracking head. All
// fields are optional pointers so the same JSON schema serves the
// startup file and partial runtime updates through /api/config: fields
// omitted from a document keep their previous (or default) values.
type Tuning struct {
	// Selection params
	Strategy           *string  `json:"strategy,omitempty"`             // closest | centered | threat | adaptive
	FOVRadiusPx        *float64 `json:"fov_radius_px,omitempty"`        // acquisition radius around frame centre
	MaxDistanceM       *float64 `json:"max_distance_m,omitempty"`       // world-range cutoff for sightings
	AssociationRadiusM *float64 `json:"association_radius_m,omitempty"` // nearest-match radius for identity carry-over

	// Aim filter params
	SmoothingFactor    *float64 `json:"smoothing_factor,omitempty"`    // 0 snaps, ->1 freezes
	PredictionEnabled  *bool    `json:"prediction_enabled,omitempty"`  //
	PredictionStrength *float64 `json:"prediction_strength,omitempty"` // scales the lookahead
	Lookahead          *string  `json:"lookahead,omitempty"`           // duration string like "100ms"

	// Operator model params
	OperatorEnabled  *bool    `json:"operator_enabled,omitempty"`   // hand-operated character on/off
	JitterPx         *float64 `json:"jitter_px,omitempty"`          // uniform per-axis jitter amplitude
	ReactionTime     *string  `json:"reaction_time,omitempty"`      // duration string like "180ms"
	DriftAmplitudePx *float64 `json:"drift_amplitude_px,omitempty"` // Perlin drift amplitude, 0 disables
	DriftHz          *float64 `json:"drift_hz,omitempty"`           // Perlin drift frequency

	// Drive params
	Sensitivity     *float64 `json:"sensitivity,omitempty"`       // slew gain in [0,1]
	AutoCapture     *bool    `json:"auto_capture,omitempty"`      // fire the shutter when centred
	CaptureRadiusPx *float64 `json:"capture_radius_px,omitempty"` // centred means within this radius
	CaptureCooldown *string  `json:"capture_cooldown,omitempty"`  // duration string like "2s"

	// Loop params
	UpdateHz            *float64 `json:"update_hz,omitempty"`            // initial desired tick rate
	MinUpdateHz         *float64 `json:"min_update_hz,omitempty"`        // adaptive lower bound
	MaxUpdateHz         *float64 `json:"max_update_hz,omitempty"`        // adaptive upper bound
	AdaptivePerformance *bool    `json:"adaptive_performance,omitempty"` // frame-drop shedding + rate adaptation
	FrameBudget         *string  `json:"frame_budget,omitempty"`         // duration string like "30ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }

// EmptyTuning returns a Tuning with all fields unset. The Get*
// accessors supply defaults for every unset field.
func EmptyTuning() *Tuning {
	return &Tuning{}
}

// LoadTuning loads a Tuning from a JSON file through the given
// filesystem. The file must have a .json extension and be under the
// max file size. Fields omitted from the JSON keep their defaults, so
// partial configs are safe. Out-of-range values are clamped, not
// rejected.
func LoadTuning(fsys fsutil.FileSystem, path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := EmptyTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// SaveTuning writes the tuning document to path, pretty-printed.
func SaveTuning(fsys fsutil.FileSystem, path string, t *Tuning) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tuning: %w", err)
	}
	if err := fsys.WriteFile(filepath.Clean(path), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write tuning file: %w", err)
	}
	return nil
}

// MustLoadDefaultTuning loads the canonical tuning defaults from
// DefaultConfigPath, searching upward from the current directory.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultTuning() *Tuning {
	fsys := fsutil.OSFileSystem{}
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuning(fsys, path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks for malformed values that clamping cannot repair:
// duration strings that do not parse. Out-of-range numerics are the
// job of Normalize, never an error.
func (c *Tuning) Validate() error {
	for name, v := range map[string]*string{
		"lookahead":        c.Lookahead,
		"reaction_time":    c.ReactionTime,
		"capture_cooldown": c.CaptureCooldown,
		"frame_budget":     c.FrameBudget,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *v, err)
			}
		}
	}
	return nil
}

// Normalize clamps every set field into its valid range in place.
// Unknown strategy names fall back to the default strategy. Frequency
// bounds are reordered so min <= max always holds.
func (c *Tuning) Normalize() {
	if c.Strategy != nil {
		s := strings.ToLower(strings.TrimSpace(*c.Strategy))
		switch s {
		case StrategyClosest, StrategyCentered, StrategyThreat, StrategyAdaptive:
			*c.Strategy = s
		default:
			*c.Strategy = DefaultStrategy
		}
	}
	clampF(c.Sensitivity, 0, 1)
	clampF(c.SmoothingFactor, 0, 1)
	clampF(c.FOVRadiusPx, 1, maxFOVRadiusPx)
	clampF(c.MaxDistanceM, minMaxDistanceM, maxMaxDistanceM)
	clampF(c.AssociationRadiusM, 0, maxAssociationM)
	clampF(c.PredictionStrength, 0, maxPredStrength)
	clampF(c.JitterPx, 0, maxJitterPx)
	clampF(c.DriftAmplitudePx, 0, maxDriftPx)
	clampF(c.DriftHz, 0, maxDriftHz)
	clampF(c.CaptureRadiusPx, 1, maxCaptureRadiusPx)
	clampF(c.MinUpdateHz, minHzBound, maxHzBound)
	clampF(c.MaxUpdateHz, minHzBound, maxHzBound)
	if c.MinUpdateHz != nil && c.MaxUpdateHz != nil && *c.MinUpdateHz > *c.MaxUpdateHz {
		*c.MinUpdateHz, *c.MaxUpdateHz = *c.MaxUpdateHz, *c.MinUpdateHz
	}
	clampF(c.UpdateHz, c.GetMinUpdateHz(), c.GetMaxUpdateHz())
}

func clampF(v *float64, lo, hi float64) {
	if v == nil {
		return
	}
	if *v < lo {
		*v = lo
	} else if *v > hi {
		*v = hi
	}
}

// Clone returns a deep copy. The copy shares no pointers with the
// original, so mutating one never leaks into the other.
func (c *Tuning) Clone() *Tuning {
	out := &Tuning{}
	if c == nil {
		return out
	}
	copyString := func(v *string) *string {
		if v == nil {
			return nil
		}
		return ptrString(*v)
	}
	copyFloat := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		return ptrFloat64(*v)
	}
	copyBool := func(v *bool) *bool {
		if v == nil {
			return nil
		}
		return ptrBool(*v)
	}
	out.Strategy = copyString(c.Strategy)
	out.FOVRadiusPx = copyFloat(c.FOVRadiusPx)
	out.MaxDistanceM = copyFloat(c.MaxDistanceM)
	out.AssociationRadiusM = copyFloat(c.AssociationRadiusM)
	out.SmoothingFactor = copyFloat(c.SmoothingFactor)
	out.PredictionEnabled = copyBool(c.PredictionEnabled)
	out.PredictionStrength = copyFloat(c.PredictionStrength)
	out.Lookahead = copyString(c.Lookahead)
	out.OperatorEnabled = copyBool(c.OperatorEnabled)
	out.JitterPx = copyFloat(c.JitterPx)
	out.ReactionTime = copyString(c.ReactionTime)
	out.DriftAmplitudePx = copyFloat(c.DriftAmplitudePx)
	out.DriftHz = copyFloat(c.DriftHz)
	out.Sensitivity = copyFloat(c.Sensitivity)
	out.AutoCapture = copyBool(c.AutoCapture)
	out.CaptureRadiusPx = copyFloat(c.CaptureRadiusPx)
	out.CaptureCooldown = copyString(c.CaptureCooldown)
	out.UpdateHz = copyFloat(c.UpdateHz)
	out.MinUpdateHz = copyFloat(c.MinUpdateHz)
	out.MaxUpdateHz = copyFloat(c.MaxUpdateHz)
	out.AdaptivePerformance = copyBool(c.AdaptivePerformance)
	out.FrameBudget = copyString(c.FrameBudget)
	return out
}

// Overlay returns a copy of c with every set field of patch applied on
// top. Used by the config endpoint for partial runtime updates.
func (c *Tuning) Overlay(patch *Tuning) *Tuning {
	out := c.Clone()
	if patch == nil {
		return out
	}
	p := patch.Clone()
	if p.Strategy != nil {
		out.Strategy = p.Strategy
	}
	if p.FOVRadiusPx != nil {
		out.FOVRadiusPx = p.FOVRadiusPx
	}
	if p.MaxDistanceM != nil {
		out.MaxDistanceM = p.MaxDistanceM
	}
	if p.AssociationRadiusM != nil {
		out.AssociationRadiusM = p.AssociationRadiusM
	}
	if p.SmoothingFactor != nil {
		out.SmoothingFactor = p.SmoothingFactor
	}
	if p.PredictionEnabled != nil {
		out.PredictionEnabled = p.PredictionEnabled
	}
	if p.PredictionStrength != nil {
		out.PredictionStrength = p.PredictionStrength
	}
	if p.Lookahead != nil {
		out.Lookahead = p.Lookahead
	}
	if p.OperatorEnabled != nil {
		out.OperatorEnabled = p.OperatorEnabled
	}
	if p.JitterPx != nil {
		out.JitterPx = p.JitterPx
	}
	if p.ReactionTime != nil {
		out.ReactionTime = p.ReactionTime
	}
	if p.DriftAmplitudePx != nil {
		out.DriftAmplitudePx = p.DriftAmplitudePx
	}
	if p.DriftHz != nil {
		out.DriftHz = p.DriftHz
	}
	if p.Sensitivity != nil {
		out.Sensitivity = p.Sensitivity
	}
	if p.AutoCapture != nil {
		out.AutoCapture = p.AutoCapture
	}
	if p.CaptureRadiusPx != nil {
		out.CaptureRadiusPx = p.CaptureRadiusPx
	}
	if p.CaptureCooldown != nil {
		out.CaptureCooldown = p.CaptureCooldown
	}
	if p.UpdateHz != nil {
		out.UpdateHz = p.UpdateHz
	}
	if p.MinUpdateHz != nil {
		out.MinUpdateHz = p.MinUpdateHz
	}
	if p.MaxUpdateHz != nil {
		out.MaxUpdateHz = p.MaxUpdateHz
	}
	if p.AdaptivePerformance != nil {
		out.AdaptivePerformance = p.AdaptivePerformance
	}
	if p.FrameBudget != nil {
		out.FrameBudget = p.FrameBudget
	}
	return out
}

func (c *Tuning) duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetStrategy returns the strategy name or the default.
func (c *Tuning) GetStrategy() string {
	if c.Strategy == nil {
		return DefaultStrategy
	}
	return *c.Strategy
}

// GetFOVRadiusPx returns the fov_radius_px value or the default.
func (c *Tuning) GetFOVRadiusPx() float64 {
	if c.FOVRadiusPx == nil {
		return DefaultFOVRadiusPx
	}
	return *c.FOVRadiusPx
}

// GetMaxDistanceM returns the max_distance_m value or the default.
func (c *Tuning) GetMaxDistanceM() float64 {
	if c.MaxDistanceM == nil {
		return DefaultMaxDistanceM
	}
	return *c.MaxDistanceM
}

// GetAssociationRadiusM returns the association_radius_m value or the default.
func (c *Tuning) GetAssociationRadiusM() float64 {
	if c.AssociationRadiusM == nil {
		return DefaultAssociationRadiusM
	}
	return *c.AssociationRadiusM
}

// GetSmoothingFactor returns the smoothing_factor value or the default.
func (c *Tuning) GetSmoothingFactor() float64 {
	if c.SmoothingFactor == nil {
		return DefaultSmoothingFactor
	}
	return *c.SmoothingFactor
}

// GetPredictionEnabled returns the prediction_enabled value or the default.
func (c *Tuning) GetPredictionEnabled() bool {
	if c.PredictionEnabled == nil {
		return true
	}
	return *c.PredictionEnabled
}

// GetPredictionStrength returns the prediction_strength value or the default.
func (c *Tuning) GetPredictionStrength() float64 {
	if c.PredictionStrength == nil {
		return DefaultPredictionStrength
	}
	return *c.PredictionStrength
}

// GetLookahead parses and returns the prediction lookahead.
func (c *Tuning) GetLookahead() time.Duration {
	return c.duration(c.Lookahead, DefaultLookahead)
}

// GetOperatorEnabled returns the operator_enabled value or the default.
func (c *Tuning) GetOperatorEnabled() bool {
	if c.OperatorEnabled == nil {
		return true
	}
	return *c.OperatorEnabled
}

// GetJitterPx returns the jitter_px value or the default.
func (c *Tuning) GetJitterPx() float64 {
	if c.JitterPx == nil {
		return DefaultJitterPx
	}
	return *c.JitterPx
}

// GetReactionTime parses and returns the operator reaction time.
func (c *Tuning) GetReactionTime() time.Duration {
	return c.duration(c.ReactionTime, DefaultReactionTime)
}

// GetDriftAmplitudePx returns the drift_amplitude_px value or the
// default. Drift is off by default.
func (c *Tuning) GetDriftAmplitudePx() float64 {
	if c.DriftAmplitudePx == nil {
		return 0
	}
	return *c.DriftAmplitudePx
}

// GetDriftHz returns the drift_hz value or the default.
func (c *Tuning) GetDriftHz() float64 {
	if c.DriftHz == nil {
		return DefaultDriftHz
	}
	return *c.DriftHz
}

// GetSensitivity returns the sensitivity value or the default.
func (c *Tuning) GetSensitivity() float64 {
	if c.Sensitivity == nil {
		return DefaultSensitivity
	}
	return *c.Sensitivity
}

// GetAutoCapture returns the auto_capture value or the default.
func (c *Tuning) GetAutoCapture() bool {
	if c.AutoCapture == nil {
		return false
	}
	return *c.AutoCapture
}

// GetCaptureRadiusPx returns the capture_radius_px value or the default.
func (c *Tuning) GetCaptureRadiusPx() float64 {
	if c.CaptureRadiusPx == nil {
		return DefaultCaptureRadiusPx
	}
	return *c.CaptureRadiusPx
}

// GetCaptureCooldown parses and returns the auto-capture cooldown.
func (c *Tuning) GetCaptureCooldown() time.Duration {
	return c.duration(c.CaptureCooldown, DefaultCaptureCooldown)
}

// GetUpdateHz returns the update_hz value or the default.
func (c *Tuning) GetUpdateHz() float64 {
	if c.UpdateHz == nil {
		return DefaultUpdateHz
	}
	return *c.UpdateHz
}

// GetMinUpdateHz returns the min_update_hz value or the default.
func (c *Tuning) GetMinUpdateHz() float64 {
	if c.MinUpdateHz == nil {
		return DefaultMinUpdateHz
	}
	return *c.MinUpdateHz
}

// GetMaxUpdateHz returns the max_update_hz value or the default.
func (c *Tuning) GetMaxUpdateHz() float64 {
	if c.MaxUpdateHz == nil {
		return DefaultMaxUpdateHz
	}
	return *c.MaxUpdateHz
}

// GetAdaptivePerformance returns the adaptive_performance value or the default.
func (c *Tuning) GetAdaptivePerformance() bool {
	if c.AdaptivePerformance == nil {
		return true
	}
	return *c.AdaptivePerformance
}

// GetFrameBudget parses and returns the frame-drop budget.
func (c *Tuning) GetFrameBudget() time.Duration {
	return c.duration(c.FrameBudget, DefaultFrameBudget)
}
