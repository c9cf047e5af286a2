// Package p3rank scores targets under the active selection strategy
// and owns the current-target retention rule.
package p3rank

import (
	"sort"

	"github.com/kestrel-optics/pursuit.camera/internal/config"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
)

// Strategy selects the scoring model for target selection.
type Strategy int

const (
	// StrategyClosest favours the shortest world range.
	StrategyClosest Strategy = iota
	// StrategyCentered favours proximity to the frame centre.
	StrategyCentered
	// StrategyThreat favours a range-derived threat figure.
	StrategyThreat
	// StrategyAdaptive blends range, visibility, and threat.
	StrategyAdaptive
)

// Scoring constants. The figures are tuned against the default FOV
// radius and a working range in the hundreds of metres.
const (
	baseThreat       = 50.0
	threatRangeRef   = 1000.0 // range at which the threat figure bottoms out
	threatRangeScale = 20.0
	visibilityBonus  = 50.0
	invisibleFactor  = 0.1 // heavy penalty, not exclusion
)

// ParseStrategy maps a config strategy name to a Strategy. Unknown
// names fall back to StrategyAdaptive, matching config normalization.
func ParseStrategy(name string) Strategy {
	switch name {
	case config.StrategyClosest:
		return StrategyClosest
	case config.StrategyCentered:
		return StrategyCentered
	case config.StrategyThreat:
		return StrategyThreat
	default:
		return StrategyAdaptive
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyClosest:
		return config.StrategyClosest
	case StrategyCentered:
		return config.StrategyCentered
	case StrategyThreat:
		return config.StrategyThreat
	default:
		return config.StrategyAdaptive
	}
}

// Score computes the selection priority of t under the strategy.
// Invisible targets keep a tenth of their score so a briefly occluded
// selection does not flap.
func (s Strategy) Score(t pursuit.Target, cam pursuit.CameraState) float64 {
	var p float64
	switch s {
	case StrategyClosest:
		p = 1000 / maxf(t.Distance, 1)
	case StrategyCentered:
		p = 1000 / maxf(geom.ScreenCenterDist(t.Screen, cam.Width, cam.Height), 1)
	case StrategyThreat:
		p = threatScore(t.Distance)
	default: // StrategyAdaptive
		p = 100 / maxf(t.Distance, 1)
		if t.Visible {
			p += visibilityBonus
		}
		p += threatScore(t.Distance)
	}
	if !t.Visible {
		p *= invisibleFactor
	}
	return p
}

// threatScore decreases monotonically with range and never goes
// negative.
func threatScore(dist float64) float64 {
	v := baseThreat + (threatRangeRef-dist)/threatRangeScale
	if v < 0 {
		return 0
	}
	return v
}

func maxf(v, lo float64) float64 {
	if v > lo {
		return v
	}
	return lo
}

// Ranker applies the strategy to a scan result and retains the current
// target across ticks. Not safe for concurrent use; the engine's tick
// path is the only caller.
type Ranker struct {
	strategy Strategy
	current  *pursuit.Target // owned copy, never aliases a scan slice
}

// NewRanker returns a ranker with the given strategy and no selection.
func NewRanker(strategy Strategy) *Ranker {
	return &Ranker{strategy: strategy}
}

// Strategy returns the active strategy.
func (r *Ranker) Strategy() Strategy { return r.strategy }

// SetStrategy switches the scoring model. The current selection is
// kept; it will be re-scored on the next rank.
func (r *Ranker) SetStrategy(s Strategy) { r.strategy = s }

// Rank re-scores targets in place under the active strategy and sorts
// them by descending priority. The sort is stable: equal scores keep
// scan order, which is the only tie-break guarantee.
func (r *Ranker) Rank(targets []pursuit.Target, cam pursuit.CameraState) []pursuit.Target {
	for i := range targets {
		targets[i].Priority = r.strategy.Score(targets[i], cam)
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].Priority > targets[j].Priority
	})
	return targets
}

// Select applies the retention rule and returns the current target.
// The existing selection is kept while it stays in the ranked list
// under the same ID with a distance inside [MinTargetDistance,
// maxDistance]. Otherwise the top-ranked target is adopted, or the
// selection clears when the list is empty.
//
// The returned pointer is stable across ticks for a retained target;
// its fields are refreshed from the latest scan each call.
func (r *Ranker) Select(ranked []pursuit.Target, maxDistance float64) *pursuit.Target {
	if r.current != nil {
		for i := range ranked {
			if ranked[i].ID != r.current.ID {
				continue
			}
			if ranked[i].Distance >= pursuit.MinTargetDistance && ranked[i].Distance <= maxDistance {
				first := r.current.FirstSeen
				*r.current = ranked[i]
				r.current.FirstSeen = first
				r.current.Tracked = true
				ranked[i].Tracked = true
				return r.current
			}
			break
		}
	}

	if len(ranked) == 0 {
		r.current = nil
		return nil
	}
	adopted := ranked[0]
	adopted.Tracked = true
	ranked[0].Tracked = true
	r.current = &adopted
	return r.current
}

// Current returns the retained target, or nil.
func (r *Ranker) Current() *pursuit.Target { return r.current }

// Clear drops the current selection.
func (r *Ranker) Clear() { r.current = nil }
