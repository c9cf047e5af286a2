// Package monitor renders recorded tracking sessions into offline
// reports: aggregate statistics, an HTML page of charts, and PNG plots
// of the flight paths the head followed.
package monitor

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kestrel-optics/pursuit.camera/internal/db"
)

// Summary condenses one recorded session into report-ready numbers.
// Pixel statistics describe the selected track's distance from frame
// centre; work statistics describe per-tick pipeline time.
type Summary struct {
	Session *db.Session        `json:"session"`
	Stats   *db.SessionStats   `json:"stats"`
	Targets []db.TargetSummary `json:"targets,omitempty"`

	DurationS    float64 `json:"duration_s"`
	TimeOnTarget float64 `json:"time_on_target"`

	CenterMeanPx   float64 `json:"center_mean_px"`
	CenterMedianPx float64 `json:"center_median_px"`
	CenterP95Px    float64 `json:"center_p95_px"`

	WorkMeanMs float64 `json:"work_mean_ms"`
	WorkP50Ms  float64 `json:"work_p50_ms"`
	WorkP95Ms  float64 `json:"work_p95_ms"`

	MeanSpeedMps float64 `json:"mean_speed_mps"`
	MaxSpeedMps  float64 `json:"max_speed_mps"`

	MeanSlewPx     float64 `json:"mean_slew_px"`
	CapturesPerMin float64 `json:"captures_per_min"`
}

// ComputeSummary loads a session's recorded rows and reduces them.
// Sessions with no recorded ticks produce zeroed statistics.
func ComputeSummary(database *db.DB, sessionID string) (*Summary, error) {
	session, err := database.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	stats, err := database.GetSessionStats(sessionID)
	if err != nil {
		return nil, err
	}
	targets, err := database.SessionTargets(sessionID)
	if err != nil {
		return nil, err
	}
	centers, err := database.CenterErrors(sessionID)
	if err != nil {
		return nil, fmt.Errorf("centre errors: %w", err)
	}
	work, err := database.WorkSamples(sessionID)
	if err != nil {
		return nil, fmt.Errorf("work samples: %w", err)
	}
	points, err := database.TrackHistory(sessionID, "")
	if err != nil {
		return nil, err
	}

	s := &Summary{Session: session, Stats: stats, Targets: targets}

	endNs := stats.LastTickNs
	if session.EndedAtNs != nil {
		endNs = *session.EndedAtNs
	}
	if endNs > session.StartedAtNs {
		s.DurationS = float64(endNs-session.StartedAtNs) / 1e9
	}
	if stats.Ticks > 0 {
		s.TimeOnTarget = float64(stats.TrackedTicks) / float64(stats.Ticks)
	}

	var cq, wq []float64
	s.CenterMeanPx, cq = summarize(centers, 0.5, 0.95)
	s.CenterMedianPx, s.CenterP95Px = cq[0], cq[1]
	s.WorkMeanMs, wq = summarize(work, 0.5, 0.95)
	s.WorkP50Ms, s.WorkP95Ms = wq[0], wq[1]

	s.MeanSpeedMps, s.MaxSpeedMps = speedStats(points)

	if stats.Moves > 0 {
		s.MeanSlewPx = stats.TotalSlewPx / float64(stats.Moves)
	}
	if s.DurationS > 0 {
		s.CapturesPerMin = float64(stats.Captures) / (s.DurationS / 60)
	}

	return s, nil
}

// summarize returns the mean and the requested quantiles of series.
// gonum's Quantile needs sorted input, so the series is copied and
// sorted first. An empty series yields zeros.
func summarize(series []float64, qs ...float64) (float64, []float64) {
	out := make([]float64, len(qs))
	if len(series) == 0 {
		return 0, out
	}

	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)

	for i, q := range qs {
		out[i] = stat.Quantile(q, stat.Empirical, sorted, nil)
	}
	return stat.Mean(sorted, nil), out
}

// speedStats reduces track snapshots to the mean and peak estimated
// target speed in metres per second.
func speedStats(points []db.TrackPoint) (mean, max float64) {
	if len(points) == 0 {
		return 0, 0
	}
	var sum float64
	for _, p := range points {
		v := math.Sqrt(p.VelX*p.VelX + p.VelY*p.VelY + p.VelZ*p.VelZ)
		sum += v
		if v > max {
			max = v
		}
	}
	return sum / float64(len(points)), max
}
