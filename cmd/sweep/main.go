// Command sweep grid-searches tracker tuning against a recorded
// scenario. It drives a RUNNING daemon over the HTTP API: for every
// strategy x smoothing x prediction-strength combination it applies
// the tuning, replays the scenario, samples centre error and slew
// while the replay runs, and scores the run. Results land in a summary
// CSV, a raw per-sample CSV, and optionally the sweep_results table.
//
// The daemon must be running its feed listener (without -dev; a
// missing -port falls back to the modelled head, so no hardware is
// needed). The scenario path is resolved on the daemon side.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kestrel-optics/pursuit.camera/internal/api"
	"github.com/kestrel-optics/pursuit.camera/internal/config"
	"github.com/kestrel-optics/pursuit.camera/internal/db"
)

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseCSVStringSlice parses a comma-separated list, dropping empties
func parseCSVStringSlice(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

type comboParams struct {
	Strategy   string
	Smoothing  float64
	Prediction float64
}

type sampleResult struct {
	Timestamp   time.Time
	State       string
	TargetID    string
	HasTarget   bool
	CenterErrPx float64
	SlewPx      float64
	Targets     int
	DesiredHz   float64
}

type comboResult struct {
	comboParams
	Samples      int
	Ticks        uint64
	Moves        uint64
	Captures     int64
	MeanErrPx    float64
	P50ErrPx     float64
	P95ErrPx     float64
	TimeOnTarget float64
	MeanSlewPx   float64
	Score        float64
}

type scoreWeights struct {
	Error   float64
	Capture float64
	Slew    float64
}

// score rewards time on target and captures and penalises centre error
// and aggressive slewing. Higher is better.
func (w scoreWeights) score(r comboResult) float64 {
	return 100*r.TimeOnTarget + w.Capture*float64(r.Captures) - w.Error*r.P95ErrPx - w.Slew*r.MeanSlewPx
}

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "Base URL for the tracker daemon")
	scenario := flag.String("scenario", "", "Scenario file to replay (path as seen by the daemon)")

	// Parameter axes
	strategyList := flag.String("strategies", "closest,centered,threat,adaptive", "Comma-separated selection strategies")
	smoothingList := flag.String("smoothing", "0.2,0.35,0.5", "Comma-separated smoothing factors")
	predictionList := flag.String("prediction", "0,0.5,1", "Comma-separated prediction strengths (0 disables prediction)")

	// Replay and sampling
	fast := flag.Bool("fast", true, "Replay without wall-clock pacing")
	interval := flag.Duration("interval", 250*time.Millisecond, "Interval between samples")
	replayTimeout := flag.Duration("replay-timeout", 5*time.Minute, "Maximum time to wait for one replay")

	// Outputs
	output := flag.String("output", "", "Output CSV filename (defaults to sweep-<timestamp>.csv)")
	dbPath := flag.String("db", "", "Optional database to record results into (sweep_results table)")

	// Score weights
	errWeight := flag.Float64("w-error", 1.0, "Score penalty per px of p95 centre error")
	captureWeight := flag.Float64("w-capture", 5.0, "Score reward per capture")
	slewWeight := flag.Float64("w-slew", 0.2, "Score penalty per px of mean slew step")

	flag.Parse()

	if *scenario == "" {
		log.Fatal("Error: -scenario flag is required")
	}

	strategies := parseCSVStringSlice(*strategyList)
	validStrategies := map[string]bool{
		config.StrategyClosest:  true,
		config.StrategyCentered: true,
		config.StrategyThreat:   true,
		config.StrategyAdaptive: true,
	}
	for _, s := range strategies {
		if !validStrategies[s] {
			log.Fatalf("Invalid strategy %q (must be %s, %s, %s, or %s)",
				s, config.StrategyClosest, config.StrategyCentered, config.StrategyThreat, config.StrategyAdaptive)
		}
	}
	smoothings, err := parseCSVFloatSlice(*smoothingList)
	if err != nil {
		log.Fatalf("Invalid -smoothing list: %v", err)
	}
	predictions, err := parseCSVFloatSlice(*predictionList)
	if err != nil {
		log.Fatalf("Invalid -prediction list: %v", err)
	}
	if len(strategies) == 0 || len(smoothings) == 0 || len(predictions) == 0 {
		log.Fatal("Error: every parameter axis needs at least one value")
	}

	weights := scoreWeights{Error: *errWeight, Capture: *captureWeight, Slew: *slewWeight}

	client := api.NewClient(nil, *apiURL)

	status, err := client.Status()
	if err != nil {
		log.Fatalf("Cannot reach daemon at %s: %v", *apiURL, err)
	}
	log.Printf("Daemon session %s, engine state %s", status.SessionID, status.Engine.State)
	if !status.Engine.Enabled {
		if err := client.Enable(true); err != nil {
			log.Fatalf("Could not enable tracking: %v", err)
		}
		log.Printf("Tracking was disabled; enabled it for the sweep")
	}

	// Snapshot the active tuning so the daemon is left as found.
	originalTuning, err := client.GetConfig()
	if err != nil {
		log.Fatalf("Could not fetch current tuning: %v", err)
	}

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Could not open database %s: %v", *dbPath, err)
		}
		defer database.Close()
	}

	totalCombos := len(strategies) * len(smoothings) * len(predictions)
	log.Printf("Parameter combinations: %d (strategies: %d, smoothing: %d, prediction: %d)",
		totalCombos, len(strategies), len(smoothings), len(predictions))

	// Prepare output files
	filename := *output
	if filename == "" {
		filename = fmt.Sprintf("sweep-%s.csv", time.Now().Format("20060102-150405"))
	}

	f, err := os.Create(filename)
	if err != nil {
		log.Fatalf("Could not create output file %s: %v", filename, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	rawFilename := strings.TrimSuffix(filename, ".csv") + "-raw.csv"
	fRaw, err := os.Create(rawFilename)
	if err != nil {
		log.Fatalf("Could not create raw output file %s: %v", rawFilename, err)
	}
	defer fRaw.Close()
	rawW := csv.NewWriter(fRaw)
	defer rawW.Flush()

	writeHeaders(w, rawW)

	// Run sweep
	comboNum := 0
	var results []comboResult

	for _, strat := range strategies {
		for _, smoothing := range smoothings {
			for _, prediction := range predictions {
				comboNum++
				log.Printf("\n=== Combination %d/%d: strategy=%s, smoothing=%.2f, prediction=%.2f ===",
					comboNum, totalCombos, strat, smoothing, prediction)

				params := comboParams{Strategy: strat, Smoothing: smoothing, Prediction: prediction}
				res, err := runCombo(client, params, *scenario, *fast, *interval, *replayTimeout, weights, rawW)
				if err != nil {
					log.Printf("ERROR: Combination failed: %v", err)
					continue
				}

				log.Printf("Results: p95_error=%.1fpx, time_on_target=%.0f%%, captures=%d, score=%.1f",
					res.P95ErrPx, res.TimeOnTarget*100, res.Captures, res.Score)

				writeSummary(w, res)
				if database != nil {
					recordResult(database, *scenario, res)
				}
				results = append(results, res)
			}
		}
	}

	if _, err := client.SetConfig(originalTuning); err != nil {
		log.Printf("WARNING: Could not restore original tuning: %v", err)
	} else {
		log.Printf("Restored original tuning")
	}

	printRanking(results)

	log.Printf("\nSweep complete!")
	log.Printf("Summary: %s", filename)
	log.Printf("Raw data: %s", rawFilename)
	if database != nil {
		log.Printf("Recorded %d results to %s", len(results), *dbPath)
	}
}

// runCombo applies one tuning combination, replays the scenario, and
// samples the run until the replay ends.
func runCombo(client *api.Client, p comboParams, scenario string, fast bool, interval, timeout time.Duration, weights scoreWeights, rawW *csv.Writer) (comboResult, error) {
	predictionOn := p.Prediction > 0
	patch := &config.Tuning{
		Strategy:           &p.Strategy,
		SmoothingFactor:    &p.Smoothing,
		PredictionEnabled:  &predictionOn,
		PredictionStrength: &p.Prediction,
	}
	if err := patch.Validate(); err != nil {
		return comboResult{}, fmt.Errorf("invalid tuning: %w", err)
	}
	if _, err := client.SetConfig(patch); err != nil {
		return comboResult{}, fmt.Errorf("apply tuning: %w", err)
	}
	log.Printf("Applied: strategy=%s, smoothing=%.2f, prediction=%.2f (enabled=%v)",
		p.Strategy, p.Smoothing, p.Prediction, predictionOn)

	before, err := client.Status()
	if err != nil {
		return comboResult{}, fmt.Errorf("status before replay: %w", err)
	}

	// StartReplay retries on 409 while a previous replay drains.
	if _, err := client.StartReplay(scenario, fast, 0); err != nil {
		return comboResult{}, fmt.Errorf("start replay: %w", err)
	}

	samples := sampleRun(client, p, interval, timeout, rawW)

	after, err := client.Status()
	if err != nil {
		return comboResult{}, fmt.Errorf("status after replay: %w", err)
	}

	return summarizeCombo(p, samples, before, after, weights), nil
}

// sampleRun samples the daemon on the given interval until the replay
// in flight completes or times out.
func sampleRun(client *api.Client, p comboParams, interval, timeout time.Duration, rawW *csv.Writer) []sampleResult {
	done := make(chan error, 1)
	go func() { done <- client.WaitForReplayComplete(timeout) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var samples []sampleResult
	for i := 0; ; i++ {
		select {
		case err := <-done:
			if err != nil {
				log.Printf("WARNING: %v", err)
			}
			return samples
		case <-ticker.C:
			s, ok := takeSample(client, i)
			if !ok {
				continue
			}
			samples = append(samples, s)
			writeRawRow(rawW, p, i, s)
		}
	}
}

// takeSample reads one status/targets pair. Centre error is the pixel
// distance between the current target and the frame centre; samples
// with no current target count against time on target.
func takeSample(client *api.Client, i int) (sampleResult, bool) {
	st, err := client.Status()
	if err != nil {
		log.Printf("WARNING: Sample %d failed: %v", i+1, err)
		return sampleResult{}, false
	}

	s := sampleResult{
		Timestamp: time.Now(),
		State:     string(st.Engine.State),
		SlewPx:    st.Engine.Aim.LastDelta.Len(),
		Targets:   st.Engine.Targets,
		DesiredHz: st.Engine.DesiredHz,
	}

	targets, err := client.Targets()
	if err == nil && targets.Current != nil {
		s.TargetID = targets.Current.ID
		s.CenterErrPx = targets.Current.Screen.Sub(st.Engine.Camera.Center()).Len()
		s.HasTarget = true
	}
	return s, true
}

func summarizeCombo(p comboParams, samples []sampleResult, before, after *api.StatusResponse, weights scoreWeights) comboResult {
	res := comboResult{comboParams: p, Samples: len(samples)}
	res.Ticks = after.Engine.Ticks - before.Engine.Ticks
	res.Moves = after.Engine.Moves - before.Engine.Moves
	res.Captures = int64(after.Engine.Captures - before.Engine.Captures)

	var errs, slews []float64
	onTarget := 0
	for _, s := range samples {
		if s.HasTarget {
			errs = append(errs, s.CenterErrPx)
			onTarget++
		}
		slews = append(slews, s.SlewPx)
	}
	if len(samples) > 0 {
		res.TimeOnTarget = float64(onTarget) / float64(len(samples))
	}
	if len(errs) > 0 {
		sorted := append([]float64(nil), errs...)
		sort.Float64s(sorted)
		res.MeanErrPx = stat.Mean(sorted, nil)
		res.P50ErrPx = stat.Quantile(0.50, stat.Empirical, sorted, nil)
		res.P95ErrPx = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}
	if len(slews) > 0 {
		res.MeanSlewPx = stat.Mean(slews, nil)
	}

	res.Score = weights.score(res)
	return res
}

func writeHeaders(w, rawW *csv.Writer) {
	w.Write([]string{
		"strategy", "smoothing", "prediction",
		"samples", "ticks", "moves", "captures",
		"mean_error_px", "p50_error_px", "p95_error_px",
		"time_on_target", "mean_slew_px", "score",
	})

	rawW.Write([]string{
		"strategy", "smoothing", "prediction",
		"sample", "timestamp", "state", "target_id",
		"center_error_px", "slew_px", "targets", "desired_hz",
	})
}

func writeRawRow(w *csv.Writer, p comboParams, iter int, s sampleResult) {
	row := []string{
		p.Strategy,
		fmt.Sprintf("%.4f", p.Smoothing),
		fmt.Sprintf("%.4f", p.Prediction),
		fmt.Sprintf("%d", iter),
		s.Timestamp.Format(time.RFC3339Nano),
		s.State,
		s.TargetID,
		fmt.Sprintf("%.3f", s.CenterErrPx),
		fmt.Sprintf("%.3f", s.SlewPx),
		fmt.Sprintf("%d", s.Targets),
		fmt.Sprintf("%.1f", s.DesiredHz),
	}
	w.Write(row)
	w.Flush()
}

func writeSummary(w *csv.Writer, r comboResult) {
	row := []string{
		r.Strategy,
		fmt.Sprintf("%.4f", r.Smoothing),
		fmt.Sprintf("%.4f", r.Prediction),
		fmt.Sprintf("%d", r.Samples),
		fmt.Sprintf("%d", r.Ticks),
		fmt.Sprintf("%d", r.Moves),
		fmt.Sprintf("%d", r.Captures),
		fmt.Sprintf("%.3f", r.MeanErrPx),
		fmt.Sprintf("%.3f", r.P50ErrPx),
		fmt.Sprintf("%.3f", r.P95ErrPx),
		fmt.Sprintf("%.4f", r.TimeOnTarget),
		fmt.Sprintf("%.3f", r.MeanSlewPx),
		fmt.Sprintf("%.2f", r.Score),
	}
	w.Write(row)
	w.Flush()
}

func recordResult(database *db.DB, scenario string, r comboResult) {
	rec := &db.SweepResult{
		Scenario:     scenario,
		Strategy:     r.Strategy,
		Smoothing:    r.Smoothing,
		Prediction:   r.Prediction > 0,
		MeanErrorPx:  r.MeanErrPx,
		P95ErrorPx:   r.P95ErrPx,
		TimeOnTarget: r.TimeOnTarget,
		Captures:     r.Captures,
		SlewPx:       r.MeanSlewPx,
		Score:        r.Score,
	}
	if err := database.InsertSweepResult(rec); err != nil {
		log.Printf("WARNING: Could not record result: %v", err)
	}
}

func printRanking(results []comboResult) {
	if len(results) == 0 {
		log.Printf("\nNo combinations completed")
		return
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	log.Printf("\nRanked combinations:")
	for i, r := range results {
		log.Printf("%2d. strategy=%-8s smoothing=%.2f prediction=%.2f  score=%8.1f  p95=%.1fpx  on_target=%.0f%%  captures=%d",
			i+1, r.Strategy, r.Smoothing, r.Prediction, r.Score, r.P95ErrPx, r.TimeOnTarget*100, r.Captures)
	}

	best := results[0]
	log.Printf("\nBest: strategy=%s, smoothing=%.2f, prediction=%.2f (score %.1f)",
		best.Strategy, best.Smoothing, best.Prediction, best.Score)
}
