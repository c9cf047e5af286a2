package db

import (
	"fmt"
	"time"
)

// SweepResult is one parameter combination's score from an offline
// tuning sweep against a recorded scenario.
type SweepResult struct {
	SweptAtNs    int64   `json:"swept_at_ns"`
	Scenario     string  `json:"scenario"`
	Strategy     string  `json:"strategy"`
	Smoothing    float64 `json:"smoothing"`
	Prediction   bool    `json:"prediction"`
	MeanErrorPx  float64 `json:"mean_error_px"`
	P95ErrorPx   float64 `json:"p95_error_px"`
	TimeOnTarget float64 `json:"time_on_target"`
	Captures     int64   `json:"captures"`
	SlewPx       float64 `json:"slew_px"`
	Score        float64 `json:"score"`
}

// InsertSweepResult records one sweep combination. A zero SweptAtNs is
// stamped with the current time.
func (db *DB) InsertSweepResult(res *SweepResult) error {
	if res.SweptAtNs == 0 {
		res.SweptAtNs = time.Now().UnixNano()
	}

	query := `
		INSERT INTO sweep_results (
			swept_at_ns, scenario, strategy, smoothing, prediction,
			mean_error_px, p95_error_px, time_on_target, captures,
			slew_px, score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		res.SweptAtNs,
		res.Scenario,
		res.Strategy,
		res.Smoothing,
		boolToInt(res.Prediction),
		res.MeanErrorPx,
		res.P95ErrorPx,
		res.TimeOnTarget,
		res.Captures,
		res.SlewPx,
		res.Score,
	)
	if err != nil {
		return fmt.Errorf("insert sweep result: %w", err)
	}

	return nil
}

// SweepResults retrieves sweep results best-score-first. An empty
// scenario returns results across all scenarios; a limit of 0 or less
// defaults to 100.
func (db *DB) SweepResults(scenario string, limit int) ([]SweepResult, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT swept_at_ns, scenario, strategy, smoothing, prediction,
		       mean_error_px, p95_error_px, time_on_target, captures,
		       slew_px, score
		FROM sweep_results
	`
	args := []interface{}{}
	if scenario != "" {
		query += " WHERE scenario = ?"
		args = append(args, scenario)
	}
	query += " ORDER BY score DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("sweep results: %w", err)
	}
	defer rows.Close()

	var results []SweepResult
	for rows.Next() {
		var res SweepResult
		var prediction int
		if err := rows.Scan(
			&res.SweptAtNs,
			&res.Scenario,
			&res.Strategy,
			&res.Smoothing,
			&prediction,
			&res.MeanErrorPx,
			&res.P95ErrorPx,
			&res.TimeOnTarget,
			&res.Captures,
			&res.SlewPx,
			&res.Score,
		); err != nil {
			return nil, fmt.Errorf("scan sweep result: %w", err)
		}
		res.Prediction = prediction != 0
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// BestSweepResult returns the highest-scoring combination for a
// scenario.
func (db *DB) BestSweepResult(scenario string) (*SweepResult, error) {
	results, err := db.SweepResults(scenario, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no sweep results for scenario %q", scenario)
	}
	return &results[0], nil
}
