package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
)

// Session is one run of the tracking engine from startup to shutdown.
// EndedAtNs stays nil while the session is live.
type Session struct {
	ID          string          `json:"id"`
	StartedAtNs int64           `json:"started_at_ns"`
	EndedAtNs   *int64          `json:"ended_at_ns,omitempty"`
	FeedSource  string          `json:"feed_source,omitempty"`
	ConfigJSON  json.RawMessage `json:"config_json,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// InsertSession creates a new session row. If s.ID is empty a new
// session ID is generated; if StartedAtNs is zero the current time is
// used. The (possibly updated) session is returned.
func (db *DB) InsertSession(s *Session) error {
	if s.ID == "" {
		s.ID = pursuit.NewSessionID()
	}
	if s.StartedAtNs == 0 {
		s.StartedAtNs = time.Now().UnixNano()
	}
	if len(s.ConfigJSON) == 0 {
		s.ConfigJSON = json.RawMessage("{}")
	}

	query := `
		INSERT INTO sessions (
			id, started_at_ns, ended_at_ns, feed_source, config_json, notes
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		s.ID,
		s.StartedAtNs,
		nullInt64(s.EndedAtNs),
		s.FeedSource,
		string(s.ConfigJSON),
		s.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(sessionID string, endedAtNs int64) error {
	res, err := db.Exec(
		"UPDATE sessions SET ended_at_ns = ? WHERE id = ?",
		endedAtNs, sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	query := `
		SELECT id, started_at_ns, ended_at_ns, feed_source, config_json, notes
		FROM sessions
		WHERE id = ?
	`

	var s Session
	var endedAtNs sql.NullInt64
	var configJSON string

	err := db.QueryRow(query, sessionID).Scan(
		&s.ID,
		&s.StartedAtNs,
		&endedAtNs,
		&s.FeedSource,
		&configJSON,
		&s.Notes,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if endedAtNs.Valid {
		v := endedAtNs.Int64
		s.EndedAtNs = &v
	}
	if configJSON != "" {
		s.ConfigJSON = json.RawMessage(configJSON)
	}

	return &s, nil
}

// ListSessions retrieves the most recent sessions, newest first.
// A limit of 0 or less defaults to 50.
func (db *DB) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, started_at_ns, ended_at_ns, feed_source, config_json, notes
		FROM sessions
		ORDER BY started_at_ns DESC
		LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		var endedAtNs sql.NullInt64
		var configJSON string

		if err := rows.Scan(
			&s.ID,
			&s.StartedAtNs,
			&endedAtNs,
			&s.FeedSource,
			&configJSON,
			&s.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		if endedAtNs.Valid {
			v := endedAtNs.Int64
			s.EndedAtNs = &v
		}
		if configJSON != "" {
			s.ConfigJSON = json.RawMessage(configJSON)
		}

		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// SessionStats aggregates a session's tick, drive and capture rows.
type SessionStats struct {
	SessionID     string  `json:"session_id"`
	Ticks         int64   `json:"ticks"`
	Drops         int64   `json:"drops"`
	EmptyTicks    int64   `json:"empty_ticks"`
	AvgWorkMs     float64 `json:"avg_work_ms"`
	MaxWorkMs     float64 `json:"max_work_ms"`
	TrackedTicks  int64   `json:"tracked_ticks"`
	Targets       int64   `json:"targets"`
	Moves         int64   `json:"moves"`
	TotalSlewPx   float64 `json:"total_slew_px"`
	Captures      int64   `json:"captures"`
	MeanCenterPx  float64 `json:"mean_center_px"`
	FirstTickNs   int64   `json:"first_tick_ns"`
	LastTickNs    int64   `json:"last_tick_ns"`
}

// GetSessionStats computes summary statistics for one session. A
// session with no recorded ticks returns zeroed stats, not an error.
func (db *DB) GetSessionStats(sessionID string) (*SessionStats, error) {
	stats := &SessionStats{SessionID: sessionID}

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(dropped), 0),
		       COALESCE(SUM(empty), 0),
		       COALESCE(AVG(work_ms), 0),
		       COALESCE(MAX(work_ms), 0),
		       COALESCE(MIN(tick_ns), 0),
		       COALESCE(MAX(tick_ns), 0)
		FROM tick_stats
		WHERE session_id = ?
	`
	err := db.QueryRow(query, sessionID).Scan(
		&stats.Ticks,
		&stats.Drops,
		&stats.EmptyTicks,
		&stats.AvgWorkMs,
		&stats.MaxWorkMs,
		&stats.FirstTickNs,
		&stats.LastTickNs,
	)
	if err != nil {
		return nil, fmt.Errorf("session tick stats: %w", err)
	}

	query = `
		SELECT COUNT(*),
		       COUNT(DISTINCT target_id),
		       COALESCE(AVG(center_dist_px), 0)
		FROM track_snapshots
		WHERE session_id = ?
	`
	err = db.QueryRow(query, sessionID).Scan(
		&stats.TrackedTicks,
		&stats.Targets,
		&stats.MeanCenterPx,
	)
	if err != nil {
		return nil, fmt.Errorf("session track stats: %w", err)
	}

	query = `
		SELECT COUNT(*), COALESCE(SUM(step_px), 0)
		FROM drive_commands
		WHERE session_id = ?
	`
	err = db.QueryRow(query, sessionID).Scan(&stats.Moves, &stats.TotalSlewPx)
	if err != nil {
		return nil, fmt.Errorf("session drive stats: %w", err)
	}

	err = db.QueryRow(
		"SELECT COUNT(*) FROM capture_events WHERE session_id = ?",
		sessionID,
	).Scan(&stats.Captures)
	if err != nil {
		return nil, fmt.Errorf("session capture stats: %w", err)
	}

	return stats, nil
}

// TrackPoint is one recorded snapshot of the selected track.
type TrackPoint struct {
	TickNs       int64   `json:"tick_ns"`
	TargetID     string  `json:"target_id"`
	Class        string  `json:"class,omitempty"`
	PosX         float64 `json:"pos_x"`
	PosY         float64 `json:"pos_y"`
	PosZ         float64 `json:"pos_z"`
	VelX         float64 `json:"vel_x"`
	VelY         float64 `json:"vel_y"`
	VelZ         float64 `json:"vel_z"`
	DistanceM    float64 `json:"distance_m"`
	ScreenX      float64 `json:"screen_x"`
	ScreenY      float64 `json:"screen_y"`
	CenterDistPx float64 `json:"center_dist_px"`
	Priority     float64 `json:"priority"`
	Visible      bool    `json:"visible"`
}

// TrackHistory retrieves the recorded snapshots for one session in
// tick order. An empty targetID returns snapshots for every target.
func (db *DB) TrackHistory(sessionID, targetID string) ([]TrackPoint, error) {
	query := `
		SELECT tick_ns, target_id, class,
		       pos_x, pos_y, pos_z, vel_x, vel_y, vel_z,
		       distance_m, screen_x, screen_y, center_dist_px,
		       priority, visible
		FROM track_snapshots
		WHERE session_id = ?
	`
	args := []interface{}{sessionID}
	if targetID != "" {
		query += " AND target_id = ?"
		args = append(args, targetID)
	}
	query += " ORDER BY tick_ns"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("track history: %w", err)
	}
	defer rows.Close()

	var points []TrackPoint
	for rows.Next() {
		var p TrackPoint
		var visible int
		if err := rows.Scan(
			&p.TickNs, &p.TargetID, &p.Class,
			&p.PosX, &p.PosY, &p.PosZ, &p.VelX, &p.VelY, &p.VelZ,
			&p.DistanceM, &p.ScreenX, &p.ScreenY, &p.CenterDistPx,
			&p.Priority, &visible,
		); err != nil {
			return nil, fmt.Errorf("scan track point: %w", err)
		}
		p.Visible = visible != 0
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return points, nil
}

// TargetSummary aggregates one target's snapshots within a session.
type TargetSummary struct {
	TargetID     string  `json:"target_id"`
	Class        string  `json:"class,omitempty"`
	Points       int64   `json:"points"`
	FirstTickNs  int64   `json:"first_tick_ns"`
	LastTickNs   int64   `json:"last_tick_ns"`
	MeanCenterPx float64 `json:"mean_center_px"`
	MinDistanceM float64 `json:"min_distance_m"`
	Captures     int64   `json:"captures"`
}

// SessionTargets summarises every target tracked during a session,
// most-tracked first.
func (db *DB) SessionTargets(sessionID string) ([]TargetSummary, error) {
	query := `
		SELECT t.target_id,
		       MAX(t.class),
		       COUNT(*),
		       MIN(t.tick_ns),
		       MAX(t.tick_ns),
		       AVG(t.center_dist_px),
		       MIN(t.distance_m),
		       (SELECT COUNT(*) FROM capture_events c
		        WHERE c.session_id = t.session_id AND c.target_id = t.target_id)
		FROM track_snapshots t
		WHERE t.session_id = ?
		GROUP BY t.target_id
		ORDER BY COUNT(*) DESC
	`

	rows, err := db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session targets: %w", err)
	}
	defer rows.Close()

	var summaries []TargetSummary
	for rows.Next() {
		var s TargetSummary
		if err := rows.Scan(
			&s.TargetID,
			&s.Class,
			&s.Points,
			&s.FirstTickNs,
			&s.LastTickNs,
			&s.MeanCenterPx,
			&s.MinDistanceM,
			&s.Captures,
		); err != nil {
			return nil, fmt.Errorf("scan target summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// TickRow is one recorded pipeline tick.
type TickRow struct {
	TickNs      int64   `json:"tick_ns"`
	State       string  `json:"state"`
	WorkMs      float64 `json:"work_ms"`
	DesiredHz   float64 `json:"desired_hz"`
	TargetCount int     `json:"target_count"`
	Dropped     bool    `json:"dropped"`
	Empty       bool    `json:"empty"`
}

// TickSeries retrieves a session's tick rows in tick order. A positive
// limit keeps only the most recent rows.
func (db *DB) TickSeries(sessionID string, limit int) ([]TickRow, error) {
	query := `
		SELECT tick_ns, state, work_ms, desired_hz, target_count, dropped, empty
		FROM tick_stats
		WHERE session_id = ?
		ORDER BY tick_ns
	`
	args := []interface{}{sessionID}
	if limit > 0 {
		query = `
			SELECT tick_ns, state, work_ms, desired_hz, target_count, dropped, empty
			FROM (
				SELECT tick_ns, state, work_ms, desired_hz, target_count, dropped, empty
				FROM tick_stats
				WHERE session_id = ?
				ORDER BY tick_ns DESC
				LIMIT ?
			)
			ORDER BY tick_ns
		`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("tick series: %w", err)
	}
	defer rows.Close()

	var ticks []TickRow
	for rows.Next() {
		var t TickRow
		var dropped, empty int
		if err := rows.Scan(
			&t.TickNs, &t.State, &t.WorkMs, &t.DesiredHz,
			&t.TargetCount, &dropped, &empty,
		); err != nil {
			return nil, fmt.Errorf("scan tick row: %w", err)
		}
		t.Dropped = dropped != 0
		t.Empty = empty != 0
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ticks, nil
}

// CenterErrors returns the per-tick centre error series for a session
// in tick order, for offline statistics.
func (db *DB) CenterErrors(sessionID string) ([]float64, error) {
	return db.floatSeries(
		"SELECT center_dist_px FROM track_snapshots WHERE session_id = ? ORDER BY tick_ns",
		sessionID,
	)
}

// WorkSamples returns the per-tick work durations in milliseconds for
// a session in tick order.
func (db *DB) WorkSamples(sessionID string) ([]float64, error) {
	return db.floatSeries(
		"SELECT work_ms FROM tick_stats WHERE session_id = ? ORDER BY tick_ns",
		sessionID,
	)
}

func (db *DB) floatSeries(query string, args ...interface{}) ([]float64, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		series = append(series, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return series, nil
}

// CaptureEvent is one auto-capture release.
type CaptureEvent struct {
	TickNs       int64   `json:"tick_ns"`
	TargetID     string  `json:"target_id"`
	CenterDistPx float64 `json:"center_dist_px"`
}

// CaptureEvents retrieves a session's capture events in tick order.
func (db *DB) CaptureEvents(sessionID string) ([]CaptureEvent, error) {
	query := `
		SELECT tick_ns, target_id, center_dist_px
		FROM capture_events
		WHERE session_id = ?
		ORDER BY tick_ns
	`

	rows, err := db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("capture events: %w", err)
	}
	defer rows.Close()

	var events []CaptureEvent
	for rows.Next() {
		var e CaptureEvent
		if err := rows.Scan(&e.TickNs, &e.TargetID, &e.CenterDistPx); err != nil {
			return nil, fmt.Errorf("scan capture event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
