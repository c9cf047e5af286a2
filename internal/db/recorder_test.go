package db

import (
	"testing"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/pipeline"
)

func trackingReport(tickNs int64, captured bool) pipeline.TickReport {
	target := pursuit.Target{
		ID:       "trk_rec",
		Class:    "drone",
		Pos:      geom.Vec3{X: 10, Y: 20, Z: 5},
		Vel:      geom.Vec3{X: 1, Y: 0, Z: 0},
		Distance: 22.9,
		Screen:   geom.Vec2{X: 980, Y: 520},
		Priority: 43.6,
		Visible:  true,
	}
	return pipeline.TickReport{
		Time:       time.Unix(0, tickNs),
		State:      pipeline.StateAiming,
		Work:       3 * time.Millisecond,
		DesiredHz:  60,
		Targets:    1,
		CurrentID:  target.ID,
		Delta:      geom.Vec2{X: 4, Y: -3},
		Captured:   captured,
		Current:    &target,
		CenterDist: 28.3,
	}
}

func emptyReport(tickNs int64) pipeline.TickReport {
	return pipeline.TickReport{
		Time:      time.Unix(0, tickNs),
		State:     pipeline.StateIdle,
		Work:      time.Millisecond,
		DesiredHz: 60,
		Empty:     true,
	}
}

func countRows(t *testing.T, db *DB, table, sessionID string) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM "+table+" WHERE session_id = ?",
		sessionID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count %s rows: %v", table, err)
	}
	return count
}

// TestRecorderPersistsReports verifies one report of each shape lands
// in the right tables after Close drains the queue
func TestRecorderPersistsReports(t *testing.T) {
	db := newTestDB(t)

	s := &Session{}
	if err := db.InsertSession(s); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}

	rec := NewRecorder(db, s.ID)
	rec.Observe(emptyReport(1000))
	rec.Observe(trackingReport(2000, false))
	rec.Observe(trackingReport(3000, true))
	if err := rec.Close(); err != nil {
		t.Fatalf("Failed to close recorder: %v", err)
	}

	if got := countRows(t, db, "tick_stats", s.ID); got != 3 {
		t.Errorf("Expected 3 tick_stats rows, got %d", got)
	}
	if got := countRows(t, db, "track_snapshots", s.ID); got != 2 {
		t.Errorf("Expected 2 track_snapshots rows, got %d", got)
	}
	if got := countRows(t, db, "drive_commands", s.ID); got != 2 {
		t.Errorf("Expected 2 drive_commands rows, got %d", got)
	}
	if got := countRows(t, db, "capture_events", s.ID); got != 1 {
		t.Errorf("Expected 1 capture_events row, got %d", got)
	}

	written, dropped := rec.Stats()
	if written != 3 {
		t.Errorf("Expected 3 written reports, got %d", written)
	}
	if dropped != 0 {
		t.Errorf("Expected 0 dropped reports, got %d", dropped)
	}

	// Spot-check the persisted track row
	var screenX, centerDist float64
	err := db.QueryRow(`
		SELECT screen_x, center_dist_px FROM track_snapshots
		WHERE session_id = ? AND tick_ns = 2000`, s.ID,
	).Scan(&screenX, &centerDist)
	if err != nil {
		t.Fatalf("Failed to read track snapshot: %v", err)
	}
	if screenX != 980 {
		t.Errorf("Expected screen_x 980, got %f", screenX)
	}
	if centerDist != 28.3 {
		t.Errorf("Expected center_dist_px 28.3, got %f", centerDist)
	}

	// Drive rows carry the precomputed step length
	var stepPx float64
	err = db.QueryRow(`
		SELECT step_px FROM drive_commands
		WHERE session_id = ? AND tick_ns = 2000`, s.ID,
	).Scan(&stepPx)
	if err != nil {
		t.Fatalf("Failed to read drive command: %v", err)
	}
	if stepPx != 5.0 {
		t.Errorf("Expected step_px 5.0 for delta (4,-3), got %f", stepPx)
	}
}

// TestRecorderBatchesLargeRuns pushes enough reports to force several
// size-triggered flushes before the final drain
func TestRecorderBatchesLargeRuns(t *testing.T) {
	db := newTestDB(t)

	s := &Session{}
	if err := db.InsertSession(s); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}

	const reports = 150 // more than two full batches
	rec := NewRecorder(db, s.ID)
	for i := 0; i < reports; i++ {
		rec.Observe(emptyReport(int64(i + 1)))
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Failed to close recorder: %v", err)
	}

	if got := countRows(t, db, "tick_stats", s.ID); got != reports {
		t.Errorf("Expected %d tick_stats rows, got %d", reports, got)
	}

	// 150 reports fit inside the recorder buffer, so none are shed
	written, dropped := rec.Stats()
	if written != reports {
		t.Errorf("Expected %d written reports, got %d", reports, written)
	}
	if dropped != 0 {
		t.Errorf("Expected 0 dropped reports, got %d", dropped)
	}
}

// TestRecorderSessionStats verifies the recorded rows feed the session
// aggregates end to end
func TestRecorderSessionStats(t *testing.T) {
	db := newTestDB(t)

	s := &Session{}
	if err := db.InsertSession(s); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}

	rec := NewRecorder(db, s.ID)
	rec.Observe(trackingReport(5000, true))
	rec.Observe(trackingReport(6000, false))
	if err := rec.Close(); err != nil {
		t.Fatalf("Failed to close recorder: %v", err)
	}

	stats, err := db.GetSessionStats(s.ID)
	if err != nil {
		t.Fatalf("Failed to get session stats: %v", err)
	}
	if stats.Ticks != 2 {
		t.Errorf("Expected 2 ticks, got %d", stats.Ticks)
	}
	if stats.Targets != 1 {
		t.Errorf("Expected 1 distinct target, got %d", stats.Targets)
	}
	if stats.Captures != 1 {
		t.Errorf("Expected 1 capture, got %d", stats.Captures)
	}
	if stats.TotalSlewPx != 10.0 {
		t.Errorf("Expected 10.0px total slew, got %f", stats.TotalSlewPx)
	}
}
