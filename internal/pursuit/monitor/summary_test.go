package monitor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-optics/pursuit.camera/internal/db"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// seedSession writes a session with known rows: five ticks with work
// times 1..5 ms, four tracked ticks split across two targets, two
// moves and one capture over a one minute session.
func seedSession(t *testing.T, database *db.DB) string {
	t.Helper()

	const base = int64(1_000_000_000)
	ended := base + 60*int64(1e9)
	s := &db.Session{ID: "ses_report_test", StartedAtNs: base, EndedAtNs: &ended}
	require.NoError(t, database.InsertSession(s))

	for i := 0; i < 5; i++ {
		_, err := database.Exec(`
			INSERT INTO tick_stats (
				session_id, tick_ns, state, work_ms, desired_hz,
				target_count, dropped, empty
			) VALUES (?, ?, 'tracking', ?, 60, 2, 0, 0)`,
			s.ID, base+int64(i)*100_000_000, float64(i+1),
		)
		require.NoError(t, err)
	}

	tracks := []struct {
		tick     int
		targetID string
		center   float64
		vx, vz   float64
		posX     float64
	}{
		{1, "trk_a", 10, 3, 0, 5},
		{2, "trk_a", 20, 3, 0, 6},
		{3, "trk_a", 30, 3, 0, 7},
		{4, "trk_b", 100, 0, 12, -40},
	}
	for _, tr := range tracks {
		_, err := database.Exec(`
			INSERT INTO track_snapshots (
				session_id, tick_ns, target_id, class,
				pos_x, pos_y, pos_z, vel_x, vel_y, vel_z,
				distance_m, screen_x, screen_y, center_dist_px,
				priority, visible
			) VALUES (?, ?, ?, 'drone', ?, 50, 30, ?, 4, ?, 60, 960, 540, ?, 10, 1)`,
			s.ID, base+int64(tr.tick)*100_000_000, tr.targetID,
			tr.posX, tr.vx, tr.vz, tr.center,
		)
		require.NoError(t, err)
	}

	for i, step := range []float64{3, 5} {
		_, err := database.Exec(`
			INSERT INTO drive_commands (session_id, tick_ns, dx, dy, step_px)
			VALUES (?, ?, ?, 0, ?)`,
			s.ID, base+int64(i+1)*100_000_000, step, step,
		)
		require.NoError(t, err)
	}

	_, err := database.Exec(`
		INSERT INTO capture_events (session_id, tick_ns, target_id, center_dist_px)
		VALUES (?, ?, 'trk_a', 30)`,
		s.ID, base+300_000_000,
	)
	require.NoError(t, err)

	return s.ID
}

func TestComputeSummary(t *testing.T) {
	database := newTestDB(t)
	sessionID := seedSession(t, database)

	sum, err := ComputeSummary(database, sessionID)
	require.NoError(t, err)

	require.Equal(t, sessionID, sum.Session.ID)
	require.InDelta(t, 60.0, sum.DurationS, 1e-9)
	require.InDelta(t, 0.8, sum.TimeOnTarget, 1e-9) // 4 tracked of 5 ticks

	// Centre errors 10, 20, 30, 100.
	require.InDelta(t, 40.0, sum.CenterMeanPx, 1e-9)
	require.InDelta(t, 20.0, sum.CenterMedianPx, 1e-9)
	require.InDelta(t, 100.0, sum.CenterP95Px, 1e-9)

	// Work samples 1..5 ms.
	require.InDelta(t, 3.0, sum.WorkMeanMs, 1e-9)
	require.InDelta(t, 3.0, sum.WorkP50Ms, 1e-9)
	require.InDelta(t, 5.0, sum.WorkP95Ms, 1e-9)

	// Speeds: three ticks at |(3,4,0)| = 5, one at |(0,4,12)|.
	wantOdd := 12.649110640673518 // sqrt(160)
	require.InDelta(t, (3*5.0+wantOdd)/4, sum.MeanSpeedMps, 1e-9)
	require.InDelta(t, wantOdd, sum.MaxSpeedMps, 1e-9)

	require.InDelta(t, 4.0, sum.MeanSlewPx, 1e-9) // steps 3 and 5
	require.InDelta(t, 1.0, sum.CapturesPerMin, 1e-9)

	require.Len(t, sum.Targets, 2)
	require.Equal(t, "trk_a", sum.Targets[0].TargetID)
	require.EqualValues(t, 3, sum.Targets[0].Points)
	require.EqualValues(t, 1, sum.Targets[0].Captures)
}

func TestComputeSummaryEmptySession(t *testing.T) {
	database := newTestDB(t)
	require.NoError(t, database.InsertSession(&db.Session{ID: "ses_empty"}))

	sum, err := ComputeSummary(database, "ses_empty")
	require.NoError(t, err)

	require.Zero(t, sum.TimeOnTarget)
	require.Zero(t, sum.CenterMeanPx)
	require.Zero(t, sum.WorkP95Ms)
	require.Zero(t, sum.CapturesPerMin)
	require.Empty(t, sum.Targets)
}

func TestComputeSummaryUnknownSession(t *testing.T) {
	database := newTestDB(t)

	_, err := ComputeSummary(database, "ses_missing")
	require.Error(t, err)
}

func TestSummarizeQuantiles(t *testing.T) {
	mean, qs := summarize([]float64{4, 2, 1, 3, 5}, 0.5, 0.95)
	require.InDelta(t, 3.0, mean, 1e-9)
	require.InDelta(t, 3.0, qs[0], 1e-9)
	require.InDelta(t, 5.0, qs[1], 1e-9)

	mean, qs = summarize(nil, 0.5)
	require.Zero(t, mean)
	require.Zero(t, qs[0])
}
