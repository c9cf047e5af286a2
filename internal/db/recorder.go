package db

import (
	"sync/atomic"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/monitoring"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/pipeline"
)

const (
	// recorderBuffer is the number of tick reports that can queue
	// between the engine and the flusher before reports are shed.
	recorderBuffer = 256

	// flushBatch is the batch size that forces an immediate flush.
	flushBatch = 64

	// flushInterval bounds how stale a queued report can get when the
	// engine ticks slower than flushBatch per interval.
	flushInterval = 200 * time.Millisecond
)

// Recorder persists engine tick reports for one session. Observe is
// wired as the engine's observer hook and never blocks the tick path;
// a single goroutine batches reports and writes each batch in one
// transaction.
type Recorder struct {
	db        *DB
	sessionID string

	reports chan pipeline.TickReport
	done    chan struct{}

	written   atomic.Uint64
	dropped   atomic.Uint64
	flushErrs atomic.Uint64
}

// NewRecorder starts a recorder writing into database under sessionID.
// The session row should already exist; Close stops the recorder.
func NewRecorder(database *DB, sessionID string) *Recorder {
	r := &Recorder{
		db:        database,
		sessionID: sessionID,
		reports:   make(chan pipeline.TickReport, recorderBuffer),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

// Observe queues one tick report for persistence. When the buffer is
// full the report is counted as shed and discarded rather than
// stalling the caller.
func (r *Recorder) Observe(report pipeline.TickReport) {
	select {
	case r.reports <- report:
	default:
		r.dropped.Add(1)
	}
}

// Close drains queued reports, writes the final batch and stops the
// flusher. The recorder must not be observed after Close.
func (r *Recorder) Close() error {
	close(r.reports)
	<-r.done
	return nil
}

// Stats reports how many tick reports have been written and how many
// were shed because the buffer was full.
func (r *Recorder) Stats() (written, dropped uint64) {
	return r.written.Load(), r.dropped.Load()
}

func (r *Recorder) loop() {
	defer close(r.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]pipeline.TickReport, 0, flushBatch)
	for {
		select {
		case report, ok := <-r.reports:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, report)
			if len(batch) >= flushBatch {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []pipeline.TickReport) {
	if len(batch) == 0 {
		return
	}
	if err := r.writeBatch(batch); err != nil {
		r.flushErrs.Add(1)
		monitoring.Logf("db: recorder flush of %d reports failed: %v", len(batch), err)
		return
	}
	r.written.Add(uint64(len(batch)))
}

// writeBatch writes one transaction: a tick_stats row per report, plus
// track, drive and capture rows for the reports that carry them.
func (r *Recorder) writeBatch(batch []pipeline.TickReport) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tickStmt, err := tx.Prepare(`
		INSERT INTO tick_stats (
			session_id, tick_ns, state, work_ms, desired_hz,
			target_count, dropped, empty
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer tickStmt.Close()

	trackStmt, err := tx.Prepare(`
		INSERT INTO track_snapshots (
			session_id, tick_ns, target_id, class,
			pos_x, pos_y, pos_z, vel_x, vel_y, vel_z,
			distance_m, screen_x, screen_y, center_dist_px,
			priority, visible
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer trackStmt.Close()

	driveStmt, err := tx.Prepare(`
		INSERT INTO drive_commands (
			session_id, tick_ns, dx, dy, step_px
		) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer driveStmt.Close()

	captureStmt, err := tx.Prepare(`
		INSERT INTO capture_events (
			session_id, tick_ns, target_id, center_dist_px
		) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer captureStmt.Close()

	for _, rep := range batch {
		tickNs := rep.Time.UnixNano()

		_, err := tickStmt.Exec(
			r.sessionID,
			tickNs,
			string(rep.State),
			rep.Work.Seconds()*1000,
			rep.DesiredHz,
			rep.Targets,
			boolToInt(rep.Dropped),
			boolToInt(rep.Empty),
		)
		if err != nil {
			return err
		}

		if cur := rep.Current; cur != nil {
			_, err := trackStmt.Exec(
				r.sessionID,
				tickNs,
				cur.ID,
				cur.Class,
				cur.Pos.X, cur.Pos.Y, cur.Pos.Z,
				cur.Vel.X, cur.Vel.Y, cur.Vel.Z,
				cur.Distance,
				cur.Screen.X, cur.Screen.Y,
				rep.CenterDist,
				cur.Priority,
				boolToInt(cur.Visible),
			)
			if err != nil {
				return err
			}
		}

		if rep.Delta.X != 0 || rep.Delta.Y != 0 {
			_, err := driveStmt.Exec(
				r.sessionID,
				tickNs,
				rep.Delta.X,
				rep.Delta.Y,
				rep.Delta.Len(),
			)
			if err != nil {
				return err
			}
		}

		if rep.Captured {
			_, err := captureStmt.Exec(
				r.sessionID,
				tickNs,
				rep.CurrentID,
				rep.CenterDist,
			)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
