package p1feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/timeutil"
)

// maxReplayGap caps the wait between replayed datagrams so a recording
// gap does not stall a replay for minutes.
const maxReplayGap = 5 * time.Second

// ScenarioWriter appends datagrams to a scenario stream: JSON lines,
// one datagram per line, capture timestamps ascending.
type ScenarioWriter struct {
	w      *bufio.Writer
	closer io.Closer
	count  int
}

// NewScenarioWriter wraps an open stream. The caller owns the stream;
// Close flushes but closes nothing.
func NewScenarioWriter(w io.Writer) *ScenarioWriter {
	return &ScenarioWriter{w: bufio.NewWriter(w)}
}

// CreateScenario creates (truncating) a scenario file at path.
func CreateScenario(path string) (*ScenarioWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario file: %w", err)
	}
	sw := NewScenarioWriter(f)
	sw.closer = f
	return sw, nil
}

// Write appends one datagram line.
func (sw *ScenarioWriter) Write(d Datagram) error {
	line, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode datagram: %w", err)
	}
	if _, err := sw.w.Write(line); err != nil {
		return err
	}
	if err := sw.w.WriteByte('\n'); err != nil {
		return err
	}
	sw.count++
	return nil
}

// Count returns how many datagrams have been written.
func (sw *ScenarioWriter) Count() int {
	return sw.count
}

// Close flushes buffered lines and closes the file when the writer
// owns one.
func (sw *ScenarioWriter) Close() error {
	if err := sw.w.Flush(); err != nil {
		return err
	}
	if sw.closer != nil {
		return sw.closer.Close()
	}
	return nil
}

// ReadScenario loads a scenario file into memory.
func ReadScenario(path string) ([]Datagram, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario file: %w", err)
	}
	defer f.Close()

	datagrams, err := ReadScenarioFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return datagrams, nil
}

// ReadScenarioFrom parses a scenario stream. Blank lines are skipped;
// a malformed line fails the read with its line number.
func ReadScenarioFrom(r io.Reader) ([]Datagram, error) {
	scan := bufio.NewScanner(r)
	scan.Buffer(nil, maxDatagramSize)

	var datagrams []Datagram
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := scan.Bytes()
		if len(line) == 0 {
			continue
		}

		var d Datagram
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		datagrams = append(datagrams, d)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}

	return datagrams, nil
}

// Replayer paces scenario datagrams into a sink. Default pacing
// follows the capture timestamps; Fast pushes datagrams as quickly as
// the sink accepts them, which offline sweeps use.
type Replayer struct {
	datagrams []Datagram
	clock     timeutil.Clock
	fast      bool
}

// NewReplayer builds a replayer over loaded datagrams. A nil clock
// gets the real clock.
func NewReplayer(datagrams []Datagram, clock timeutil.Clock, fast bool) *Replayer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Replayer{datagrams: datagrams, clock: clock, fast: fast}
}

// Len returns the number of datagrams queued for replay.
func (r *Replayer) Len() int {
	return len(r.datagrams)
}

// Run delivers every datagram to sink in order, pacing by capture
// timestamp gaps unless the replayer is fast. Non-increasing
// timestamps replay back to back.
func (r *Replayer) Run(ctx context.Context, sink func(Datagram) error) error {
	var prevT int64
	for i, d := range r.datagrams {
		if i > 0 && !r.fast {
			if gap := d.T - prevT; gap > 0 {
				wait := time.Duration(gap)
				if wait > maxReplayGap {
					wait = maxReplayGap
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-r.clock.After(wait):
				}
			}
		}
		prevT = d.T

		if err := sink(d); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
