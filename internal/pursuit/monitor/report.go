package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/kestrel-optics/pursuit.camera/internal/db"
	"github.com/kestrel-optics/pursuit.camera/internal/fsutil"
	"github.com/kestrel-optics/pursuit.camera/internal/units"
)

// Reporter writes a session report into OutputDir: summary.json, a
// report.html page of charts, and PNG plots. Plots render through
// gonum/plot straight to the OS filesystem, so set Plots false when FS
// is not backed by a real directory.
type Reporter struct {
	DB        *db.DB
	FS        fsutil.FileSystem
	OutputDir string
	SpeedUnit string
	Plots     bool
}

// NewReporter builds a Reporter with the OS filesystem, plots enabled
// and speeds in metres per second.
func NewReporter(database *db.DB, outputDir string) *Reporter {
	return &Reporter{
		DB:        database,
		FS:        fsutil.OSFileSystem{},
		OutputDir: outputDir,
		SpeedUnit: units.MPS,
		Plots:     true,
	}
}

// Report lists what Generate produced.
type Report struct {
	Summary *Summary `json:"summary"`
	Files   []string `json:"files"`
}

// Generate renders the report for one session and returns the written
// file paths. The output directory is created if missing.
func (r *Reporter) Generate(sessionID string) (*Report, error) {
	sum, err := ComputeSummary(r.DB, sessionID)
	if err != nil {
		return nil, err
	}

	ticks, err := r.DB.TickSeries(sessionID, 0)
	if err != nil {
		return nil, err
	}
	points, err := r.DB.TrackHistory(sessionID, "")
	if err != nil {
		return nil, err
	}

	if err := r.FS.MkdirAll(r.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	rep := &Report{Summary: sum}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	summaryPath := filepath.Join(r.OutputDir, "summary.json")
	if err := r.FS.WriteFile(summaryPath, append(data, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	rep.Files = append(rep.Files, summaryPath)

	var buf bytes.Buffer
	if err := r.renderHTML(&buf, sum, ticks, points); err != nil {
		return nil, fmt.Errorf("render report page: %w", err)
	}
	htmlPath := filepath.Join(r.OutputDir, "report.html")
	if err := r.FS.WriteFile(htmlPath, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("write report page: %w", err)
	}
	rep.Files = append(rep.Files, htmlPath)

	if r.Plots {
		plotFiles, err := r.writePlots(sum, points)
		if err != nil {
			return nil, err
		}
		rep.Files = append(rep.Files, plotFiles...)
	}

	return rep, nil
}
