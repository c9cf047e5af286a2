// Command session-report renders a recorded tracking session into an
// offline report: summary statistics, an HTML page of charts and PNG
// plots of the session's flight paths.
//
// Usage:
//
//	go run ./cmd/tools/session-report -db pursuit.db -session latest
package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/kestrel-optics/pursuit.camera/internal/db"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/monitor"
	"github.com/kestrel-optics/pursuit.camera/internal/security"
	"github.com/kestrel-optics/pursuit.camera/internal/units"
)

func main() {
	dbPath := flag.String("db", "pursuit.db", "sqlite database path")
	sessionID := flag.String("session", "", "session ID to report; 'latest' picks the most recent (required)")
	outDir := flag.String("out", "", "output directory (default reports/<session>)")
	speedUnit := flag.String("units", units.MPS, "speed units for the report: "+units.GetValidUnitsString())
	noPlots := flag.Bool("no-plots", false, "skip PNG plot rendering")
	flag.Parse()

	if *sessionID == "" {
		log.Fatal("Error: -session flag is required")
	}
	if !units.IsValid(*speedUnit) {
		log.Fatalf("Error: invalid units %q (valid: %s)", *speedUnit, units.GetValidUnitsString())
	}

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	id := *sessionID
	if id == "latest" {
		sessions, err := database.ListSessions(1)
		if err != nil {
			log.Fatalf("Failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("No sessions recorded")
		}
		id = sessions[0].ID
		log.Printf("Latest session: %s", id)
	}

	dir := *outDir
	if dir == "" {
		dir = filepath.Join("reports", security.SanitizeFilename(id))
	}

	reporter := monitor.NewReporter(database, dir)
	reporter.SpeedUnit = *speedUnit
	reporter.Plots = !*noPlots

	rep, err := reporter.Generate(id)
	if err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	sum := rep.Summary
	log.Printf("Session %s: %.1fs, %d ticks, time on target %.0f%%",
		id, sum.DurationS, sum.Stats.Ticks, sum.TimeOnTarget*100)
	log.Printf("Centre error: mean %.1f px, p50 %.1f px, p95 %.1f px",
		sum.CenterMeanPx, sum.CenterMedianPx, sum.CenterP95Px)
	log.Printf("Captures: %d (%.2f/min), mean target speed %.1f %s",
		sum.Stats.Captures, sum.CapturesPerMin,
		units.ConvertSpeed(sum.MeanSpeedMps, *speedUnit), *speedUnit)
	for _, f := range rep.Files {
		log.Printf("✓ Wrote %s", f)
	}
}
