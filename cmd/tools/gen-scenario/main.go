// Command gen-scenario runs the subject simulator headless and writes
// the detector frames it produces as a scenario file for replays and
// parameter sweeps.
package main

import (
	"flag"
	"log"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/p1feed"
	"github.com/kestrel-optics/pursuit.camera/internal/sim"
	"github.com/kestrel-optics/pursuit.camera/internal/timeutil"
)

func main() {
	output := flag.String("o", "scenario.jsonl", "output path")
	seed := flag.Int64("seed", 1, "world seed")
	subjects := flag.Int("subjects", 6, "number of simulated subjects")
	extent := flag.Float64("extent", 250, "arena half-size in metres")
	duration := flag.Duration("duration", 30*time.Second, "scenario length")
	hz := flag.Float64("hz", 30, "detector frame rate")
	rangeM := flag.Float64("range", 400, "detector range in metres")
	flag.Parse()

	if *hz <= 0 {
		log.Fatal("Error: -hz must be positive")
	}

	// A mock clock pinned to the epoch makes same-seed runs byte
	// identical: frame timestamps are i*step rather than wall time.
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	world := sim.NewWorld(sim.Config{
		Seed:     *seed,
		Subjects: *subjects,
		ExtentM:  *extent,
		Clock:    clock,
	})

	sw, err := p1feed.CreateScenario(*output)
	if err != nil {
		log.Fatalf("Failed to create scenario: %v", err)
	}

	step := time.Duration(float64(time.Second) / *hz)
	frames := int(*duration / step)
	for i := 0; i < frames; i++ {
		clock.Advance(step)

		sightings, err := world.Sightings(*rangeM)
		if err != nil {
			log.Fatalf("Simulator failed at frame %d: %v", i, err)
		}

		d := p1feed.DatagramFrom(clock.Now().UnixNano(), sightings)
		if err := sw.Write(d); err != nil {
			log.Fatalf("Failed to write frame %d: %v", i, err)
		}

		if (i+1)%300 == 0 {
			log.Printf("%d/%d frames", i+1, frames)
		}
	}

	if err := sw.Close(); err != nil {
		log.Fatalf("Failed to close scenario: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames, %d subjects, seed %d)",
		*output, sw.Count(), *subjects, *seed)
}
