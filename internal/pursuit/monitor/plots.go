package monitor

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kestrel-optics/pursuit.camera/internal/db"
	"github.com/kestrel-optics/pursuit.camera/internal/security"
)

// writePlots renders the PNG plots for a session: every target's path
// in the world plane and the centre error over time, one line per
// target. Paths are validated against OutputDir before gonum/plot
// touches the filesystem.
func (r *Reporter) writePlots(sum *Summary, points []db.TrackPoint) ([]string, error) {
	byTarget := make(map[string][]db.TrackPoint)
	for _, p := range points {
		byTarget[p.TargetID] = append(byTarget[p.TargetID], p)
	}

	t0 := sum.Stats.FirstTickNs
	if t0 == 0 && len(points) > 0 {
		t0 = points[0].TickNs
	}

	pTraj := plot.New()
	pTraj.Title.Text = fmt.Sprintf("Flight paths — session %s", sum.Session.ID)
	pTraj.X.Label.Text = "East (m)"
	pTraj.Y.Label.Text = "North (m)"

	pErr := plot.New()
	pErr.Title.Text = "Centre error"
	pErr.X.Label.Text = "Time (s)"
	pErr.Y.Label.Text = "Centre distance (px)"

	colors := generateColors(len(sum.Targets))

	// Iterate in summary order so colours and legend entries track the
	// most-tracked-first ranking.
	for i, target := range sum.Targets {
		samples := byTarget[target.TargetID]
		if len(samples) == 0 {
			continue
		}

		trajPts := make(plotter.XYs, 0, len(samples))
		errPts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			trajPts = append(trajPts, plotter.XY{X: s.PosX, Y: s.PosY})
			errPts = append(errPts, plotter.XY{X: float64(s.TickNs-t0) / 1e9, Y: s.CenterDistPx})
		}

		label := shortID(target.TargetID)
		if target.Class != "" {
			label = fmt.Sprintf("%s (%s)", label, target.Class)
		}

		trajLine, err := plotter.NewLine(trajPts)
		if err != nil {
			return nil, err
		}
		trajLine.Color = colors[i]
		trajLine.Width = vg.Points(1)
		pTraj.Add(trajLine)
		pTraj.Legend.Add(label, trajLine)

		errLine, err := plotter.NewLine(errPts)
		if err != nil {
			return nil, err
		}
		errLine.Color = colors[i]
		errLine.Width = vg.Points(1)
		pErr.Add(errLine)
		pErr.Legend.Add(label, errLine)
	}

	pTraj.Legend.Top = true
	pErr.Legend.Top = true

	var files []string

	trajFile := filepath.Join(r.OutputDir, "trajectories.png")
	if err := security.ValidatePathWithinDirectory(trajFile, r.OutputDir); err != nil {
		return nil, fmt.Errorf("invalid plot path: %w", err)
	}
	if err := pTraj.Save(10*vg.Inch, 10*vg.Inch, trajFile); err != nil {
		return nil, fmt.Errorf("save trajectory plot: %w", err)
	}
	files = append(files, trajFile)

	errFile := filepath.Join(r.OutputDir, "center_error.png")
	if err := security.ValidatePathWithinDirectory(errFile, r.OutputDir); err != nil {
		return nil, fmt.Errorf("invalid plot path: %w", err)
	}
	if err := pErr.Save(14*vg.Inch, 6*vg.Inch, errFile); err != nil {
		return nil, fmt.Errorf("save centre error plot: %w", err)
	}
	files = append(files, errFile)

	return files, nil
}

// generateColors creates a palette of distinct colours for target lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
