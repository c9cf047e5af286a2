package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kestrel-optics/pursuit.camera/internal/db"
	"github.com/kestrel-optics/pursuit.camera/internal/units"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// renderHTML writes the session report page: centre error and tick
// work time over the session, plus a per-target bar chart, with the
// headline statistics carried in the chart subtitles.
func (r *Reporter) renderHTML(w io.Writer, sum *Summary, ticks []db.TickRow, points []db.TrackPoint) error {
	t0 := sum.Stats.FirstTickNs
	if t0 == 0 && len(points) > 0 {
		t0 = points[0].TickNs
	}

	var centerData []opts.ScatterData
	maxDist := 0.0
	for _, p := range points {
		secs := float64(p.TickNs-t0) / 1e9
		centerData = append(centerData, opts.ScatterData{Value: []interface{}{secs, p.CenterDistPx, p.DistanceM}})
		if p.DistanceM > maxDist {
			maxDist = p.DistanceM
		}
	}
	if maxDist == 0 {
		maxDist = 1
	}

	center := charts.NewScatter()
	center.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session Report", Theme: "dark", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Centre error — session %s", sum.Session.ID),
			Subtitle: fmt.Sprintf("mean %.1f px, p50 %.1f px, p95 %.1f px, time on target %.0f%%",
				sum.CenterMeanPx, sum.CenterMedianPx, sum.CenterP95Px, sum.TimeOnTarget*100),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Centre distance (px)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxDist),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	center.AddSeries("centre error", centerData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var workData []opts.ScatterData
	maxHz := 0.0
	for _, t := range ticks {
		secs := float64(t.TickNs-t0) / 1e9
		workData = append(workData, opts.ScatterData{Value: []interface{}{secs, t.WorkMs, t.DesiredHz}})
		if t.DesiredHz > maxHz {
			maxHz = t.DesiredHz
		}
	}
	if maxHz == 0 {
		maxHz = 1
	}

	work := charts.NewScatter()
	work.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title: "Tick work time",
			Subtitle: fmt.Sprintf("mean %.2f ms, p95 %.2f ms, %d drops over %d ticks",
				sum.WorkMeanMs, sum.WorkP95Ms, sum.Stats.Drops, sum.Stats.Ticks),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Work (ms)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxHz),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	work.AddSeries("work", workData, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var targetIDs []string
	var trackedData []opts.BarData
	for _, t := range sum.Targets {
		targetIDs = append(targetIDs, shortID(t.TargetID))
		trackedData = append(trackedData, opts.BarData{Value: t.Points})
	}

	unit := r.SpeedUnit
	if !units.IsValid(unit) {
		unit = units.MPS
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{
			Title: "Tracked ticks per target",
			Subtitle: fmt.Sprintf("%d targets, %d captures, mean speed %.1f %s, peak %.1f %s",
				len(sum.Targets), sum.Stats.Captures,
				units.ConvertSpeed(sum.MeanSpeedMps, unit), unit,
				units.ConvertSpeed(sum.MaxSpeedMps, unit), unit),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(targetIDs).
		AddSeries("tracked", trackedData,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(center, work, bar)

	return page.Render(w)
}

// shortID trims generated target IDs so axis labels and plot legends
// stay readable.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
