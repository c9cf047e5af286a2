package api

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kestrel-optics/pursuit.camera/internal/db"
	"github.com/kestrel-optics/pursuit.camera/internal/httputil"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridis ramp shared by the debug charts' visual maps.
var chartColorRamp = []string{
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
}

func (s *Server) registerChartRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/charts", s.handleChartIndex)
	mux.HandleFunc("/debug/charts/frame-times", s.handleFrameTimeChart)
	mux.HandleFunc("/debug/charts/targets", s.handleTargetCountChart)
	mux.HandleFunc("/debug/charts/priorities", s.handlePriorityChart)
}

// chartSession resolves the session under inspection: ?session=...
// or the live session when absent.
func (s *Server) chartSession(r *http.Request) string {
	if id := r.URL.Query().Get("session"); id != "" {
		return id
	}
	return s.sessionID
}

// chartLimit caps how many rows a debug chart loads.
func chartLimit(r *http.Request) int {
	limit := 5000
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 100 && v <= 50000 {
			limit = v
		}
	}
	return limit
}

// handleChartIndex renders a plain link page to the debug charts.
func (s *Server) handleChartIndex(w http.ResponseWriter, r *http.Request) {
	sessionID := s.chartSession(r)
	safeID := html.EscapeString(sessionID)
	qs := ""
	if r.URL.Query().Get("session") != "" {
		qs = "?session=" + url.QueryEscape(sessionID)
	}
	safeQs := html.EscapeString(qs)

	doc := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Tracker Debug Charts</title></head>
<body style="background:#100c2a;color:#eee;font-family:monospace">
<h2>Debug charts — session %s</h2>
<ul>
<li><a style="color:#6ece58" href="/debug/charts/frame-times%s">Frame times</a></li>
<li><a style="color:#6ece58" href="/debug/charts/targets%s">Target count</a></li>
<li><a style="color:#6ece58" href="/debug/charts/priorities%s">Priority timeline</a></li>
</ul>
</body>
</html>`, safeID, safeQs, safeQs, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// handleFrameTimeChart plots per-tick work duration against session
// time, coloured by the adaptive rate in force on that tick.
func (s *Server) handleFrameTimeChart(w http.ResponseWriter, r *http.Request) {
	sessionID := s.chartSession(r)
	ticks, err := s.loadTicks(w, sessionID, chartLimit(r))
	if err != nil {
		return
	}

	t0 := ticks[0].TickNs
	data := make([]opts.ScatterData, 0, len(ticks))
	maxHz := 0.0
	for _, t := range ticks {
		sec := float64(t.TickNs-t0) / 1e9
		if t.DesiredHz > maxHz {
			maxHz = t.DesiredHz
		}
		data = append(data, opts.ScatterData{Value: []interface{}{sec, t.WorkMs, t.DesiredHz}})
	}
	if maxHz == 0 {
		maxHz = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracker Frame Times", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Tick Work Time", Subtitle: fmt.Sprintf("session=%s ticks=%d", sessionID, len(ticks))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "work (ms)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxHz),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: chartColorRamp},
		}),
	)
	scatter.AddSeries("work_ms", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	s.renderChart(w, scatter)
}

// handleTargetCountChart plots the visible-target count per second as
// a bar series.
func (s *Server) handleTargetCountChart(w http.ResponseWriter, r *http.Request) {
	sessionID := s.chartSession(r)
	ticks, err := s.loadTicks(w, sessionID, chartLimit(r))
	if err != nil {
		return
	}

	// Bucket ticks into whole seconds and average the count.
	t0 := ticks[0].TickNs
	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[int64]*bucket)
	maxSec := int64(0)
	for _, t := range ticks {
		sec := (t.TickNs - t0) / 1e9
		b := buckets[sec]
		if b == nil {
			b = &bucket{}
			buckets[sec] = b
		}
		b.sum += float64(t.TargetCount)
		b.count++
		if sec > maxSec {
			maxSec = sec
		}
	}

	x := make([]string, 0, maxSec+1)
	y := make([]opts.BarData, 0, maxSec+1)
	for sec := int64(0); sec <= maxSec; sec++ {
		x = append(x, strconv.FormatInt(sec, 10))
		v := 0.0
		if b := buckets[sec]; b != nil && b.count > 0 {
			v = b.sum / float64(b.count)
		}
		y = append(y, opts.BarData{Value: v})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracker Target Count", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Visible Targets", Subtitle: fmt.Sprintf("session=%s per-second mean", sessionID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "targets", NameLocation: "middle", NameGap: 30}),
	)
	bar.SetXAxis(x).AddSeries("targets", y)

	s.renderChart(w, bar)
}

// handlePriorityChart plots the selected target's priority over the
// session, coloured by centre error so hand-offs between targets and
// convergence toward centre show up together.
func (s *Server) handlePriorityChart(w http.ResponseWriter, r *http.Request) {
	sessionID := s.chartSession(r)
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database attached")
		return
	}

	points, err := s.db.TrackHistory(sessionID, "")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load track history: %v", err))
		return
	}
	if len(points) == 0 {
		httputil.NotFound(w, "no track snapshots recorded for session")
		return
	}

	t0 := points[0].TickNs
	data := make([]opts.ScatterData, 0, len(points))
	maxErr := 0.0
	for _, p := range points {
		sec := float64(p.TickNs-t0) / 1e9
		if p.CenterDistPx > maxErr {
			maxErr = p.CenterDistPx
		}
		data = append(data, opts.ScatterData{Value: []interface{}{sec, p.Priority, p.CenterDistPx}})
	}
	if maxErr == 0 {
		maxErr = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tracker Priorities", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Selected Target Priority", Subtitle: fmt.Sprintf("session=%s points=%d", sessionID, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "priority", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxErr),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: chartColorRamp},
		}),
	)
	scatter.AddSeries("priority", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	s.renderChart(w, scatter)
}

// loadTicks fetches the tick series for a chart, writing the error
// response itself so handlers can bail on a nil check.
func (s *Server) loadTicks(w http.ResponseWriter, sessionID string, limit int) ([]db.TickRow, error) {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database attached")
		return nil, fmt.Errorf("no database")
	}
	ticks, err := s.db.TickSeries(sessionID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load ticks: %v", err))
		return nil, err
	}
	if len(ticks) == 0 {
		httputil.NotFound(w, "no ticks recorded for session")
		return nil, fmt.Errorf("no ticks")
	}
	return ticks, nil
}

type chartRenderer interface {
	Render(w io.Writer) error
}

func (s *Server) renderChart(w http.ResponseWriter, chart chartRenderer) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
