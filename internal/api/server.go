// Package api exposes the tracking engine over HTTP: status and
// target queries, live config updates, session history, scenario
// replay and a websocket snapshot stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kestrel-optics/pursuit.camera/internal/config"
	"github.com/kestrel-optics/pursuit.camera/internal/db"
	"github.com/kestrel-optics/pursuit.camera/internal/fsutil"
	"github.com/kestrel-optics/pursuit.camera/internal/httputil"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/p1feed"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/pipeline"
	"github.com/kestrel-optics/pursuit.camera/internal/security"
	"github.com/kestrel-optics/pursuit.camera/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ScenarioSink accepts replayed datagrams. The UDP feed listener
// implements it; the simulator feed does not, so replay is a 409 in
// dev mode.
type ScenarioSink interface {
	Inject(p1feed.Datagram)
}

// ServerConfig carries the server's collaborators. Engine is
// required; everything else degrades gracefully when nil (sessions
// and backup need DB, replay needs Feed, config persistence needs
// FS + ConfigPath).
type ServerConfig struct {
	Engine      *pipeline.Engine
	DB          *db.DB
	Feed        ScenarioSink
	FS          fsutil.FileSystem
	ConfigPath  string
	ScenarioDir string // replay scenarios must live under this directory
	SessionID   string
	Clock       timeutil.Clock
}

type Server struct {
	engine      *pipeline.Engine
	db          *db.DB
	feed        ScenarioSink
	fs          fsutil.FileSystem
	configPath  string
	scenarioDir string
	sessionID   string
	clock       timeutil.Clock
	hub         *Hub
	startedAt   time.Time

	replayMu     sync.Mutex
	replayCancel context.CancelFunc
	replayDone   chan struct{}
	replayName   string
	replayCount  int
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.ScenarioDir == "" {
		cfg.ScenarioDir = "scenarios"
	}
	s := &Server{
		engine:      cfg.Engine,
		db:          cfg.DB,
		feed:        cfg.Feed,
		fs:          cfg.FS,
		configPath:  cfg.ConfigPath,
		scenarioDir: cfg.ScenarioDir,
		sessionID:   cfg.SessionID,
		clock:       cfg.Clock,
		startedAt:   cfg.Clock.Now(),
	}
	s.hub = NewHub(cfg.Engine, cfg.Clock)
	return s
}

// Hub returns the websocket hub so the daemon can run its broadcast
// loop alongside the engine runtime.
func (s *Server) Hub() *Hub { return s.hub }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/targets", s.listTargets)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/enable", s.setEnabled)
	mux.HandleFunc("/api/capture", s.manualCapture)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.showSession)
	mux.HandleFunc("/api/replay/start", s.startReplay)
	mux.HandleFunc("/api/backup", s.runBackup)
	mux.HandleFunc("/ws", s.hub.HandleWS)
	s.registerChartRoutes(mux)
	return mux
}

// StatusResponse is the /api/status payload: the engine snapshot plus
// session identity and replay progress.
type StatusResponse struct {
	SessionID string            `json:"session_id"`
	UptimeMs  float64           `json:"uptime_ms"`
	Engine    pipeline.Snapshot `json:"engine"`
	Replay    *ReplayStatus     `json:"replay,omitempty"`
}

// ReplayStatus reports a scenario replay in flight.
type ReplayStatus struct {
	Scenario  string `json:"scenario"`
	Datagrams int    `json:"datagrams"`
	Running   bool   `json:"running"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := StatusResponse{
		SessionID: s.sessionID,
		UptimeMs:  float64(s.clock.Since(s.startedAt).Nanoseconds()) / 1e6,
		Engine:    s.engine.Snapshot(),
		Replay:    s.replayStatus(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		httputil.InternalServerError(w, "failed to write status")
		return
	}
}

// TargetsResponse is the /api/targets payload.
type TargetsResponse struct {
	Count   int              `json:"count"`
	Current *pursuit.Target  `json:"current,omitempty"`
	Targets []pursuit.Target `json:"targets"`
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	targets := s.engine.VisibleTargets()
	resp := TargetsResponse{
		Count:   len(targets),
		Current: s.engine.CurrentTarget(),
		Targets: targets,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		httputil.InternalServerError(w, "failed to write targets")
		return
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		if err := json.NewEncoder(w).Encode(s.engine.Config()); err != nil {
			httputil.InternalServerError(w, "failed to write config")
		}
	case http.MethodPost:
		s.applyConfig(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// applyConfig overlays the posted fields onto the current tuning,
// validates, clamps and swaps the result in atomically. Fields absent
// from the body keep their current values.
func (s *Server) applyConfig(w http.ResponseWriter, r *http.Request) {
	var patch config.Tuning
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid config body: %v", err))
		return
	}

	next := s.engine.Config().Overlay(&patch)
	if err := next.Validate(); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid config: %v", err))
		return
	}
	next.Normalize()
	s.engine.SetConfig(next)

	if s.fs != nil && s.configPath != "" {
		if err := config.SaveTuning(s.fs, s.configPath, next); err != nil {
			log.Printf("Failed to persist tuning to %s: %v", s.configPath, err)
		}
	}

	httputil.WriteJSONOK(w, next)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid enable body: %v", err))
		return
	}

	s.engine.Enable(req.Enabled)
	httputil.WriteJSONOK(w, map[string]bool{"enabled": s.engine.Enabled()})
}

func (s *Server) manualCapture(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	s.engine.Capture()
	httputil.WriteJSONOK(w, map[string]uint64{
		"captures": s.engine.Snapshot().Captures,
	})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database attached")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.ListSessions(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []*db.Session{}
	}
	if err := json.NewEncoder(w).Encode(sessions); err != nil {
		httputil.InternalServerError(w, "failed to write sessions")
		return
	}
}

// SessionDetail is the /api/sessions/{id} payload.
type SessionDetail struct {
	Session *db.Session        `json:"session"`
	Stats   *db.SessionStats   `json:"stats"`
	Targets []db.TargetSummary `json:"targets"`
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database attached")
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		httputil.BadRequest(w, "missing session id in path")
		return
	}

	session, err := s.db.GetSession(sessionID)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("session not found: %v", err))
		return
	}
	stats, err := s.db.GetSessionStats(sessionID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to compute session stats: %v", err))
		return
	}
	targets, err := s.db.SessionTargets(sessionID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("failed to list session targets: %v", err))
		return
	}

	detail := SessionDetail{Session: session, Stats: stats, Targets: targets}
	if err := json.NewEncoder(w).Encode(detail); err != nil {
		httputil.InternalServerError(w, "failed to write session")
		return
	}
}

// startReplay streams a recorded scenario into the live feed. One
// replay runs at a time; a second start while one is in flight is a
// conflict. The scenario path is resolved under the configured
// scenario directory only.
func (s *Server) startReplay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.feed == nil {
		httputil.WriteJSONError(w, http.StatusConflict, "replay requires a feed listener (not available in dev mode)")
		return
	}

	var req struct {
		Scenario string `json:"scenario"`
		Fast     bool   `json:"fast"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid replay body: %v", err))
		return
	}
	if req.Scenario == "" {
		httputil.BadRequest(w, "missing 'scenario'")
		return
	}

	path := req.Scenario
	if !strings.ContainsRune(path, '/') {
		path = s.scenarioDir + "/" + path
	}
	if err := security.ValidatePathWithinDirectory(path, s.scenarioDir); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid scenario path: %v", err))
		return
	}

	datagrams, err := p1feed.ReadScenario(path)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("failed to read scenario: %v", err))
		return
	}
	if len(datagrams) == 0 {
		httputil.BadRequest(w, "scenario has no datagrams")
		return
	}

	s.replayMu.Lock()
	if s.replayDone != nil {
		select {
		case <-s.replayDone:
			// previous replay finished
		default:
			s.replayMu.Unlock()
			httputil.WriteJSONError(w, http.StatusConflict, "a replay is already running")
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.replayCancel = cancel
	s.replayDone = done
	s.replayName = req.Scenario
	s.replayCount = len(datagrams)
	s.replayMu.Unlock()

	replayer := p1feed.NewReplayer(datagrams, s.clock, req.Fast)
	go func() {
		defer close(done)
		defer cancel()
		err := replayer.Run(ctx, func(d p1feed.Datagram) error {
			s.feed.Inject(d)
			return nil
		})
		if err != nil && err != context.Canceled {
			log.Printf("Replay of %s failed: %v", req.Scenario, err)
			return
		}
		log.Printf("Replay of %s complete (%d datagrams)", req.Scenario, len(datagrams))
	}()

	httputil.WriteJSON(w, http.StatusAccepted, ReplayStatus{
		Scenario:  req.Scenario,
		Datagrams: len(datagrams),
		Running:   true,
	})
}

// replayStatus returns the replay in flight, or nil when idle.
func (s *Server) replayStatus() *ReplayStatus {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	if s.replayDone == nil {
		return nil
	}
	running := true
	select {
	case <-s.replayDone:
		running = false
	default:
	}
	return &ReplayStatus{
		Scenario:  s.replayName,
		Datagrams: s.replayCount,
		Running:   running,
	}
}

// StopReplay cancels a replay in flight. Used on shutdown.
func (s *Server) StopReplay() {
	s.replayMu.Lock()
	cancel := s.replayCancel
	s.replayMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Server) runBackup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database attached")
		return
	}

	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = "backups"
	}

	path, err := s.db.Backup(dir)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("backup failed: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"path": path})
}
