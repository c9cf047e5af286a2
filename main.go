// Command pursuit-camera is the tracking daemon: it ingests detections
// over the UDP feed, runs the tick pipeline against the active tuning,
// drives the pan-tilt head, and serves the HTTP API, websocket stream,
// and debug charts.
//
// Run with -dev for a fully self-contained instance: a seeded
// simulator world replaces the feed and a modelled head replaces the
// serial drive. Without -dev the feed listener is live; a missing
// -port falls back to the modelled head so scenario replays and sweeps
// work with no hardware attached.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/kestrel-optics/pursuit.camera/internal/api"
	"github.com/kestrel-optics/pursuit.camera/internal/config"
	"github.com/kestrel-optics/pursuit.camera/internal/db"
	"github.com/kestrel-optics/pursuit.camera/internal/fsutil"
	"github.com/kestrel-optics/pursuit.camera/internal/mount"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/geom"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/p1feed"
	"github.com/kestrel-optics/pursuit.camera/internal/pursuit/pipeline"
	"github.com/kestrel-optics/pursuit.camera/internal/sim"
	"github.com/kestrel-optics/pursuit.camera/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run against the built-in simulator (no feed listener, no hardware)")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	feedAddr    = flag.String("feed", ":4040", "UDP feed listen address")
	dbFile      = flag.String("db", "pursuit.db", "Track database path")
	configPath  = flag.String("config", "config/tuning.json", "Tuning file path (created when missing)")
	scenarioDir = flag.String("scenarios", "scenarios", "Directory replayable scenarios must live under")
	serialPort  = flag.String("port", "", "Serial device for the pan-tilt head (modelled head when empty)")
	baudRate    = flag.Int("baud", 115200, "Serial baud rate")
	fovDeg      = flag.Float64("fov", 60, "Camera vertical field of view, degrees")
	seed        = flag.Int64("seed", 0, "Simulator and operator model seed (0 seeds from the clock)")
	subjects    = flag.Int("subjects", 6, "Simulated subjects in dev mode")
	extentM     = flag.Float64("extent", 250, "Simulated arena half-size in metres, dev mode")
	notes       = flag.String("notes", "", "Notes recorded on the session row")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("pursuit-camera %s starting", version.String())

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Load the tuning file, creating a defaults document on first run.
	// A present-but-malformed file is fatal rather than silently
	// replaced.
	fsys := fsutil.OSFileSystem{}
	tuning, err := config.LoadTuning(fsys, *configPath)
	if err != nil {
		if fsys.Exists(*configPath) {
			log.Fatalf("Failed to load tuning file %s: %v", *configPath, err)
		}
		tuning = config.EmptyTuning()
		if dir := filepath.Dir(*configPath); dir != "." {
			if err := fsys.MkdirAll(dir, 0o755); err != nil {
				log.Fatalf("Failed to create config directory %s: %v", dir, err)
			}
		}
		if err := config.SaveTuning(fsys, *configPath, tuning); err != nil {
			log.Printf("WARNING: could not write default tuning file %s: %v", *configPath, err)
		} else {
			log.Printf("Created default tuning file %s", *configPath)
		}
	}
	store := config.NewStore(tuning)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Build the feed, camera, and drive per mode.
	var (
		feed       pursuit.Feed
		camera     pursuit.CameraProvider
		drive      pursuit.DriveSink
		sink       api.ScenarioSink
		feedSource string
		driveMux   *mount.Mux[serial.Port]
	)

	if *devMode {
		world := sim.NewWorld(sim.Config{Seed: *seed, Subjects: *subjects, ExtentM: *extentM})
		model := sim.NewMountModel(sim.MountConfig{FOVDeg: *fovDeg})
		world.SetBoresight(model.Pose)
		feed, camera, drive = world, model, model
		feedSource = "simulator"
		log.Printf("Dev mode: %d simulated subjects over a %.0fm arena (seed %d)", *subjects, *extentM, *seed)
	} else {
		listener := p1feed.NewListener(p1feed.ListenerConfig{Address: *feedAddr})
		feed, sink = listener, listener
		feedSource = listener.Source()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("feed listener stopped: %v", err)
			}
			log.Print("feed listener routine terminated")
		}()

		if *serialPort != "" {
			driveMux, err = mount.OpenMux(*serialPort, mount.PortOptions{BaudRate: *baudRate})
			if err != nil {
				log.Fatalf("Failed to open drive port %s: %v", *serialPort, err)
			}
			defer driveMux.Close()
			if err := driveMux.Initialize(); err != nil {
				log.Fatalf("Failed to initialize drive port: %v", err)
			}

			// run the monitor routine to manage IO on the drive port
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := driveMux.Monitor(ctx); err != nil && err != context.Canceled {
					log.Printf("failed to monitor drive port: %v", err)
				}
				log.Print("monitor routine terminated")
			}()

			drive = mount.NewDrive(driveMux, *fovDeg, 1080)
			camera = p1feed.NewStaticCamera(geom.Vec3{}, 0, 0, *fovDeg, 1920, 1080)
			log.Printf("Drive port %s open at %d baud", *serialPort, *baudRate)
		} else {
			model := sim.NewMountModel(sim.MountConfig{FOVDeg: *fovDeg})
			drive, camera = model, model
			log.Printf("No drive port configured; using a modelled head")
		}
	}

	// Record the session with the tuning it started under.
	cfgJSON, err := json.Marshal(store.Snapshot())
	if err != nil {
		cfgJSON = []byte("{}")
	}
	session := &db.Session{
		FeedSource: feedSource,
		ConfigJSON: json.RawMessage(cfgJSON),
		Notes:      *notes,
	}
	if err := database.InsertSession(session); err != nil {
		log.Fatalf("Failed to record session: %v", err)
	}
	log.Printf("Session %s started (feed: %s)", session.ID, feedSource)

	recorder := db.NewRecorder(database, session.ID)

	engine := pipeline.NewEngine(pipeline.EngineConfig{
		Feed:     feed,
		Camera:   camera,
		Drive:    drive,
		Store:    store,
		Seed:     *seed,
		Observer: recorder.Observe,
	})
	engine.Enable(true)

	server := api.NewServer(api.ServerConfig{
		Engine:      engine,
		DB:          database,
		Feed:        sink,
		FS:          fsys,
		ConfigPath:  *configPath,
		ScenarioDir: *scenarioDir,
		SessionID:   session.ID,
	})

	// engine tick loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("engine loop stopped: %v", err)
		}
		log.Print("engine routine terminated")
	}()

	// websocket snapshot broadcast
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Hub().Run(ctx, 0)
		log.Print("hub routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()

		// mount the admin debugging routes (accessible only in dev
		// mode or over Tailscale)
		database.AttachAdminRoutes(mux)
		if driveMux != nil {
			driveMux.AttachAdminRoutes(mux)
		}

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("HTTP listening on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	// Flush buffered track rows before stamping the session end.
	if err := recorder.Close(); err != nil {
		log.Printf("recorder close: %v", err)
	}
	if err := database.EndSession(session.ID, time.Now().UnixNano()); err != nil {
		log.Printf("failed to end session %s: %v", session.ID, err)
	}
	log.Printf("Graceful shutdown complete")
}
