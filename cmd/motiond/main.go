// Command motiond ingests pod accelerometer reports, maintains per-stream
// motion state, and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/motion.report/internal/api"
	"github.com/banshee-data/motion.report/internal/config"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/ingest"
	"github.com/banshee-data/motion.report/internal/motion"
	"github.com/banshee-data/motion.report/internal/sensormux"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/units"
	"github.com/banshee-data/motion.report/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Replay fixture lines instead of reading hardware")
	listen     = flag.String("listen", ":8080", "Listen address")
	serialPort = flag.String("port", "/dev/ttyUSB0", "Serial port of the pod bridge (ignored in dev mode)")
	mqttBroker = flag.String("mqtt", "", "MQTT broker URL; overrides the serial port when set")
	mqttTopic  = flag.String("mqtt-topic", "pods/reports", "MQTT topic carrying pod report lines")
	dbPath     = flag.String("db", "motion_data.db", "SQLite database path, empty disables persistence")
	migrations = flag.String("migrations", "migrations", "Migrations directory")
	tuningPath = flag.String("tuning", "", "Tuning config path, empty uses the bundled defaults")
	unitsFlag  = flag.String("units", units.MG, "Display units for acceleration values (mg, g, mps2)")
	fixtures   = flag.String("fixtures", "fixtures.txt", "Fixture file replayed in dev mode")
)

func loadTuning() *config.TuningConfig {
	if *tuningPath == "" {
		return config.MustLoadDefaultConfig()
	}
	cfg, err := config.LoadTuningConfig(*tuningPath)
	if err != nil {
		log.Fatalf("failed to load tuning config %s: %v", *tuningPath, err)
	}
	return cfg
}

// lineFeed is the source plus the goroutine that keeps it fed.
type lineFeed struct {
	source ingest.LineSource
	run    func(ctx context.Context) error
	close  func() error
}

func openFeed() lineFeed {
	switch {
	case *devMode:
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to read fixtures file %s: %v", *fixtures, err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		src := sensormux.NewReplaySource(lines, 8*time.Millisecond)
		return lineFeed{source: src, run: src.Run}

	case *mqttBroker != "":
		src, err := sensormux.NewMQTTSource(*mqttBroker, "motiond", *mqttTopic)
		if err != nil {
			log.Fatalf("failed to connect MQTT source: %v", err)
		}
		// paho drives delivery on its own goroutines
		return lineFeed{
			source: src,
			run:    func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
			close:  src.Close,
		}

	default:
		mux, err := sensormux.NewSerialMux(*serialPort)
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", *serialPort, err)
		}
		return lineFeed{source: mux, run: mux.Monitor, close: mux.Close}
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("Invalid units %q, valid values: %s", *unitsFlag, units.GetValidUnitsString())
	}

	log.Printf("motiond %s", version.String())

	cfg := loadTuning()
	clock := timeutil.RealClock{}
	registry := motion.NewRegistry(motion.ParamsFromTuning(cfg), clock)

	feed := openFeed()
	if feed.close != nil {
		defer feed.close()
	}

	var store *db.DB
	var recorder ingest.Recorder
	if *dbPath != "" {
		var err error
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		if err := store.MigrateUp(*migrations); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		sr := db.NewSessionRecorder(store)
		log.Printf("recording session %s", sr.SessionID())
		recorder = sr
	}

	scheduler := ingest.NewScheduler(feed.source, registry, clock, recorder, ingest.Options{
		DrainBudget:  cfg.GetDrainBudget(),
		BacklogTicks: cfg.GetBacklogTicks(),
		PurgeCap:     cfg.GetPurgeCap(),
	})

	server := api.NewServer(registry, scheduler, store, *unitsFlag)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// keep the line source fed
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.run(ctx); err != nil && err != context.Canceled {
			log.Printf("line feed terminated: %v", err)
		}
	}()

	// drive the ingestion scheduler at the configured tick rate
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clock.NewTicker(cfg.GetTickInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				scheduler.Tick()
				server.ObserveTick(clock.Now())
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := server.ServeMux()
		if store != nil {
			store.AttachAdminRoutes(mux)
		}

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	wg.Wait()
}
