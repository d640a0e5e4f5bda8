package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-catalog/internal/api"
	"media-catalog/internal/catalog"
	"media-catalog/internal/database"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/ingest"
	"media-catalog/internal/logging"
	"media-catalog/internal/memory"
	"media-catalog/internal/probe"
	"media-catalog/internal/startup"
)

func main() {
	startTime := time.Now()

	// Set GOMEMLIMIT from container limits before anything allocates
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(context.Background(), database.Options{
		Path:        config.DatabasePath,
		BackupDir:   config.BackupDir,
		AutoMigrate: config.AutoMigrate,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Label filesystem retry metrics by volume
	volumes := map[string]string{"data": config.DataDir}
	for i, dir := range config.WatchDirs {
		volumes[fmt.Sprintf("watch%d", i)] = dir
	}
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(volumes))

	// Initialize the prober
	startup.LogProbeInit()
	prober := probe.NewFFProbe()
	if config.VipsEnabled {
		probe.InitVips()
	}

	// Initialize the catalog engine
	engine := catalog.New(db, prober, catalog.Config{
		ThumbnailDir:    config.ThumbnailDir,
		AutoCleanupTags: true,
		PreviewPercent:  0.25,
	})

	// Load receiver definitions and build the ingestion pipeline
	receivers, err := startup.LoadReceivers(config.ReceiversFile)
	if err != nil {
		startup.LogFatal("Failed to load receivers: %v", err)
	}
	runner := ingest.NewRunner(db, engine, receivers, config.IngestEditor)
	disc := ingest.NewDiscovery(db, prober)

	// Ingestion pauses under memory pressure instead of OOMing
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()
	runner.SetThrottler(monitor)

	// Watch mode feeds the queue as files land in the watched trees
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	var watcher *ingest.Watcher
	if len(config.WatchDirs) > 0 {
		watcher, err = ingest.NewWatcher(db, prober, config.WatchDirs)
		if err != nil {
			startup.LogFatal("Failed to start filesystem watcher: %v", err)
		}
		go watcher.Run(watchCtx)
	}

	// Setup router
	a := api.New(engine, db, disc, runner)
	router := a.Router()

	// Log routes dynamically
	startup.LogHTTPRoutes(router)

	// Metrics on their own port so the catalog API can be exposed
	// without the operational surface
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, runner, watcher, cancelWatch)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func handleShutdown(srv, metricsSrv *http.Server, runner *ingest.Runner, watcher *ingest.Watcher, cancelWatch context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping ingestion")
	runner.Stop()
	startup.LogShutdownStepComplete("Ingestion stopped")

	if watcher != nil {
		startup.LogShutdownStep("Stopping filesystem watcher")
		cancelWatch()
		if err := watcher.Close(); err != nil {
			logging.Warn("Watcher close error: %v", err)
		}
		startup.LogShutdownStepComplete("Filesystem watcher stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
