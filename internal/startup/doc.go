// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// This package centralizes all application configuration and provides consistent
// logging throughout the application lifecycle.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// The following environment variables are supported:
//
//   - DATA_DIR: Path to the data directory holding the database, thumbnails,
//     and migration backups (default: /data)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - AUTO_MIGRATE: Apply pending schema migrations on startup (default: true)
//   - VIPS_ENABLED: Use libvips for image decoding when available (default: false)
//   - INGEST_EDITOR: Editor name attributed to ingestion edits (default: ingest)
//   - WATCH_DIRS: Comma-separated directories for filesystem watch mode
//   - RECEIVERS_FILE: Path to a TOML file declaring custom ingestion receivers
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//
// # Receivers File
//
// Custom receivers are declared as an ordered TOML list and loaded with
// [LoadReceivers]:
//
//	[[receivers]]
//	name = "scans"
//	root = "/data/scans"
//	extensions = ["jpg", "png"]
//	match = 'batch-\d+'
//	tags = ["source:scanner"]
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Lifecycle Logging
//
// The package provides structured logging functions for consistent output:
//   - [LogDatabaseInit]: Database initialization timing
//   - [LogProbeInit]: FFmpeg availability
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated]: Graceful shutdown start
//   - [LogShutdownComplete]: Shutdown completion
package startup
