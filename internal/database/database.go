package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-catalog/internal/database/migrations"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Default timeout for single database operations.
const defaultTimeout = 5 * time.Second

// Options configures how the catalog database is opened.
type Options struct {
	// Path is the full path to the database file. The parent
	// directory must exist and be writable.
	Path string

	// BackupDir receives a snapshot of the database file before a
	// migration is applied. Empty disables snapshots.
	BackupDir string

	// AutoMigrate applies pending schema migrations on open. When
	// disabled, opening a database at the wrong schema version fails
	// with a VersionMismatchError instead.
	AutoMigrate bool
}

// Database is the relational store for the media catalog. It owns the
// sqlite connection, schema migrations, and all persisted rows; result
// objects handed to callers are independent copies.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// New opens (and if needed migrates) the catalog database at
// opts.Path.
func New(ctx context.Context, opts Options) (*Database, error) {
	logging.Info("Database path: %s", opts.Path)

	// WAL for concurrent readers, busy_timeout as the bounded lock
	// wait, foreign keys and recursive triggers for the integrity
	// cascades.
	connStr := fmt.Sprintf(
		"%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=1&_recursive_triggers=1",
		opts.Path,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Multiple readers; writes serialize through the mutex and the
	// sqlite write lock.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: opts.Path,
	}

	if err := d.ensureSchema(opts); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after schema check failure: %v", closeErr)
		}
		return nil, err
	}

	logging.Info("Database initialized successfully at %s", opts.Path)
	return d, nil
}

// ensureSchema migrates the schema to the binary's version, or fails
// fast when migration is disabled and versions do not match.
func (d *Database) ensureSchema(opts Options) error {
	target, err := migrations.LatestVersion()
	if err != nil {
		return fmt.Errorf("failed to determine target schema version: %w", err)
	}

	current, dirty, err := migrations.Version(d.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return &VersionMismatchError{Current: current, Target: target, Dirty: true}
	}

	if current == target {
		return nil
	}

	if !opts.AutoMigrate {
		return &VersionMismatchError{Current: current, Target: target}
	}

	if opts.BackupDir != "" && current > 0 {
		if err := d.snapshot(opts.BackupDir, current); err != nil {
			return fmt.Errorf("pre-migration snapshot failed: %w", err)
		}
	}

	logging.Info("Migrating database schema: version %d -> %d", current, target)
	if err := migrations.Up(d.db); err != nil {
		return err
	}

	current, dirty, err = migrations.Version(d.db)
	if err != nil {
		return fmt.Errorf("failed to re-read schema version: %w", err)
	}
	if dirty || current != target {
		return &VersionMismatchError{Current: current, Target: target, Dirty: dirty}
	}
	return nil
}

// snapshot copies the database file into the backups directory before
// a migration touches it.
func (d *Database) snapshot(backupDir string, version uint) error {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s.v%d.%d.bak", filepath.Base(d.dbPath), version, time.Now().Unix())
	dst := filepath.Join(backupDir, name)

	src, err := os.Open(d.dbPath)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return errors.Join(err, os.Remove(dst))
	}
	if err := out.Close(); err != nil {
		return err
	}

	logging.Info("Database snapshot written to %s", dst)
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// Begin starts a write transaction and returns its start time for the
// duration metric. All catalog mutations run inside one of these;
// commit or roll back with End. The start time travels with the
// transaction so concurrent transactions measure independently.
func (d *Database) Begin(ctx context.Context) (*sql.Tx, time.Time, error) {
	d.mu.Lock()
	started := time.Now()

	tx, err := d.db.BeginTx(ctx, nil)
	d.mu.Unlock()

	if err != nil {
		return nil, time.Time{}, err
	}
	return tx, started, nil
}

// End commits the transaction when err is nil, otherwise rolls it
// back and returns the original error (joined with any rollback
// failure).
func (d *Database) End(tx *sql.Tx, started time.Time, err error) error {
	duration := time.Since(started).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// WithTx runs fn inside a single write transaction, committing on nil
// and rolling back on error. Partial application of a mutation is
// never observable.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, started, err := d.Begin(ctx)
	if err != nil {
		return err
	}
	return d.End(tx, started, fn(tx))
}

// deleteExact deletes rows and fails with a ConsistencyError when the
// affected count differs from expected.
func deleteExact(tx *sql.Tx, op, query string, expected int64, args ...interface{}) error {
	res, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected != expected {
		return &ConsistencyError{Op: op, Expected: expected, Actual: affected}
	}
	metrics.DBRowsAffected.WithLabelValues(op).Observe(float64(affected))
	return nil
}

// recordQuery records database query metrics.
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics refreshes connection gauges.
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// Vacuum optimizes the database.
func (d *Database) Vacuum() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// CheckpointWAL forces a WAL checkpoint.
func (d *Database) CheckpointWAL() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("wal_checkpoint", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Stats computes catalog totals for status reporting.
func (d *Database) Stats(ctx context.Context) (CatalogStats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var stats CatalogStats
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM media_references", &stats.TotalReferences},
		{"SELECT COUNT(*) FROM media_files", &stats.TotalFiles},
		{"SELECT COUNT(*) FROM media_references WHERE is_series = 1", &stats.TotalSeries},
		{"SELECT COUNT(*) FROM tags", &stats.TotalTags},
		{"SELECT COUNT(*) FROM media_references WHERE is_series = 0 AND view_count = 0", &stats.TotalUnread},
		{"SELECT COUNT(*) FROM filesystem_paths WHERE ingested = 0", &stats.QueuedPaths},
	}

	for _, q := range queries {
		if err := d.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
