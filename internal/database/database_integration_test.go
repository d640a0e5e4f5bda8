package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"media-catalog/internal/database/migrations"
)

// Integration tests run against a real on-disk SQLite database.

// setupTestDB creates a fully migrated throwaway database.
func setupTestDB(t testing.TB) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), Options{Path: dbPath, AutoMigrate: true})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), Options{Path: dbPath, AutoMigrate: true})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	target, err := migrations.LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() failed: %v", err)
	}
	current, dirty, err := migrations.Version(db.db)
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if dirty {
		t.Error("Fresh database reported dirty schema")
	}
	if current != target {
		t.Errorf("Expected schema version %d, got %d", target, current)
	}
}

func TestNewDatabaseWithoutAutoMigrate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	_, err := New(context.Background(), Options{Path: dbPath})
	if err == nil {
		t.Fatal("Expected version mismatch error for unmigrated database")
	}
	var vErr *VersionMismatchError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected VersionMismatchError, got %v", err)
	}
	if vErr.Current != 0 {
		t.Errorf("Expected current version 0, got %d", vErr.Current)
	}
}

func TestReopenDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	db, err := New(ctx, Options{Path: dbPath, AutoMigrate: true})
	if err != nil {
		t.Fatalf("First open failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// A migrated database reopens without AutoMigrate.
	db, err = New(ctx, Options{Path: dbPath})
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer db.Close()
}

func TestMigrationSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	backupDir := filepath.Join(tmpDir, "backups")
	ctx := context.Background()

	// Fresh databases migrate from version 0 and take no snapshot.
	db, err := New(ctx, Options{Path: dbPath, BackupDir: backupDir, AutoMigrate: true})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	db.Close()

	entries, _ := os.ReadDir(backupDir)
	if len(entries) != 0 {
		t.Errorf("Expected no snapshot for a fresh database, found %d files", len(entries))
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := setupTestDB(t)
	ctx := context.Background()

	wantErr := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := db.InsertReference(tx, &MediaReference{Title: "doomed"}); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected original error back, got %v", err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalReferences != 0 {
		t.Errorf("Expected 0 references after rollback, got %d", stats.TotalReferences)
	}
}

func TestVacuumAndCheckpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := setupTestDB(t)

	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
	if err := db.CheckpointWAL(); err != nil {
		t.Errorf("CheckpointWAL failed: %v", err)
	}
}

func TestConcurrentTransactions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := setupTestDB(t)
	ctx := context.Background()

	// Transaction timing travels with each transaction, so overlapping
	// writers must not trip the race detector or corrupt each other.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- db.WithTx(ctx, func(tx *sql.Tx) error {
				ref := &MediaReference{Title: fmt.Sprintf("concurrent-%d", n)}
				return db.InsertReference(tx, ref)
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Concurrent transaction failed: %v", err)
		}
	}
}
