package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnqueuePath records a discovered filesystem entry. Returns true when
// a new row was created; re-discovering a known path refreshes its
// checksum and, when a priority is supplied, its priority.
func (d *Database) EnqueuePath(ctx context.Context, fp *FilesystemPath) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("enqueue_path", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	res, execErr := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO filesystem_paths
			(filepath, is_directory, checksum, ingest_priority, ingest_retriever)
		VALUES (?, ?, ?, ?, ?)`,
		fp.Filepath, fp.IsDirectory, nullStr(fp.Checksum), priorityArg(fp.IngestPriority),
		nullStr(fp.IngestRetriever),
	)
	if execErr != nil {
		err = fmt.Errorf("failed to enqueue %s: %w", fp.Filepath, execErr)
		return false, err
	}

	affected, lastErr := res.RowsAffected()
	if lastErr != nil {
		err = lastErr
		return false, err
	}
	if affected > 0 {
		fp.ID, err = res.LastInsertId()
		return true, err
	}

	// Re-discovered path: refresh checksum and any explicit priority.
	_, err = d.db.ExecContext(ctx, `
		UPDATE filesystem_paths
		SET checksum = COALESCE(?, checksum),
		    ingest_priority = COALESCE(?, ingest_priority),
		    updated_at = strftime('%s', 'now')
		WHERE filepath = ?`,
		nullStr(fp.Checksum), priorityArg(fp.IngestPriority), fp.Filepath,
	)
	if err != nil {
		return false, err
	}
	err = d.db.QueryRowContext(ctx,
		`SELECT id FROM filesystem_paths WHERE filepath = ?`, fp.Filepath,
	).Scan(&fp.ID)
	return false, err
}

func priorityArg(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// PriorityBounds returns the current max and min explicit priorities
// in the queue (both zero when the queue holds none).
func (d *Database) PriorityBounds(ctx context.Context) (maxP, minP int64, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var maxN, minN sql.NullInt64
	err = d.db.QueryRowContext(ctx,
		`SELECT MAX(ingest_priority), MIN(ingest_priority) FROM filesystem_paths`,
	).Scan(&maxN, &minN)
	if err != nil {
		return 0, 0, err
	}
	return maxN.Int64, minN.Int64, nil
}

// NextIngestID allocates the next monotonically increasing ingest run
// id based on what the queue has already seen, so an aborted run
// resumes correctly.
func (d *Database) NextIngestID(ctx context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var id int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(last_ingest_id), 0) + 1 FROM filesystem_paths`,
	).Scan(&id)
	return id, err
}

// NextQueueEntry selects the highest-priority path not yet processed
// under the given ingest id. NULL priorities sort after explicit ones;
// ties break by insertion order. ErrNotFound means the queue is
// drained for this run.
func (d *Database) NextQueueEntry(ctx context.Context, ingestID int64) (*FilesystemPath, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("next_queue_entry", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	fp, scanErr := scanFilesystemPath(d.db.QueryRowContext(ctx, `
		SELECT id, filepath, is_directory, checksum, ingest_priority, ingest_retriever,
		       ingested, ingested_at, last_ingest_id
		FROM filesystem_paths
		WHERE last_ingest_id < ? AND is_directory = 0
		ORDER BY (ingest_priority IS NULL), ingest_priority DESC, id
		LIMIT 1`,
		ingestID,
	))
	err = scanErr
	return fp, err
}

func scanFilesystemPath(row rowScanner) (*FilesystemPath, error) {
	var fp FilesystemPath
	var checksum, retriever sql.NullString
	var priority, ingestedAt sql.NullInt64

	err := row.Scan(&fp.ID, &fp.Filepath, &fp.IsDirectory, &checksum, &priority, &retriever,
		&fp.Ingested, &ingestedAt, &fp.LastIngestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	fp.Checksum = strOf(checksum)
	if priority.Valid {
		fp.IngestPriority = &priority.Int64
	}
	fp.IngestRetriever = strOf(retriever)
	fp.IngestedAt = timePtr(ingestedAt)
	return &fp, nil
}

// MarkPathProcessed stamps a queue entry with the run that handled it.
// Per-entry ingestion failures still mark the entry so the run
// progresses past it; only successful ingestion sets the ingested
// flag.
func (d *Database) MarkPathProcessed(ctx context.Context, id, ingestID int64, ingested bool, checksum string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_path_processed", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	query := `
		UPDATE filesystem_paths
		SET last_ingest_id = ?,
		    checksum = COALESCE(?, checksum),
		    updated_at = strftime('%s', 'now')`
	args := []interface{}{ingestID, nullStr(checksum)}
	if ingested {
		query += `, ingested = 1, ingested_at = strftime('%s', 'now')`
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	_, err = d.db.ExecContext(ctx, query, args...)
	return err
}

// GetFilesystemPath loads one queue entry by filepath.
func (d *Database) GetFilesystemPath(ctx context.Context, path string) (*FilesystemPath, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return scanFilesystemPath(d.db.QueryRowContext(ctx, `
		SELECT id, filepath, is_directory, checksum, ingest_priority, ingest_retriever,
		       ingested, ingested_at, last_ingest_id
		FROM filesystem_paths
		WHERE filepath = ?`,
		path,
	))
}
