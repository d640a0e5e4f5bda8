package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AppendEditLog appends one audit record. Edit log rows are never
// updated or deleted.
func (d *Database) AppendEditLog(tx *sql.Tx, entry *EditLogEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("failed to encode edit log changes: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO edit_log (media_reference_id, editor, operation_type, changes)
		VALUES (?, ?, ?, ?)`,
		entry.MediaReferenceID, nullStr(entry.Editor), entry.Operation, string(changes),
	)
	if err != nil {
		return fmt.Errorf("failed to append edit log: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	entry.CreatedAt = time.Now()
	return nil
}

// EditLogForReference returns a reference's audit trail, oldest first.
func (d *Database) EditLogForReference(ctx context.Context, referenceID int64) ([]EditLogEntry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("edit_log_for_reference", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, qErr := d.db.QueryContext(ctx, `
		SELECT id, media_reference_id, editor, operation_type, changes, created_at
		FROM edit_log
		WHERE media_reference_id = ?
		ORDER BY id`,
		referenceID,
	)
	if qErr != nil {
		err = qErr
		return nil, err
	}
	defer rows.Close()

	var entries []EditLogEntry
	for rows.Next() {
		var e EditLogEntry
		var editor sql.NullString
		var changes string
		var createdAt int64

		if scanErr := rows.Scan(&e.ID, &e.MediaReferenceID, &editor, &e.Operation, &changes, &createdAt); scanErr != nil {
			err = scanErr
			return nil, err
		}
		e.Editor = strOf(editor)
		e.CreatedAt = time.Unix(createdAt, 0)
		if decodeErr := json.Unmarshal([]byte(changes), &e.Changes); decodeErr != nil {
			err = fmt.Errorf("corrupt edit log entry %d: %w", e.ID, decodeErr)
			return nil, err
		}
		entries = append(entries, e)
	}
	err = rows.Err()
	return entries, err
}

// LastEditorOf answers "who last changed field X" by scanning the
// audit trail newest-first. Returns ErrNotFound when no entry touched
// the field.
func (d *Database) LastEditorOf(ctx context.Context, referenceID int64, field string) (editor string, at time.Time, err error) {
	entries, err := d.EditLogForReference(ctx, referenceID)
	if err != nil {
		return "", time.Time{}, err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if _, ok := entries[i].Changes.MediaInfo[field]; ok {
			return entries[i].Editor, entries[i].CreatedAt, nil
		}
	}
	return "", time.Time{}, ErrNotFound
}
