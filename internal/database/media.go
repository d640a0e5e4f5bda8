package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// referenceColumns is the scan order shared by every reference query.
const referenceColumns = `
	id, title, description, metadata, source_url, source_created_at,
	stars, view_count, last_viewed_at, is_series, is_directory_series,
	directory_path, is_directory_root, tag_count, series_length,
	created_at, updated_at
`

func scanReference(row rowScanner) (*MediaReference, error) {
	var ref MediaReference
	var title, description, metadata, sourceURL, directoryPath sql.NullString
	var sourceCreatedAt, lastViewedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&ref.ID, &title, &description, &metadata, &sourceURL, &sourceCreatedAt,
		&ref.Stars, &ref.ViewCount, &lastViewedAt, &ref.IsSeries, &ref.IsDirectorySeries,
		&directoryPath, &ref.IsDirectoryRoot, &ref.TagCount, &ref.SeriesLength,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ref.Title = strOf(title)
	ref.Description = strOf(description)
	ref.Metadata = unmarshalMeta(metadata)
	ref.SourceURL = strOf(sourceURL)
	ref.SourceCreatedAt = timePtr(sourceCreatedAt)
	ref.LastViewedAt = timePtr(lastViewedAt)
	ref.DirectoryPath = strOf(directoryPath)
	ref.CreatedAt = time.Unix(createdAt, 0)
	ref.UpdatedAt = time.Unix(updatedAt, 0)
	return &ref, nil
}

// InsertReference inserts a media reference row and fills in its id.
func (d *Database) InsertReference(tx *sql.Tx, ref *MediaReference) error {
	meta, err := marshalMeta(ref.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode reference metadata: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO media_references
			(title, description, metadata, source_url, source_created_at, stars,
			 is_series, is_directory_series, directory_path, is_directory_root)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullStr(ref.Title), nullStr(ref.Description), meta, nullStr(ref.SourceURL),
		nullTime(ref.SourceCreatedAt), ref.Stars,
		ref.IsSeries, ref.IsDirectorySeries, nullStr(ref.DirectoryPath), ref.IsDirectoryRoot,
	)
	if err != nil {
		return fmt.Errorf("failed to insert media reference: %w", err)
	}

	ref.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	now := time.Now()
	ref.CreatedAt = now
	ref.UpdatedAt = now
	return nil
}

// referenceUpdateColumns lists the columns UpdateReferenceFields may
// touch; anything else is a programming error.
var referenceUpdateColumns = map[string]bool{
	"title":             true,
	"description":       true,
	"metadata":          true,
	"source_url":        true,
	"source_created_at": true,
	"stars":             true,
}

// UpdateReferenceFields applies a partial update to a reference row
// and touches updated_at. The fields map is keyed by column name.
func (d *Database) UpdateReferenceFields(tx *sql.Tx, id int64, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+1)
	for col, val := range fields {
		if !referenceUpdateColumns[col] {
			return fmt.Errorf("column %q is not updatable", col)
		}
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	sets = append(sets, "updated_at = strftime('%s', 'now')")
	args = append(args, id)

	query := "UPDATE media_references SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	return deleteExact(tx, "update_reference", query, 1, args...)
}

// GetReference loads one reference row (with its editors) by id.
func (d *Database) GetReference(ctx context.Context, id int64) (*MediaReference, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_reference", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var ref *MediaReference
	ref, err = d.getReference(d.db, id)
	return ref, err
}

// GetReferenceTx is GetReference inside a transaction.
func (d *Database) GetReferenceTx(tx *sql.Tx, id int64) (*MediaReference, error) {
	return d.getReference(tx, id)
}

func (d *Database) getReference(q execer, id int64) (*MediaReference, error) {
	ref, err := scanReference(q.QueryRow(
		`SELECT `+referenceColumns+` FROM media_references WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	ref.Editors, err = queryEditors(q, id)
	return ref, err
}

// GetReferenceByFilepath resolves a reference through its media file.
func (d *Database) GetReferenceByFilepath(ctx context.Context, path string) (*MediaReference, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var id int64
	err := d.db.QueryRow(`SELECT media_reference_id FROM media_files WHERE filepath = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.getReference(d.db, id)
}

// GetReferenceByDirectoryPath resolves a directory series reference
// inside a transaction.
func (d *Database) GetReferenceByDirectoryPath(tx *sql.Tx, dirPath string) (*MediaReference, error) {
	ref, err := scanReference(tx.QueryRow(
		`SELECT `+referenceColumns+` FROM media_references WHERE directory_path = ?`, dirPath))
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// GetReferenceByDirectory resolves a directory series reference.
func (d *Database) GetReferenceByDirectory(ctx context.Context, dirPath string) (*MediaReference, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ref, err := scanReference(d.db.QueryRowContext(ctx,
		`SELECT `+referenceColumns+` FROM media_references WHERE directory_path = ?`, dirPath))
	if err != nil {
		return nil, err
	}
	ref.Editors, err = queryEditors(d.db, ref.ID)
	return ref, err
}

// AddEditor records that an editor has mutated a reference. Repeat
// mutations by the same editor collapse into one row.
func (d *Database) AddEditor(tx *sql.Tx, referenceID int64, editor string) error {
	if editor == "" {
		return nil
	}
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO media_reference_editors (media_reference_id, editor) VALUES (?, ?)`,
		referenceID, editor,
	)
	return err
}

func queryEditors(q execer, referenceID int64) ([]string, error) {
	rows, err := q.Query(
		`SELECT editor FROM media_reference_editors WHERE media_reference_id = ? ORDER BY created_at, editor`,
		referenceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var editors []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		editors = append(editors, e)
	}
	return editors, rows.Err()
}

const fileColumns = `
	id, media_reference_id, filepath, filename, thumbnail_directory_path,
	file_size_bytes, checksum, media_type, codec, content_type,
	width, height, animated, has_audio, duration, framerate,
	created_at, updated_at
`

func scanFile(row rowScanner) (*MediaFile, error) {
	var f MediaFile
	var thumbDir, codec, contentType sql.NullString
	var width, height sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&f.ID, &f.MediaReferenceID, &f.Filepath, &f.Filename, &thumbDir,
		&f.FileSizeBytes, &f.Checksum, &f.MediaType, &codec, &contentType,
		&width, &height, &f.Animated, &f.HasAudio, &f.Duration, &f.Framerate,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	f.ThumbnailDirectoryPath = strOf(thumbDir)
	f.Codec = strOf(codec)
	f.ContentType = strOf(contentType)
	f.Width = intOf(width)
	f.Height = intOf(height)
	f.CreatedAt = time.Unix(createdAt, 0)
	f.UpdatedAt = time.Unix(updatedAt, 0)
	return &f, nil
}

// InsertFile inserts a media file row and fills in its id.
func (d *Database) InsertFile(tx *sql.Tx, f *MediaFile) error {
	res, err := tx.Exec(`
		INSERT INTO media_files
			(media_reference_id, filepath, filename, thumbnail_directory_path,
			 file_size_bytes, checksum, media_type, codec, content_type,
			 width, height, animated, has_audio, duration, framerate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.MediaReferenceID, f.Filepath, f.Filename, nullStr(f.ThumbnailDirectoryPath),
		f.FileSizeBytes, f.Checksum, f.MediaType, nullStr(f.Codec), nullStr(f.ContentType),
		zeroNull(f.Width), zeroNull(f.Height), f.Animated, f.HasAudio, f.Duration, f.Framerate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert media file: %w", err)
	}
	f.ID, err = res.LastInsertId()
	return err
}

func zeroNull(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// GetFileByChecksum is the dedup lookup: at most one file row exists
// per content checksum.
func (d *Database) GetFileByChecksum(ctx context.Context, checksum string) (*MediaFile, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_file_by_checksum", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var f *MediaFile
	f, err = scanFile(d.db.QueryRow(
		`SELECT `+fileColumns+` FROM media_files WHERE checksum = ?`, checksum))
	return f, err
}

// GetFileByReference loads the file row backing a reference.
func (d *Database) GetFileByReference(ctx context.Context, referenceID int64) (*MediaFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return scanFile(d.db.QueryRow(
		`SELECT `+fileColumns+` FROM media_files WHERE media_reference_id = ?`, referenceID))
}

// GetFileByReferenceTx is GetFileByReference inside a transaction.
func (d *Database) GetFileByReferenceTx(tx *sql.Tx, referenceID int64) (*MediaFile, error) {
	return scanFile(tx.QueryRow(
		`SELECT `+fileColumns+` FROM media_files WHERE media_reference_id = ?`, referenceID))
}

// GetFileByPath loads a file row by filepath.
func (d *Database) GetFileByPath(ctx context.Context, path string) (*MediaFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return scanFile(d.db.QueryRow(
		`SELECT `+fileColumns+` FROM media_files WHERE filepath = ?`, path))
}

// DeleteReferenceRows removes every row belonging to a reference, in
// dependency order, asserting exact counts where the caller knows
// them. Edit log rows are append-only and deliberately survive.
func (d *Database) DeleteReferenceRows(tx *sql.Tx, referenceID int64, expectedTags int64, hasFile bool) error {
	if err := deleteExact(tx, "delete_reference_tags",
		`DELETE FROM media_reference_tags WHERE media_reference_id = ?`,
		expectedTags, referenceID); err != nil {
		return err
	}

	for _, del := range []struct {
		op    string
		query string
	}{
		{"delete_thumbnails", `DELETE FROM media_thumbnails WHERE media_reference_id = ?`},
		{"delete_keypoints", `DELETE FROM media_keypoints WHERE media_reference_id = ?`},
		{"delete_series_memberships", `DELETE FROM media_series_items WHERE media_reference_id = ? OR series_reference_id = ?`},
		{"delete_views", `DELETE FROM views WHERE media_reference_id = ?`},
		{"delete_editors", `DELETE FROM media_reference_editors WHERE media_reference_id = ?`},
	} {
		args := []interface{}{referenceID}
		if del.op == "delete_series_memberships" {
			args = append(args, referenceID)
		}
		if _, err := tx.Exec(del.query, args...); err != nil {
			return fmt.Errorf("%s failed: %w", del.op, err)
		}
	}

	if hasFile {
		if err := deleteExact(tx, "delete_file",
			`DELETE FROM media_files WHERE media_reference_id = ?`, 1, referenceID); err != nil {
			return err
		}
	}

	return deleteExact(tx, "delete_reference",
		`DELETE FROM media_references WHERE id = ?`, 1, referenceID)
}
