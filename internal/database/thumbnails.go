package database

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertThumbnail persists one generated preview image row.
func (d *Database) InsertThumbnail(tx *sql.Tx, t *Thumbnail) error {
	res, err := tx.Exec(`
		INSERT INTO media_thumbnails
			(media_reference_id, media_file_id, kind, media_timestamp, thumb_index, file_path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.MediaReferenceID, zeroNullID(t.MediaFileID), t.Kind, t.MediaTimestamp, t.Index, t.FilePath,
	)
	if err != nil {
		return fmt.Errorf("failed to insert thumbnail: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

func zeroNullID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}

// ThumbnailsForReference returns up to limit thumbnails for a
// reference in index order; limit -1 returns all, limit 0 none.
func (d *Database) ThumbnailsForReference(ctx context.Context, referenceID int64, limit int) ([]Thumbnail, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return queryThumbnails(d.db, referenceID, limit)
}

func queryThumbnails(q execer, referenceID int64, limit int) ([]Thumbnail, error) {
	if limit == 0 {
		return nil, nil
	}

	query := `
		SELECT id, media_reference_id, media_file_id, kind, media_timestamp, thumb_index, file_path
		FROM media_thumbnails
		WHERE media_reference_id = ?
		ORDER BY thumb_index, id`
	args := []interface{}{referenceID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanThumbnails(rows)
}

// ThumbnailNearest returns the single thumbnail whose media timestamp
// is closest to the target, used for animated media previews.
func (d *Database) ThumbnailNearest(ctx context.Context, referenceID int64, target float64) (*Thumbnail, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return nearestThumbnail(d.db, referenceID, target)
}

func nearestThumbnail(q execer, referenceID int64, target float64) (*Thumbnail, error) {
	rows, err := q.Query(`
		SELECT id, media_reference_id, media_file_id, kind, media_timestamp, thumb_index, file_path
		FROM media_thumbnails
		WHERE media_reference_id = ?
		ORDER BY ABS(media_timestamp - ?) LIMIT 1`,
		referenceID, target,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	thumbs, err := scanThumbnails(rows)
	if err != nil {
		return nil, err
	}
	if len(thumbs) == 0 {
		return nil, ErrNotFound
	}
	return &thumbs[0], nil
}

func scanThumbnails(rows *sql.Rows) ([]Thumbnail, error) {
	var thumbs []Thumbnail
	for rows.Next() {
		var t Thumbnail
		var fileID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.MediaReferenceID, &fileID, &t.Kind,
			&t.MediaTimestamp, &t.Index, &t.FilePath); err != nil {
			return nil, err
		}
		t.MediaFileID = fileID.Int64
		thumbs = append(thumbs, t)
	}
	return thumbs, rows.Err()
}
