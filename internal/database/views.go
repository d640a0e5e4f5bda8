package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertView records the start of a playback session. The reference's
// view_count and last_viewed_at move via trigger, which in turn
// cascades the unread counts of attached tags.
func (d *Database) InsertView(tx *sql.Tx, v *View) error {
	res, err := tx.Exec(`
		INSERT INTO views (media_reference_id, start_timestamp, end_timestamp, duration, num_loops)
		VALUES (?, ?, ?, ?, ?)`,
		v.MediaReferenceID, v.StartTimestamp.Unix(), nullTime(v.EndTimestamp), v.Duration, v.NumLoops,
	)
	if err != nil {
		return fmt.Errorf("failed to insert view: %w", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

// UpdateView closes out or extends a playback session.
func (d *Database) UpdateView(tx *sql.Tx, id int64, end *time.Time, duration float64, numLoops int) error {
	return deleteExact(tx, "update_view", `
		UPDATE views
		SET end_timestamp = ?, duration = ?, num_loops = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?`,
		1, nullTime(end), duration, numLoops, id)
}

// GetView loads one playback session.
func (d *Database) GetView(ctx context.Context, id int64) (*View, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var v View
	var start int64
	var end sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT id, media_reference_id, start_timestamp, end_timestamp, duration, num_loops
		FROM views WHERE id = ?`, id,
	).Scan(&v.ID, &v.MediaReferenceID, &start, &end, &v.Duration, &v.NumLoops)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.StartTimestamp = time.Unix(start, 0)
	v.EndTimestamp = timePtr(end)
	return &v, nil
}

// InsertKeypoint labels a time range of an animated reference with a
// tag.
func (d *Database) InsertKeypoint(tx *sql.Tx, kp *Keypoint) error {
	res, err := tx.Exec(`
		INSERT INTO media_keypoints (media_reference_id, tag_id, media_timestamp, duration)
		VALUES (?, ?, ?, ?)`,
		kp.MediaReferenceID, kp.TagID, kp.MediaTimestamp, kp.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert keypoint: %w", err)
	}
	kp.ID, err = res.LastInsertId()
	return err
}

// KeypointsForReference lists a reference's keypoints in time order.
func (d *Database) KeypointsForReference(ctx context.Context, referenceID int64) ([]Keypoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, media_reference_id, tag_id, media_timestamp, duration
		FROM media_keypoints
		WHERE media_reference_id = ?
		ORDER BY media_timestamp`,
		referenceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kps []Keypoint
	for rows.Next() {
		var kp Keypoint
		if err := rows.Scan(&kp.ID, &kp.MediaReferenceID, &kp.TagID, &kp.MediaTimestamp, &kp.Duration); err != nil {
			return nil, err
		}
		kps = append(kps, kp)
	}
	return kps, rows.Err()
}

// KeypointForTag finds the keypoint for a given tag on a reference,
// used to pick the preview frame for animated media.
func (d *Database) KeypointForTag(ctx context.Context, referenceID, tagID int64) (*Keypoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return keypointForTag(d.db, referenceID, tagID)
}

func keypointForTag(q execer, referenceID, tagID int64) (*Keypoint, error) {
	var kp Keypoint
	err := q.QueryRow(`
		SELECT id, media_reference_id, tag_id, media_timestamp, duration
		FROM media_keypoints
		WHERE media_reference_id = ? AND tag_id = ?
		ORDER BY media_timestamp LIMIT 1`,
		referenceID, tagID,
	).Scan(&kp.ID, &kp.MediaReferenceID, &kp.TagID, &kp.MediaTimestamp, &kp.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &kp, nil
}
