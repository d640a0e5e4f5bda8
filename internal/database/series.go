package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSeriesItem returns the membership row linking a reference into a
// series, or ErrNotFound.
func (d *Database) GetSeriesItem(tx *sql.Tx, seriesID, referenceID int64) (*SeriesItem, error) {
	var item SeriesItem
	err := tx.QueryRow(`
		SELECT id, series_reference_id, media_reference_id, series_index
		FROM media_series_items
		WHERE series_reference_id = ? AND media_reference_id = ?`,
		seriesID, referenceID,
	).Scan(&item.ID, &item.SeriesReferenceID, &item.MediaReferenceID, &item.SeriesIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertSeriesItem appends a reference to a series. A negative index
// means "next free slot". The series reference's series_length is
// maintained by trigger.
func (d *Database) InsertSeriesItem(tx *sql.Tx, seriesID, referenceID int64, index int) (*SeriesItem, error) {
	if index < 0 {
		if err := tx.QueryRow(
			`SELECT COALESCE(MAX(series_index) + 1, 0) FROM media_series_items WHERE series_reference_id = ?`,
			seriesID,
		).Scan(&index); err != nil {
			return nil, err
		}
	}

	res, err := tx.Exec(`
		INSERT INTO media_series_items (series_reference_id, media_reference_id, series_index)
		VALUES (?, ?, ?)`,
		seriesID, referenceID, index,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert series item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &SeriesItem{
		ID:                id,
		SeriesReferenceID: seriesID,
		MediaReferenceID:  referenceID,
		SeriesIndex:       index,
	}, nil
}

// SeriesItems lists a series' members in order.
func (d *Database) SeriesItems(ctx context.Context, seriesID int64) ([]SeriesItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, series_reference_id, media_reference_id, series_index
		FROM media_series_items
		WHERE series_reference_id = ?
		ORDER BY series_index, id`,
		seriesID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SeriesItem
	for rows.Next() {
		var item SeriesItem
		if err := rows.Scan(&item.ID, &item.SeriesReferenceID, &item.MediaReferenceID, &item.SeriesIndex); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
