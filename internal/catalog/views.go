package catalog

import (
	"context"
	"database/sql"
	"time"

	"media-catalog/internal/database"
)

// ViewSession carries the playback fields of a view start or update.
// Duration is seconds watched; NumLoops counts completed loops of
// animated media.
type ViewSession struct {
	Duration float64 `json:"duration,omitempty"`
	NumLoops int     `json:"numLoops,omitempty"`
}

// validateSession rejects playback fields that make no sense for the
// file: loop counts on non-animated media, watch duration on media
// with no duration.
func validateSession(file *database.MediaFile, s ViewSession) error {
	if s.Duration < 0 {
		return invalidInput("duration", "%f is negative", s.Duration)
	}
	if s.NumLoops < 0 {
		return invalidInput("num_loops", "%d is negative", s.NumLoops)
	}
	if !file.Animated && s.NumLoops > 0 {
		return invalidInput("num_loops", "%s is not animated", file.Filename)
	}
	if file.Duration == 0 && s.Duration > 0 {
		return invalidInput("duration", "%s has no playback duration", file.Filename)
	}
	return nil
}

// StartView records the start of a playback session. The reference's
// view count and unread status move atomically with the insert.
func (e *Engine) StartView(ctx context.Context, referenceID int64, s ViewSession) (*database.View, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("view_start", start, err) }()

	ref, gErr := e.db.GetReference(ctx, referenceID)
	if gErr != nil {
		err = gErr
		return nil, err
	}
	if ref.IsSeries {
		err = invalidInput("reference_id", "views attach to file references, %d is a series", referenceID)
		return nil, err
	}

	file, fErr := e.db.GetFileByReference(ctx, referenceID)
	if fErr != nil {
		err = fErr
		return nil, err
	}
	if err = validateSession(file, s); err != nil {
		return nil, err
	}

	view := &database.View{
		MediaReferenceID: referenceID,
		StartTimestamp:   time.Now(),
		Duration:         s.Duration,
		NumLoops:         s.NumLoops,
	}
	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		return e.db.InsertView(tx, view)
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// UpdateView closes out or extends a playback session.
func (e *Engine) UpdateView(ctx context.Context, viewID int64, end *time.Time, s ViewSession) (*database.View, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("view_update", start, err) }()

	view, gErr := e.db.GetView(ctx, viewID)
	if gErr != nil {
		err = gErr
		return nil, err
	}

	file, fErr := e.db.GetFileByReference(ctx, view.MediaReferenceID)
	if fErr != nil {
		err = fErr
		return nil, err
	}
	if err = validateSession(file, s); err != nil {
		return nil, err
	}

	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		return e.db.UpdateView(tx, viewID, end, s.Duration, s.NumLoops)
	})
	if err != nil {
		return nil, err
	}
	return e.db.GetView(ctx, viewID)
}
