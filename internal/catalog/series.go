package catalog

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"time"

	"media-catalog/internal/database"
)

// directoryChain returns the directory components of a file path from
// root to immediate parent, e.g. /a/b/c.jpg -> [/a, /a/b].
func directoryChain(path string) []string {
	var chain []string
	dir := filepath.Dir(path)
	for dir != "/" && dir != "." && dir != string(filepath.Separator) {
		chain = append(chain, dir)
		dir = filepath.Dir(dir)
	}
	// Collected leaf-first; reverse to root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// linkDirectoryChain builds or extends the directory-series hierarchy
// for a file path and attaches the leaf reference to its parent
// directory's series. Existing chain segments are reused, never
// duplicated.
func (e *Engine) linkDirectoryChain(tx *sql.Tx, leafID int64, path string) error {
	var parentID int64
	for i, dir := range directoryChain(path) {
		ref, err := e.db.GetReferenceByDirectoryPath(tx, dir)
		if errors.Is(err, database.ErrNotFound) {
			ref = &database.MediaReference{
				Title:             filepath.Base(dir),
				IsSeries:          true,
				IsDirectorySeries: true,
				DirectoryPath:     dir,
				IsDirectoryRoot:   i == 0,
			}
			if err := e.db.InsertReference(tx, ref); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if parentID != 0 {
			if err := e.ensureSeriesMember(tx, parentID, ref.ID); err != nil {
				return err
			}
		}
		parentID = ref.ID
	}

	if parentID == 0 {
		return nil
	}
	return e.ensureSeriesMember(tx, parentID, leafID)
}

// ensureSeriesMember appends a reference to a series unless the
// membership already exists.
func (e *Engine) ensureSeriesMember(tx *sql.Tx, seriesID, referenceID int64) error {
	_, err := e.db.GetSeriesItem(tx, seriesID, referenceID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return err
	}
	_, err = e.db.InsertSeriesItem(tx, seriesID, referenceID, -1)
	return err
}

// CreateSeries creates a manual (non-directory) series reference.
func (e *Engine) CreateSeries(ctx context.Context, info *MediaInfo, tags []string, editor string) (*database.CatalogEntry, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("series_create", start, err) }()

	if err = info.validate(); err != nil {
		return nil, err
	}
	specs, sErr := normalizeTags(tags)
	if sErr != nil {
		err = sErr
		return nil, err
	}

	ref := &database.MediaReference{IsSeries: true}
	applyInfo(ref, info)

	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.db.InsertReference(tx, ref); err != nil {
			return err
		}
		added, err := e.attachNewTags(tx, ref.ID, editor, specs)
		if err != nil {
			return err
		}
		if err := e.db.AddEditor(tx, ref.ID, editor); err != nil {
			return err
		}
		return e.db.AppendEditLog(tx, &database.EditLogEntry{
			MediaReferenceID: ref.ID,
			Editor:           editor,
			Operation:        database.OperationCreate,
			Changes: database.ChangeSet{
				MediaInfo: infoDocument(ref),
				Tags:      database.TagDiff{Added: added},
			},
		})
	})
	if err != nil {
		return nil, err
	}

	var entry *database.CatalogEntry
	entry, err = e.db.GetCatalogEntry(ctx, ref.ID, e.entryOptions())
	return entry, err
}

// AddToSeries appends a reference to a series at the given index;
// index -1 appends at the end. Adding an existing member is a no-op.
func (e *Engine) AddToSeries(ctx context.Context, seriesID, referenceID int64, index int) error {
	start := time.Now()
	var err error
	defer func() { recordOp("series_add", start, err) }()

	series, gErr := e.db.GetReference(ctx, seriesID)
	if gErr != nil {
		err = gErr
		return err
	}
	if !series.IsSeries {
		err = invalidInput("series_id", "reference %d is not a series", seriesID)
		return err
	}
	if seriesID == referenceID {
		err = invalidInput("reference_id", "a series cannot contain itself")
		return err
	}
	if _, gErr := e.db.GetReference(ctx, referenceID); gErr != nil {
		err = gErr
		return err
	}

	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if index < 0 {
			return e.ensureSeriesMember(tx, seriesID, referenceID)
		}
		if _, err := e.db.GetSeriesItem(tx, seriesID, referenceID); err == nil {
			return nil
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}
		_, err := e.db.InsertSeriesItem(tx, seriesID, referenceID, index)
		return err
	})
	return err
}

// Series is a hydrated series entry with its members in order.
type Series struct {
	Entry   database.CatalogEntry   `json:"entry"`
	Members []database.CatalogEntry `json:"members"`
}

// GetSeries returns a series and its ordered members.
func (e *Engine) GetSeries(ctx context.Context, seriesID int64) (*Series, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("series_get", start, err) }()

	entry, gErr := e.db.GetCatalogEntry(ctx, seriesID, e.entryOptions())
	if gErr != nil {
		err = gErr
		return nil, err
	}
	if _, ok := entry.Content.(database.SeriesContent); !ok {
		err = invalidInput("series_id", "reference %d is not a series", seriesID)
		return nil, err
	}

	items, iErr := e.db.SeriesItems(ctx, seriesID)
	if iErr != nil {
		err = iErr
		return nil, err
	}

	series := &Series{Entry: *entry}
	for _, item := range items {
		member, mErr := e.db.GetCatalogEntry(ctx, item.MediaReferenceID, database.ThumbnailOptions{
			Limit:          1,
			PreviewPercent: e.cfg.PreviewPercent,
		})
		if mErr != nil {
			err = mErr
			return nil, err
		}
		series.Members = append(series.Members, *member)
	}
	return series, nil
}
