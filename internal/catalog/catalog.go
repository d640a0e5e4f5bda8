package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/probe"
)

// Prober is the narrow interface the catalog consumes for technical
// metadata extraction. Production uses probe.FFProbe; tests use a
// fake.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
	Checksum(path string) (string, error)
	GenerateThumbnails(ctx context.Context, path string, res *probe.Result, destDir string) ([]probe.Thumbnail, error)
}

// Config tunes catalog behavior.
type Config struct {
	// ThumbnailDir is the root under which per-file thumbnail
	// directories are created, named by content checksum.
	ThumbnailDir string

	// AutoCleanupTags deletes tag rows whose last reference is
	// removed.
	AutoCleanupTags bool

	// PreviewPercent positions the single-thumbnail preview frame for
	// animated media, as a fraction of duration.
	PreviewPercent float64
}

// Engine implements the catalog's mutation surface: create, update,
// upsert, delete, and get of media references, with checksum dedup,
// directory-series construction, and edit-log auditing.
type Engine struct {
	db    *database.Database
	probe Prober
	cfg   Config
}

// New builds a catalog engine over an open database.
func New(db *database.Database, p Prober, cfg Config) *Engine {
	return &Engine{db: db, probe: p, cfg: cfg}
}

// MediaInfo carries caller-supplied descriptive fields. Nil pointers
// mean "leave unchanged" (update) or "unset" (create).
type MediaInfo struct {
	Title           *string                `json:"title,omitempty"`
	Description     *string                `json:"description,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	SourceURL       *string                `json:"sourceUrl,omitempty"`
	SourceCreatedAt *time.Time             `json:"sourceCreatedAt,omitempty"`
	Stars           *int                   `json:"stars,omitempty"`
}

func (m *MediaInfo) validate() error {
	if m == nil {
		return nil
	}
	if m.Stars != nil && (*m.Stars < 0 || *m.Stars > 5) {
		return invalidInput("stars", "%d is outside [0,5]", *m.Stars)
	}
	return nil
}

func recordOp(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.CatalogOpsTotal.WithLabelValues(op, status).Inc()
	metrics.CatalogOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// entryOptions is how mutations hydrate their return value.
func (e *Engine) entryOptions() database.ThumbnailOptions {
	return database.ThumbnailOptions{Limit: -1, PreviewPercent: e.cfg.PreviewPercent}
}

// Create catalogs the file at path: dedup check by content checksum,
// probe, thumbnail generation, then one transaction creating the
// reference, file, tags, directory-series chain, and CREATE audit
// entry. Expensive I/O happens before the transaction opens.
func (e *Engine) Create(ctx context.Context, path string, info *MediaInfo, tags []string, editor string) (*database.CatalogEntry, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("create", start, err) }()

	var entry *database.CatalogEntry
	entry, err = e.create(ctx, path, info, tags, editor)
	return entry, err
}

func (e *Engine) create(ctx context.Context, path string, info *MediaInfo, tags []string, editor string) (*database.CatalogEntry, error) {
	if !filepath.IsAbs(path) {
		return nil, invalidInput("filepath", "%q is not absolute", path)
	}
	if err := info.validate(); err != nil {
		return nil, err
	}
	specs, err := normalizeTags(tags)
	if err != nil {
		return nil, err
	}

	checksum, err := e.probe.Checksum(path)
	if err != nil {
		return nil, err
	}

	if existing, err := e.db.GetFileByChecksum(ctx, checksum); err == nil {
		if existing.Filepath == path {
			return nil, &AlreadyExistsError{
				Filepath:    path,
				Checksum:    checksum,
				ReferenceID: existing.MediaReferenceID,
			}
		}
		metrics.CatalogDuplicatesTotal.Inc()
		return nil, &DuplicateContentError{ExistingFilepath: existing.Filepath, Checksum: checksum}
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	// The path may be cataloged with different content (file replaced
	// on disk); resolve through update, not a second create.
	if existing, err := e.db.GetFileByPath(ctx, path); err == nil {
		return nil, &AlreadyExistsError{
			Filepath:    path,
			Checksum:    existing.Checksum,
			ReferenceID: existing.MediaReferenceID,
		}
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	probed, err := e.probe.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		// The file can vanish between checksumming and here; that is
		// a per-file failure, not a store fault.
		return nil, &probe.Error{Path: path, Err: err}
	}

	thumbDir := probe.ThumbnailDir(e.cfg.ThumbnailDir, checksum)
	thumbs, err := e.probe.GenerateThumbnails(ctx, path, probed, thumbDir)
	if err != nil {
		return nil, err
	}

	ref := &database.MediaReference{Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}
	applyInfo(ref, info)

	txErr := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.db.InsertReference(tx, ref); err != nil {
			return err
		}

		file := &database.MediaFile{
			MediaReferenceID:       ref.ID,
			Filepath:               path,
			Filename:               filepath.Base(path),
			ThumbnailDirectoryPath: thumbDir,
			FileSizeBytes:          stat.Size(),
			Checksum:               checksum,
			MediaType:              probed.MediaType,
			Codec:                  probed.Codec,
			ContentType:            probed.ContentType,
			Width:                  probed.Width,
			Height:                 probed.Height,
			Animated:               probed.Animated,
			HasAudio:               probed.HasAudio,
			Duration:               probed.Duration,
			Framerate:              probed.Framerate,
		}
		if err := e.db.InsertFile(tx, file); err != nil {
			return err
		}

		added, err := e.attachNewTags(tx, ref.ID, editor, specs)
		if err != nil {
			return err
		}

		if err := e.linkDirectoryChain(tx, ref.ID, path); err != nil {
			return err
		}

		for _, t := range thumbs {
			if err := e.db.InsertThumbnail(tx, &database.Thumbnail{
				MediaReferenceID: ref.ID,
				MediaFileID:      file.ID,
				Kind:             database.ThumbnailStandard,
				MediaTimestamp:   t.Timestamp,
				Index:            t.Index,
				FilePath:         t.Path,
			}); err != nil {
				return err
			}
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
	if txErr != nil {
		// The generated thumbnails belong to a row that never
		// committed.
		if rmErr := os.RemoveAll(thumbDir); rmErr != nil {
			logging.Warn("Failed to clean up thumbnails at %s: %v", thumbDir, rmErr)
		}
		return nil, txErr
	}

	logging.Info("Cataloged %s as reference %d", path, ref.ID)
	return e.db.GetCatalogEntry(ctx, ref.ID, e.entryOptions())
}

// applyInfo copies provided MediaInfo fields onto a reference.
func applyInfo(ref *database.MediaReference, info *MediaInfo) {
	if info == nil {
		return
	}
	if info.Title != nil {
		ref.Title = *info.Title
	}
	if info.Description != nil {
		ref.Description = *info.Description
	}
	if info.Metadata != nil {
		ref.Metadata = info.Metadata
	}
	if info.SourceURL != nil {
		ref.SourceURL = *info.SourceURL
	}
	if info.SourceCreatedAt != nil {
		ref.SourceCreatedAt = info.SourceCreatedAt
	}
	if info.Stars != nil {
		ref.Stars = *info.Stars
	}
}

// infoDocument captures a freshly created reference's descriptive
// fields for its CREATE audit entry.
func infoDocument(ref *database.MediaReference) map[string]interface{} {
	doc := map[string]interface{}{}
	if ref.Title != "" {
		doc["title"] = ref.Title
	}
	if ref.Description != "" {
		doc["description"] = ref.Description
	}
	if len(ref.Metadata) > 0 {
		doc["metadata"] = ref.Metadata
	}
	if ref.SourceURL != "" {
		doc["source_url"] = ref.SourceURL
	}
	if ref.SourceCreatedAt != nil {
		doc["source_created_at"] = ref.SourceCreatedAt.Unix()
	}
	if ref.Stars != 0 {
		doc["stars"] = ref.Stars
	}
	return doc
}

// Update applies changed descriptive fields and tag instructions to an
// existing reference, appending an UPDATE audit entry that records
// only what actually changed.
func (e *Engine) Update(ctx context.Context, referenceID int64, info *MediaInfo, instr *TagInstructions, editor string) (*database.CatalogEntry, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("update", start, err) }()

	var entry *database.CatalogEntry
	entry, err = e.update(ctx, referenceID, info, instr, editor)
	return entry, err
}

func (e *Engine) update(ctx context.Context, referenceID int64, info *MediaInfo, instr *TagInstructions, editor string) (*database.CatalogEntry, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}

	ref, err := e.db.GetReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	fields, changes := changedFields(ref, info)

	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.db.UpdateReferenceFields(tx, referenceID, fields); err != nil {
			return err
		}

		diff, err := e.applyTagInstructions(tx, referenceID, editor, instr)
		if err != nil {
			return err
		}

		if len(changes) == 0 && len(diff.Added) == 0 && len(diff.Removed) == 0 {
			return nil
		}

		if err := e.db.AddEditor(tx, referenceID, editor); err != nil {
			return err
		}
		return e.db.AppendEditLog(tx, &database.EditLogEntry{
			MediaReferenceID: referenceID,
			Editor:           editor,
			Operation:        database.OperationUpdate,
			Changes:          database.ChangeSet{MediaInfo: changes, Tags: diff},
		})
	})
	if err != nil {
		return nil, err
	}

	return e.db.GetCatalogEntry(ctx, referenceID, e.entryOptions())
}

// changedFields diffs MediaInfo against current reference state,
// returning both the column map for the store and the audit document.
func changedFields(ref *database.MediaReference, info *MediaInfo) (map[string]interface{}, map[string]interface{}) {
	fields := map[string]interface{}{}
	changes := map[string]interface{}{}
	if info == nil {
		return fields, changes
	}

	if info.Title != nil && *info.Title != ref.Title {
		fields["title"] = nullable(*info.Title)
		changes["title"] = *info.Title
	}
	if info.Description != nil && *info.Description != ref.Description {
		fields["description"] = nullable(*info.Description)
		changes["description"] = *info.Description
	}
	if info.Metadata != nil && !reflect.DeepEqual(info.Metadata, ref.Metadata) {
		fields["metadata"] = marshalMetadata(info.Metadata)
		changes["metadata"] = info.Metadata
	}
	if info.SourceURL != nil && *info.SourceURL != ref.SourceURL {
		fields["source_url"] = nullable(*info.SourceURL)
		changes["source_url"] = *info.SourceURL
	}
	if info.SourceCreatedAt != nil && !sameTime(info.SourceCreatedAt, ref.SourceCreatedAt) {
		fields["source_created_at"] = info.SourceCreatedAt.Unix()
		changes["source_created_at"] = info.SourceCreatedAt.Unix()
	}
	if info.Stars != nil && *info.Stars != ref.Stars {
		fields["stars"] = *info.Stars
		changes["stars"] = *info.Stars
	}
	return fields, changes
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalMetadata(meta map[string]interface{}) interface{} {
	if len(meta) == 0 {
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return string(b)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Unix() == b.Unix()
}

// Upsert creates the file's catalog entry, or updates the existing one
// when the same path is already cataloged. Duplicate content at a
// different path still fails.
func (e *Engine) Upsert(ctx context.Context, path string, info *MediaInfo, tags []string, editor string) (*database.CatalogEntry, bool, error) {
	entry, err := e.Create(ctx, path, info, tags, editor)
	if err == nil {
		return entry, true, nil
	}

	var exists *AlreadyExistsError
	if !errors.As(err, &exists) {
		return nil, false, err
	}

	entry, err = e.Update(ctx, exists.ReferenceID, info, &TagInstructions{Add: tags}, editor)
	return entry, false, err
}

// Delete removes a reference and everything owned by it, except the
// append-only edit log. The on-disk thumbnail directory goes after the
// transaction commits.
func (e *Engine) Delete(ctx context.Context, referenceID int64) error {
	start := time.Now()
	var err error
	defer func() { recordOp("delete", start, err) }()

	err = e.delete(ctx, referenceID)
	return err
}

func (e *Engine) delete(ctx context.Context, referenceID int64) error {
	ref, err := e.db.GetReference(ctx, referenceID)
	if err != nil {
		return err
	}

	tags, err := e.db.TagsForReference(ctx, referenceID)
	if err != nil {
		return err
	}

	var file *database.MediaFile
	if !ref.IsSeries {
		file, err = e.db.GetFileByReference(ctx, referenceID)
		if err != nil {
			return err
		}
	}

	err = e.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.db.DeleteReferenceRows(tx, referenceID, int64(len(tags)), file != nil); err != nil {
			return err
		}
		if e.cfg.AutoCleanupTags {
			for _, tag := range tags {
				if _, err := e.db.DeleteTagIfOrphaned(tx, tag.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if file != nil && file.ThumbnailDirectoryPath != "" {
		if rmErr := os.RemoveAll(file.ThumbnailDirectoryPath); rmErr != nil {
			logging.Warn("Failed to remove thumbnail directory %s: %v", file.ThumbnailDirectoryPath, rmErr)
		}
	}

	logging.Info("Deleted reference %d (%s)", referenceID, ref.Title)
	return nil
}

// Get returns the fully hydrated entry for a reference id.
func (e *Engine) Get(ctx context.Context, referenceID int64) (*database.CatalogEntry, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("get", start, err) }()

	var entry *database.CatalogEntry
	entry, err = e.db.GetCatalogEntry(ctx, referenceID, e.entryOptions())
	return entry, err
}

// GetByFilepath resolves an entry through its file's path.
func (e *Engine) GetByFilepath(ctx context.Context, path string) (*database.CatalogEntry, error) {
	start := time.Now()
	var err error
	defer func() { recordOp("get", start, err) }()

	ref, refErr := e.db.GetReferenceByFilepath(ctx, path)
	if refErr != nil {
		err = refErr
		return nil, err
	}
	var entry *database.CatalogEntry
	entry, err = e.db.GetCatalogEntry(ctx, ref.ID, e.entryOptions())
	return entry, err
}

// EditLog returns a reference's audit trail, oldest first. It remains
// readable after the reference is deleted.
func (e *Engine) EditLog(ctx context.Context, referenceID int64) ([]database.EditLogEntry, error) {
	return e.db.EditLogForReference(ctx, referenceID)
}

// Stats reports catalog totals.
func (e *Engine) Stats(ctx context.Context) (database.CatalogStats, error) {
	return e.db.Stats(ctx)
}
