package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-catalog/internal/database"
	"media-catalog/internal/probe"
)

// fakeProbe derives metadata from file content instead of running
// ffprobe, so catalog tests exercise real files without real media.
type fakeProbe struct {
	animated bool
	duration float64
}

func (p *fakeProbe) Checksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &probe.Error{Path: path, Err: err}
	}
	return fmt.Sprintf("fake-%x", data), nil
}

func (p *fakeProbe) Probe(_ context.Context, path string) (*probe.Result, error) {
	mediaType, ok := probe.TypeForPath(path)
	if !ok {
		return nil, &probe.Error{Path: path, Err: errors.New("unsupported extension")}
	}
	return &probe.Result{
		MediaType: mediaType,
		Codec:     "fake",
		Width:     640,
		Height:    480,
		Animated:  p.animated,
		Duration:  p.duration,
	}, nil
}

func (p *fakeProbe) GenerateThumbnails(_ context.Context, _ string, _ *probe.Result, destDir string) ([]probe.Thumbnail, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	out := filepath.Join(destDir, "0000.jpg")
	if err := os.WriteFile(out, []byte("thumb"), 0o644); err != nil {
		return nil, err
	}
	return []probe.Thumbnail{{Timestamp: 0, Index: 0, Path: out}}, nil
}

type testEnv struct {
	db     *database.Database
	engine *Engine
	probe  *fakeProbe
	root   string
}

func setupEngine(t testing.TB) *testEnv {
	t.Helper()

	root := t.TempDir()
	db, err := database.New(context.Background(), database.Options{
		Path:        filepath.Join(root, "catalog.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fp := &fakeProbe{}
	engine := New(db, fp, Config{
		ThumbnailDir:    filepath.Join(root, "thumbs"),
		AutoCleanupTags: true,
		PreviewPercent:  0.25,
	})
	return &testEnv{db: db, engine: engine, probe: fp, root: root}
}

// writeMedia creates a real file whose content doubles as its fake
// checksum input.
func (env *testEnv) writeMedia(t testing.TB, rel, content string) string {
	t.Helper()

	path := filepath.Join(env.root, "library", rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func TestCreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "a/photo.jpg", "photo-bytes")
	entry, err := env.engine.Create(ctx, path, &MediaInfo{
		Title: strPtr("First Photo"),
		Stars: intPtr(4),
	}, []string{"genre:test", "Mood:Dark Blue"}, "alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if entry.Reference.Title != "First Photo" || entry.Reference.Stars != 4 {
		t.Errorf("Unexpected reference %+v", entry.Reference)
	}
	file := entry.File()
	if file == nil {
		t.Fatal("Expected file content")
	}
	if file.Filepath != path || file.MediaType != database.MediaTypeImage {
		t.Errorf("Unexpected file %+v", file)
	}
	if len(entry.Tags) != 2 {
		t.Fatalf("Expected 2 tags, got %d", len(entry.Tags))
	}
	// Normalization: lower case, spaces to underscores.
	slugs := []string{entry.Tags[0].Slug(), entry.Tags[1].Slug()}
	found := map[string]bool{}
	for _, s := range slugs {
		found[s] = true
	}
	if !found["genre:test"] || !found["mood:dark_blue"] {
		t.Errorf("Unexpected slugs %v", slugs)
	}
	if len(entry.Thumbnails) != 1 {
		t.Errorf("Expected 1 thumbnail, got %d", len(entry.Thumbnails))
	}
	if len(entry.Reference.Editors) != 1 || entry.Reference.Editors[0] != "alice" {
		t.Errorf("Expected editors [alice], got %v", entry.Reference.Editors)
	}

	// The CREATE audit entry captured the initial state.
	log, err := env.engine.EditLog(ctx, entry.Reference.ID)
	if err != nil {
		t.Fatalf("EditLog failed: %v", err)
	}
	if len(log) != 1 || log[0].Operation != database.OperationCreate {
		t.Fatalf("Expected one CREATE entry, got %+v", log)
	}
	if log[0].Changes.MediaInfo["title"] != "First Photo" {
		t.Errorf("Expected title in CREATE changes, got %v", log[0].Changes.MediaInfo)
	}
	if len(log[0].Changes.Tags.Added) != 2 {
		t.Errorf("Expected 2 added tags in CREATE changes, got %v", log[0].Changes.Tags.Added)
	}

	got, err := env.engine.GetByFilepath(ctx, path)
	if err != nil {
		t.Fatalf("GetByFilepath failed: %v", err)
	}
	if got.Reference.ID != entry.Reference.ID {
		t.Errorf("Expected reference %d, got %d", entry.Reference.ID, got.Reference.ID)
	}
}

func TestCreateDedup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "orig.jpg", "identical-bytes")
	if _, err := env.engine.Create(ctx, path, nil, nil, "alice"); err != nil {
		t.Fatalf("First create failed: %v", err)
	}

	// Same path, same content.
	_, err := env.engine.Create(ctx, path, nil, nil, "alice")
	var exists *AlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("Expected AlreadyExistsError, got %v", err)
	}
	if exists.Filepath != path {
		t.Errorf("Expected path %s in error, got %s", path, exists.Filepath)
	}

	// Different path, same content.
	copyPath := env.writeMedia(t, "copy.jpg", "identical-bytes")
	_, err = env.engine.Create(ctx, copyPath, nil, nil, "alice")
	var dup *DuplicateContentError
	if !errors.As(err, &dup) {
		t.Fatalf("Expected DuplicateContentError, got %v", err)
	}
	if dup.ExistingFilepath != path {
		t.Errorf("Expected existing path %s, got %s", path, dup.ExistingFilepath)
	}

	// Exactly one stored file either way.
	stats, err := env.engine.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalFiles != 1 {
		t.Errorf("Expected 1 stored file, got %d", stats.TotalFiles)
	}
}

func TestCreateValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "valid.jpg", "v")

	tests := []struct {
		name string
		info *MediaInfo
		tags []string
	}{
		{"stars too high", &MediaInfo{Stars: intPtr(6)}, nil},
		{"stars negative", &MediaInfo{Stars: intPtr(-1)}, nil},
		{"empty tag", nil, []string{"  "}},
		{"reserved group", nil, []string{"sort:date"}},
		{"glob chars", nil, []string{"bad*tag"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Create(ctx, path, tt.info, tt.tags, "alice")
			var invalid *InvalidInputError
			if !errors.As(err, &invalid) {
				t.Errorf("Expected InvalidInputError, got %v", err)
			}
		})
	}

	// Validation failed before anything was written.
	stats, _ := env.engine.Stats(ctx)
	if stats.TotalFiles != 0 {
		t.Errorf("Expected no files after failed validation, got %d", stats.TotalFiles)
	}
}

func TestUpdateRecordsOnlyChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "upd.jpg", "u")
	entry, err := env.engine.Create(ctx, path, &MediaInfo{Title: strPtr("Original")}, nil, "alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	refID := entry.Reference.ID

	// Same title, new stars: only stars should land in the audit log.
	updated, err := env.engine.Update(ctx, refID, &MediaInfo{
		Title: strPtr("Original"),
		Stars: intPtr(5),
	}, nil, "bob")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Reference.Stars != 5 {
		t.Errorf("Expected stars 5, got %d", updated.Reference.Stars)
	}

	log, _ := env.engine.EditLog(ctx, refID)
	if len(log) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(log))
	}
	last := log[len(log)-1]
	if last.Operation != database.OperationUpdate || last.Editor != "bob" {
		t.Errorf("Unexpected audit entry %+v", last)
	}
	if _, ok := last.Changes.MediaInfo["title"]; ok {
		t.Error("Unchanged title must not appear in the diff")
	}
	if v, ok := last.Changes.MediaInfo["stars"]; !ok || v != float64(5) {
		t.Errorf("Expected stars 5 in diff, got %v", last.Changes.MediaInfo)
	}

	// A no-op update appends nothing.
	if _, err := env.engine.Update(ctx, refID, &MediaInfo{Stars: intPtr(5)}, nil, "bob"); err != nil {
		t.Fatalf("No-op update failed: %v", err)
	}
	log, _ = env.engine.EditLog(ctx, refID)
	if len(log) != 2 {
		t.Errorf("Expected no audit entry for a no-op update, got %d entries", len(log))
	}

	// Both editors are recorded on the reference.
	got, _ := env.engine.Get(ctx, refID)
	if len(got.Reference.Editors) != 2 {
		t.Errorf("Expected 2 editors, got %v", got.Reference.Editors)
	}
}

func TestOwnershipScopedReplace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "owned.jpg", "o")
	entry, err := env.engine.Create(ctx, path, nil, []string{"a"}, "e1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	refID := entry.Reference.ID

	if _, err := env.engine.Update(ctx, refID, nil, &TagInstructions{Add: []string{"b"}}, "e2"); err != nil {
		t.Fatalf("Add by e2 failed: %v", err)
	}

	// e2 replaces with [c], non-overwrite: e1's tag a stays, e2's tag
	// b goes, c arrives.
	updated, err := env.engine.Update(ctx, refID, nil, &TagInstructions{Replace: []string{"c"}}, "e2")
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	got := map[string]bool{}
	for _, tag := range updated.Tags {
		got[tag.Slug()] = true
	}
	if len(got) != 2 || !got["a"] || !got["c"] {
		t.Errorf("Expected tags {a, c}, got %v", got)
	}

	log, _ := env.engine.EditLog(ctx, refID)
	last := log[len(log)-1]
	if len(last.Changes.Tags.Added) != 1 || last.Changes.Tags.Added[0] != "c" {
		t.Errorf("Expected added [c], got %v", last.Changes.Tags.Added)
	}
	if len(last.Changes.Tags.Removed) != 1 || last.Changes.Tags.Removed[0] != "b" {
		t.Errorf("Expected removed [b], got %v", last.Changes.Tags.Removed)
	}
}

func TestOverwriteReplaceClobbersAll(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "clobber.jpg", "c")
	entry, err := env.engine.Create(ctx, path, nil, []string{"a"}, "e1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	refID := entry.Reference.ID
	if _, err := env.engine.Update(ctx, refID, nil, &TagInstructions{Add: []string{"b"}}, "e2"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	updated, err := env.engine.Update(ctx, refID, nil, &TagInstructions{
		Replace:   []string{"c"},
		Overwrite: true,
	}, "e2")
	if err != nil {
		t.Fatalf("Overwrite replace failed: %v", err)
	}
	if len(updated.Tags) != 1 || updated.Tags[0].Slug() != "c" {
		t.Errorf("Expected only tag c, got %+v", updated.Tags)
	}

	// Auto-cleanup removed the now-orphaned tags entirely.
	if _, err := env.db.GetTag(ctx, "a", ""); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected orphaned tag a to be cleaned up, got %v", err)
	}
}

func TestRemoveIgnoresOwnership(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "rm.jpg", "r")
	entry, err := env.engine.Create(ctx, path, nil, []string{"keep", "drop"}, "e1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := env.engine.Update(ctx, entry.Reference.ID, nil,
		&TagInstructions{Remove: []string{"drop"}}, "e2")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(updated.Tags) != 1 || updated.Tags[0].Slug() != "keep" {
		t.Errorf("Expected tag keep only, got %+v", updated.Tags)
	}
}

func TestDirectorySeriesConstruction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	pathC := env.writeMedia(t, "a/b/c.jpg", "content-c")
	pathD := env.writeMedia(t, "a/b/d.jpg", "content-d")

	if _, err := env.engine.Create(ctx, pathC, nil, nil, "alice"); err != nil {
		t.Fatalf("Create c failed: %v", err)
	}
	if _, err := env.engine.Create(ctx, pathD, nil, nil, "alice"); err != nil {
		t.Fatalf("Create d failed: %v", err)
	}

	dirB := filepath.Dir(pathC)
	dirA := filepath.Dir(dirB)

	// Exactly one series per directory; the second create reused them.
	refB, err := env.db.GetReferenceByDirectory(ctx, dirB)
	if err != nil {
		t.Fatalf("Expected series for %s: %v", dirB, err)
	}
	if !refB.IsSeries || !refB.IsDirectorySeries {
		t.Errorf("Expected directory series, got %+v", refB)
	}
	if refB.SeriesLength != 2 {
		t.Errorf("Expected %s to hold 2 members, got %d", dirB, refB.SeriesLength)
	}

	refA, err := env.db.GetReferenceByDirectory(ctx, dirA)
	if err != nil {
		t.Fatalf("Expected series for %s: %v", dirA, err)
	}
	if refA.SeriesLength != 1 {
		t.Errorf("Expected %s to hold 1 member (b), got %d", dirA, refA.SeriesLength)
	}

	series, err := env.engine.GetSeries(ctx, refB.ID)
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if len(series.Members) != 2 {
		t.Errorf("Expected 2 members, got %d", len(series.Members))
	}
}

func TestDeleteRemovesEverythingButAudit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "gone.jpg", "g")
	entry, err := env.engine.Create(ctx, path, nil, []string{"solo"}, "alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	refID := entry.Reference.ID
	thumbDir := entry.File().ThumbnailDirectoryPath
	if _, err := os.Stat(thumbDir); err != nil {
		t.Fatalf("Expected thumbnail directory to exist: %v", err)
	}

	if err := env.engine.Delete(ctx, refID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := env.engine.Get(ctx, refID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected reference gone, got %v", err)
	}
	if _, err := os.Stat(thumbDir); !os.IsNotExist(err) {
		t.Error("Expected thumbnail directory removed")
	}
	// Orphaned tag cleaned up, audit trail intact.
	if _, err := env.db.GetTag(ctx, "solo", ""); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected tag cleanup, got %v", err)
	}
	log, err := env.engine.EditLog(ctx, refID)
	if err != nil {
		t.Fatalf("EditLog failed: %v", err)
	}
	if len(log) != 1 {
		t.Errorf("Expected audit trail to survive, got %d entries", len(log))
	}

	// Re-creating the same content now succeeds.
	if _, err := env.engine.Create(ctx, path, nil, nil, "alice"); err != nil {
		t.Fatalf("Re-create after delete failed: %v", err)
	}
}

func TestUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "up.jpg", "u1")

	entry, created, err := env.engine.Upsert(ctx, path, &MediaInfo{Title: strPtr("v1")}, []string{"x"}, "alice")
	if err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	if !created {
		t.Error("Expected first upsert to create")
	}

	entry2, created, err := env.engine.Upsert(ctx, path, &MediaInfo{Title: strPtr("v2")}, []string{"y"}, "alice")
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if created {
		t.Error("Expected second upsert to update")
	}
	if entry2.Reference.ID != entry.Reference.ID {
		t.Errorf("Expected same reference, got %d and %d", entry.Reference.ID, entry2.Reference.ID)
	}
	if entry2.Reference.Title != "v2" {
		t.Errorf("Expected updated title v2, got %s", entry2.Reference.Title)
	}
	if len(entry2.Tags) != 2 {
		t.Errorf("Expected tags merged to {x, y}, got %+v", entry2.Tags)
	}

	// Duplicate content at a different path still fails through
	// upsert.
	other := env.writeMedia(t, "other.jpg", "u1")
	_, _, err = env.engine.Upsert(ctx, other, nil, nil, "alice")
	var dup *DuplicateContentError
	if !errors.As(err, &dup) {
		t.Errorf("Expected DuplicateContentError, got %v", err)
	}
}

func TestViewsValidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	// A still image: no duration, not animated.
	still := env.writeMedia(t, "still.jpg", "still")
	stillEntry, err := env.engine.Create(ctx, still, nil, nil, "alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = env.engine.StartView(ctx, stillEntry.Reference.ID, ViewSession{NumLoops: 2})
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidInputError for loops on still image, got %v", err)
	}
	_, err = env.engine.StartView(ctx, stillEntry.Reference.ID, ViewSession{Duration: 3})
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidInputError for duration on still image, got %v", err)
	}

	// Plain view still works and flips unread.
	if _, err := env.engine.StartView(ctx, stillEntry.Reference.ID, ViewSession{}); err != nil {
		t.Fatalf("StartView failed: %v", err)
	}
	got, _ := env.engine.Get(ctx, stillEntry.Reference.ID)
	if got.Reference.ViewCount != 1 {
		t.Errorf("Expected view_count 1, got %d", got.Reference.ViewCount)
	}
	if got.Reference.LastViewedAt == nil {
		t.Error("Expected last_viewed_at set")
	}

	// Animated media accepts loops and duration.
	env.probe.animated = true
	env.probe.duration = 10
	anim := env.writeMedia(t, "anim.gif", "anim")
	animEntry, err := env.engine.Create(ctx, anim, nil, nil, "alice")
	if err != nil {
		t.Fatalf("Create animated failed: %v", err)
	}
	view, err := env.engine.StartView(ctx, animEntry.Reference.ID, ViewSession{Duration: 5, NumLoops: 2})
	if err != nil {
		t.Fatalf("StartView on animated failed: %v", err)
	}

	// Updating the session extends it.
	end := view.StartTimestamp.Add(30 * time.Second)
	updated, err := env.engine.UpdateView(ctx, view.ID, &end, ViewSession{Duration: 8, NumLoops: 3})
	if err != nil {
		t.Fatalf("UpdateView failed: %v", err)
	}
	if updated.NumLoops != 3 || updated.Duration != 8 {
		t.Errorf("Expected updated session 8s/3 loops, got %+v", updated)
	}
}

func TestCreateSeriesAndAdd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)
	ctx := context.Background()

	path := env.writeMedia(t, "member.jpg", "m")
	member, err := env.engine.Create(ctx, path, nil, nil, "alice")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	series, err := env.engine.CreateSeries(ctx, &MediaInfo{Title: strPtr("Favorites")}, []string{"curated"}, "alice")
	if err != nil {
		t.Fatalf("CreateSeries failed: %v", err)
	}
	sc, ok := series.Content.(database.SeriesContent)
	if !ok {
		t.Fatalf("Expected series content, got %T", series.Content)
	}
	if sc.IsDirectory {
		t.Error("Manual series must not be a directory series")
	}

	if err := env.engine.AddToSeries(ctx, series.Reference.ID, member.Reference.ID, -1); err != nil {
		t.Fatalf("AddToSeries failed: %v", err)
	}
	// Adding again is a no-op.
	if err := env.engine.AddToSeries(ctx, series.Reference.ID, member.Reference.ID, -1); err != nil {
		t.Fatalf("Repeat AddToSeries failed: %v", err)
	}

	got, err := env.engine.GetSeries(ctx, series.Reference.ID)
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if len(got.Members) != 1 {
		t.Errorf("Expected 1 member, got %d", len(got.Members))
	}

	// Adding to a non-series fails.
	err = env.engine.AddToSeries(ctx, member.Reference.ID, series.Reference.ID, -1)
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Errorf("Expected InvalidInputError, got %v", err)
	}
}

// ghostProbe checksums without touching the disk, standing in for a
// file that disappears right after its content was hashed.
type ghostProbe struct {
	fakeProbe
}

func (p *ghostProbe) Checksum(string) (string, error) {
	return "ghost-sum", nil
}

func TestCreateVanishedFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	env := setupEngine(t)

	engine := New(env.db, &ghostProbe{}, Config{
		ThumbnailDir: filepath.Join(env.root, "thumbs"),
	})
	_, err := engine.Create(context.Background(), filepath.Join(env.root, "gone", "clip.mp4"), nil, nil, "alice")

	// A vanished file is a per-file probe failure, so ingestion counts
	// it and continues instead of aborting the run.
	var probeErr *probe.Error
	if !errors.As(err, &probeErr) {
		t.Fatalf("Expected a probe error for a vanished file, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected the not-exist cause to survive wrapping, got %v", err)
	}
}
