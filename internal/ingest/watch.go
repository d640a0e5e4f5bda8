package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/probe"
)

// Watcher feeds filesystem events into the ingest queue. Created or
// modified media files are enqueued with no explicit priority; new
// directories are added to the watch set so nested drops are seen.
type Watcher struct {
	db      *database.Database
	sum     Checksummer
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher over the given root directories. Watch
// registrations cover the roots and their existing subdirectories.
func NewWatcher(db *database.Database, sum Checksummer, roots []string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{db: db, sum: sum, watcher: watcher}
	for _, root := range roots {
		if err := w.watchTree(root); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return w, nil
}

// watchTree registers a directory and all its subdirectories.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, de os.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Error accessing %s during watch setup: %v", path, err)
			return nil
		}
		if !de.IsDir() {
			return nil
		}
		if strings.HasPrefix(de.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Run consumes events until the context is cancelled. It blocks, so
// callers run it in a goroutine.
func (w *Watcher) Run(ctx context.Context) {
	logging.Info("Filesystem watch started")
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Filesystem watch error: %v", err)
		case <-ctx.Done():
			logging.Info("Filesystem watch stopped")
			return
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.watchTree(event.Name); err != nil {
				logging.Warn("Failed to watch new directory %s: %v", event.Name, err)
			}
			if _, err := w.db.EnqueuePath(ctx, &database.FilesystemPath{
				Filepath:    event.Name,
				IsDirectory: true,
			}); err != nil {
				logging.Error("Failed to enqueue directory %s: %v", event.Name, err)
			}
		}
		return
	}

	if _, ok := probe.TypeForPath(event.Name); !ok {
		return
	}

	sum, err := w.sum.Checksum(event.Name)
	if err != nil {
		logging.Warn("Failed to checksum %s: %v", event.Name, err)
		return
	}

	created, err := w.db.EnqueuePath(ctx, &database.FilesystemPath{
		Filepath: event.Name,
		Checksum: sum,
	})
	if err != nil {
		logging.Error("Failed to enqueue %s: %v", event.Name, err)
		return
	}
	if created {
		metrics.DiscoveryFilesQueued.Inc()
		logging.Debug("Watch queued %s", event.Name)
	}
}
