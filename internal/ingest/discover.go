package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"media-catalog/internal/database"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/probe"
	"media-catalog/internal/workers"
)

// Priority is the queue placement instruction for discovered files.
type Priority string

const (
	// PriorityFirst places new entries above every queued priority.
	PriorityFirst Priority = "first"
	// PriorityLast places new entries below every queued priority.
	PriorityLast Priority = "last"
	// PriorityNone queues entries with no explicit priority; they sort
	// after all prioritized entries in insertion order.
	PriorityNone Priority = "none"
)

// GlobPrefix splits a path-or-glob into its static directory prefix
// and the remaining glob pattern. A path without glob metacharacters
// returns itself with an empty pattern.
func GlobPrefix(pattern string) (dir, glob string) {
	segments := strings.Split(pattern, string(filepath.Separator))
	for i, seg := range segments {
		if strings.ContainsAny(seg, "*?[") {
			dir = strings.Join(segments[:i], string(filepath.Separator))
			if dir == "" {
				dir = string(filepath.Separator)
			}
			return dir, strings.Join(segments[i:], string(filepath.Separator))
		}
	}
	return pattern, ""
}

// DiscoverStats counts what one discovery pass queued.
type DiscoverStats struct {
	Files       int `json:"files"`
	Directories int `json:"directories"`
	Skipped     int `json:"skipped"`
}

// collector guards run stats shared between walk callbacks and
// checksum workers.
type collector struct {
	mu    sync.Mutex
	stats DiscoverStats
	fatal error
}

func (c *collector) add(f func(*DiscoverStats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}

func (c *collector) fail(err error) {
	c.mu.Lock()
	if c.fatal == nil {
		c.fatal = err
	}
	c.mu.Unlock()
}

func (c *collector) failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal != nil
}

// Checksummer computes a content checksum for a file on disk.
type Checksummer interface {
	Checksum(path string) (string, error)
}

// Discovery walks a directory tree (or a glob's static prefix,
// filtered by the glob) and queues matching files for ingestion.
// Checksums are computed during discovery so the queue row carries
// them before any run starts.
type Discovery struct {
	db  *database.Database
	sum Checksummer
}

// NewDiscovery creates a discovery pass bound to the store and a
// checksummer (normally the media probe).
func NewDiscovery(db *database.Database, sum Checksummer) *Discovery {
	return &Discovery{db: db, sum: sum}
}

// discovered is one walk hit handed to the checksum workers.
type discovered struct {
	path  string
	isDir bool
}

// Discover walks pathOrGlob and enqueues every not-yet-known matching
// file. A nil extensions list means all known media extensions. The
// priority instruction decides where new entries land relative to the
// queue's existing priorities.
func (d *Discovery) Discover(ctx context.Context, pathOrGlob string, extensions []string, prio Priority) (*DiscoverStats, error) {
	root, pattern := GlobPrefix(pathOrGlob)

	info, err := filesystem.StatWithRetry(root, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}

	if extensions == nil {
		extensions = probe.KnownExtensions()
	}
	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}

	priority, err := d.resolvePriority(ctx, prio)
	if err != nil {
		return nil, err
	}

	col := &collector{}
	if !info.IsDir() {
		// A plain file path: queue it directly.
		if err := d.enqueue(ctx, discovered{path: root}, extSet, priority, col); err != nil {
			return nil, err
		}
		return &col.stats, nil
	}

	found := make(chan discovered, 256)
	var wg sync.WaitGroup
	for i := 0; i < workers.ForIO(8); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range found {
				if col.failed() {
					continue
				}
				if err := d.enqueue(ctx, item, extSet, priority, col); err != nil {
					col.fail(err)
				}
			}
		}()
	}

	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Error accessing %s: %v", path, err)
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(de.Name(), ".") {
			if de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if pattern != "" {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			if !matchGlob(pattern, rel, de.IsDir()) {
				if de.IsDir() {
					return filepath.SkipDir
				}
				col.add(func(s *DiscoverStats) { s.Skipped++ })
				return nil
			}
		}
		found <- discovered{path: path, isDir: de.IsDir()}
		return nil
	})
	close(found)
	wg.Wait()

	if walkErr != nil {
		return nil, walkErr
	}
	if col.fatal != nil {
		return nil, col.fatal
	}

	logging.Info("Discovery of %s queued %d files, %d directories (%d skipped)",
		pathOrGlob, col.stats.Files, col.stats.Directories, col.stats.Skipped)
	return &col.stats, nil
}

// enqueue checksums and queues a single walk hit.
func (d *Discovery) enqueue(ctx context.Context, item discovered, extSet map[string]bool, priority *int64, col *collector) error {
	fp := &database.FilesystemPath{
		Filepath:       item.path,
		IsDirectory:    item.isDir,
		IngestPriority: priority,
	}

	if !item.isDir {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(item.path)), ".")
		if !extSet[ext] {
			col.add(func(s *DiscoverStats) { s.Skipped++ })
			return nil
		}
		sum, err := d.sum.Checksum(item.path)
		if err != nil {
			logging.Warn("Failed to checksum %s: %v", item.path, err)
			col.add(func(s *DiscoverStats) { s.Skipped++ })
			return nil
		}
		fp.Checksum = sum
	}

	created, err := d.db.EnqueuePath(ctx, fp)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	if item.isDir {
		col.add(func(s *DiscoverStats) { s.Directories++ })
	} else {
		col.add(func(s *DiscoverStats) { s.Files++ })
		metrics.DiscoveryFilesQueued.Inc()
	}
	return nil
}

// resolvePriority turns the instruction into a concrete queue value:
// first is above the current max, last below the current min, none is
// NULL.
func (d *Discovery) resolvePriority(ctx context.Context, prio Priority) (*int64, error) {
	switch prio {
	case PriorityFirst:
		maxP, _, err := d.db.PriorityBounds(ctx)
		if err != nil {
			return nil, err
		}
		p := maxP + 1
		return &p, nil
	case PriorityLast:
		_, minP, err := d.db.PriorityBounds(ctx)
		if err != nil {
			return nil, err
		}
		p := minP - 1
		return &p, nil
	default:
		return nil, nil
	}
}

// matchGlob matches a walk-relative path against the glob remainder.
// A "**" segment matches any number of directories; other segments use
// filepath.Match semantics per segment. Directories match when they
// could still lead to a match, so the walk descends into them.
func matchGlob(pattern, rel string, isDir bool) bool {
	pat := strings.Split(pattern, string(filepath.Separator))
	parts := strings.Split(rel, string(filepath.Separator))
	if isDir {
		return dirCouldMatch(pat, parts)
	}
	return segmentsMatch(pat, parts)
}

func segmentsMatch(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if segmentsMatch(pat[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, err := filepath.Match(pat[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return segmentsMatch(pat[1:], parts[1:])
}

// dirCouldMatch reports whether some descendant of this directory
// could still match the pattern.
func dirCouldMatch(pat, parts []string) bool {
	if len(pat) == 0 {
		return false
	}
	if pat[0] == "**" {
		return true
	}
	if len(parts) == 0 {
		return true
	}
	ok, err := filepath.Match(pat[0], parts[0])
	if err != nil || !ok {
		return false
	}
	return dirCouldMatch(pat[1:], parts[1:])
}
