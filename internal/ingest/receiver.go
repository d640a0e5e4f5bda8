package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"media-catalog/internal/catalog"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/probe"
)

// Receiver handles queue entries it matches. Receivers are consulted in
// registration order; an entry whose stored retriever name resolves to
// a registered receiver always goes to that one.
type Receiver interface {
	Name() string
	Matches(fp *database.FilesystemPath) bool
	Handle(rctx *Context) error
}

// Cataloger is the slice of the catalog engine ingestion needs.
type Cataloger interface {
	Upsert(ctx context.Context, path string, info *catalog.MediaInfo, tags []string, editor string) (*database.CatalogEntry, bool, error)
}

// Context is what a receiver gets for one queue entry: the entry
// itself, the run's stats so far, any run-wide default metadata, and
// the Add callback into the catalog.
type Context struct {
	ctx         context.Context
	cat         Cataloger
	editor      string
	Entry       *database.FilesystemPath
	Stats       *Stats
	DefaultInfo *catalog.MediaInfo
	DefaultTags []string

	ingested bool
	fatal    error
}

// Context returns the run's cancellation context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Add catalogs one file, merging the run's default metadata and tags.
// Per-file failures (probe errors, duplicates, invalid input) are
// classified, counted, and swallowed so the receiver can continue;
// anything else is fatal to the run and returned.
func (c *Context) Add(path string, info *catalog.MediaInfo, tags []string) error {
	merged := mergeInfo(c.DefaultInfo, info)
	allTags := append(append([]string(nil), c.DefaultTags...), tags...)

	_, created, err := c.cat.Upsert(c.ctx, path, merged, allTags, c.editor)
	if err == nil {
		if created {
			c.Stats.Created++
		} else if merged != nil || len(allTags) > 0 {
			c.Stats.Updated++
		} else {
			c.Stats.Existing++
		}
		c.ingested = true
		return nil
	}

	var dup *catalog.DuplicateContentError
	if errors.As(err, &dup) {
		logging.Debug("Skipping duplicate content %s (already at %s)", path, dup.ExistingFilepath)
		c.Stats.Duplicate++
		return nil
	}

	var exists *catalog.AlreadyExistsError
	var invalid *catalog.InvalidInputError
	var probeErr *probe.Error
	switch {
	case errors.As(err, &exists):
		c.Stats.Existing++
		return nil
	case errors.As(err, &invalid), errors.As(err, &probeErr):
		logging.Warn("Failed to ingest %s: %v", path, err)
		c.Stats.Errored++
		return nil
	}

	// Database or consistency errors abort the whole run.
	c.fatal = err
	return err
}

// mergeInfo overlays entry-specific info on top of the run defaults;
// either side may be nil.
func mergeInfo(base, over *catalog.MediaInfo) *catalog.MediaInfo {
	if base == nil {
		return over
	}
	if over == nil {
		merged := *base
		return &merged
	}
	merged := *base
	if over.Title != nil {
		merged.Title = over.Title
	}
	if over.Description != nil {
		merged.Description = over.Description
	}
	if over.Metadata != nil {
		merged.Metadata = over.Metadata
	}
	if over.SourceURL != nil {
		merged.SourceURL = over.SourceURL
	}
	if over.SourceCreatedAt != nil {
		merged.SourceCreatedAt = over.SourceCreatedAt
	}
	if over.Stars != nil {
		merged.Stars = over.Stars
	}
	return &merged
}

// defaultReceiver catalogs any file with a known media extension. It
// terminates every receiver chain.
type defaultReceiver struct{}

func (defaultReceiver) Name() string { return "default" }

func (defaultReceiver) Matches(fp *database.FilesystemPath) bool {
	_, ok := probe.TypeForPath(fp.Filepath)
	return ok
}

func (defaultReceiver) Handle(rctx *Context) error {
	return rctx.Add(rctx.Entry.Filepath, nil, nil)
}

// RuleReceiver is a declaratively configured receiver: an optional root
// prefix, extension list, and path pattern select its entries, and its
// tags and info are applied to everything it catalogs.
type RuleReceiver struct {
	ReceiverName string
	Root         string
	Extensions   []string
	Pattern      *regexp.Regexp
	Tags         []string
	Info         *catalog.MediaInfo
}

func (r *RuleReceiver) Name() string { return r.ReceiverName }

func (r *RuleReceiver) Matches(fp *database.FilesystemPath) bool {
	if r.Root != "" && !strings.HasPrefix(fp.Filepath, r.Root) {
		return false
	}
	if len(r.Extensions) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fp.Filepath)), ".")
		found := false
		for _, e := range r.Extensions {
			if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.Pattern != nil && !r.Pattern.MatchString(fp.Filepath) {
		return false
	}
	return true
}

func (r *RuleReceiver) Handle(rctx *Context) error {
	return rctx.Add(rctx.Entry.Filepath, r.Info, r.Tags)
}
