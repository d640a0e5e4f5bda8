package database

import "time"

// MediaType classifies the content of a media file.
type MediaType string

const (
	// MediaTypeImage is a still or animated image.
	MediaTypeImage MediaType = "IMAGE"
	// MediaTypeVideo is a video file.
	MediaTypeVideo MediaType = "VIDEO"
	// MediaTypeAudio is an audio-only file.
	MediaTypeAudio MediaType = "AUDIO"
)

// ThumbnailKind distinguishes evenly spaced preview thumbnails from
// thumbnails generated at keypoint timestamps.
type ThumbnailKind string

const (
	ThumbnailStandard ThumbnailKind = "standard"
	ThumbnailKeypoint ThumbnailKind = "keypoint"
)

// OperationType is the kind of mutation recorded in the edit log.
type OperationType string

const (
	OperationCreate OperationType = "CREATE"
	OperationUpdate OperationType = "UPDATE"
)

// MediaReference is one catalog entry: either a leaf media item backed
// by a MediaFile, or a series/collection (including directory-derived
// virtual series).
type MediaReference struct {
	ID                int64                  `json:"id"`
	Title             string                 `json:"title,omitempty"`
	Description       string                 `json:"description,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	SourceURL         string                 `json:"sourceUrl,omitempty"`
	SourceCreatedAt   *time.Time             `json:"sourceCreatedAt,omitempty"`
	Stars             int                    `json:"stars"`
	ViewCount         int                    `json:"viewCount"`
	LastViewedAt      *time.Time             `json:"lastViewedAt,omitempty"`
	IsSeries          bool                   `json:"isSeries"`
	IsDirectorySeries bool                   `json:"isDirectorySeries"`
	DirectoryPath     string                 `json:"directoryPath,omitempty"`
	IsDirectoryRoot   bool                   `json:"isDirectoryRoot"`
	TagCount          int                    `json:"tagCount"`
	SeriesLength      int                    `json:"seriesLength"`
	Editors           []string               `json:"editors,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// MediaFile holds the technical metadata of the file backing a
// non-series MediaReference. The checksum uniquely identifies file
// content catalog-wide and is the basis for deduplication.
type MediaFile struct {
	ID                     int64     `json:"id"`
	MediaReferenceID       int64     `json:"mediaReferenceId"`
	Filepath               string    `json:"filepath"`
	Filename               string    `json:"filename"`
	ThumbnailDirectoryPath string    `json:"thumbnailDirectoryPath,omitempty"`
	FileSizeBytes          int64     `json:"fileSizeBytes"`
	Checksum               string    `json:"checksum"`
	MediaType              MediaType `json:"mediaType"`
	Codec                  string    `json:"codec,omitempty"`
	ContentType            string    `json:"contentType,omitempty"`
	Width                  int       `json:"width,omitempty"`
	Height                 int       `json:"height,omitempty"`
	Animated               bool      `json:"animated"`
	HasAudio               bool      `json:"hasAudio"`
	Duration               float64   `json:"duration"`
	Framerate              float64   `json:"framerate"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// Tag belongs to exactly one tag group; the empty-string group is the
// default. Name is stored normalized (lower case, spaces as
// underscores). The denormalized counts are maintained by database
// triggers.
type Tag struct {
	ID                        int64                  `json:"id"`
	Name                      string                 `json:"name"`
	Group                     string                 `json:"group,omitempty"`
	AliasTagID                *int64                 `json:"aliasTagId,omitempty"`
	Description               string                 `json:"description,omitempty"`
	Metadata                  map[string]interface{} `json:"metadata,omitempty"`
	MediaReferenceCount       int                    `json:"mediaReferenceCount"`
	UnreadMediaReferenceCount int                    `json:"unreadMediaReferenceCount"`
	CreatedAt                 time.Time              `json:"createdAt"`
}

// Slug returns the canonical "group:name" form of a tag, or just the
// name when the tag is in the default group.
func (t Tag) Slug() string {
	if t.Group == "" {
		return t.Name
	}
	return t.Group + ":" + t.Name
}

// AttachedTag is a tag together with the editor that attached it to a
// particular media reference. Editor attribution drives
// ownership-scoped tag replacement.
type AttachedTag struct {
	Tag
	AttachedBy string `json:"attachedBy,omitempty"`
}

// SeriesItem is the ordered membership of one reference inside a
// series reference.
type SeriesItem struct {
	ID                int64 `json:"id"`
	SeriesReferenceID int64 `json:"seriesReferenceId"`
	MediaReferenceID  int64 `json:"mediaReferenceId"`
	SeriesIndex       int   `json:"seriesIndex"`
}

// Thumbnail is a generated preview image at a media timestamp.
type Thumbnail struct {
	ID               int64         `json:"id"`
	MediaFileID      int64         `json:"mediaFileId,omitempty"`
	MediaReferenceID int64         `json:"mediaReferenceId"`
	Kind             ThumbnailKind `json:"kind"`
	MediaTimestamp   float64       `json:"mediaTimestamp"`
	Index            int           `json:"index"`
	FilePath         string        `json:"filePath"`
}

// Keypoint is a tag-labelled time range within animated media.
type Keypoint struct {
	ID               int64   `json:"id"`
	MediaReferenceID int64   `json:"mediaReferenceId"`
	TagID            int64   `json:"tagId"`
	MediaTimestamp   float64 `json:"mediaTimestamp"`
	Duration         float64 `json:"duration"`
}

// View is one playback session. Inserting a view increments the
// reference's view count (via trigger), which drives unread status.
type View struct {
	ID               int64      `json:"id"`
	MediaReferenceID int64      `json:"mediaReferenceId"`
	StartTimestamp   time.Time  `json:"startTimestamp"`
	EndTimestamp     *time.Time `json:"endTimestamp,omitempty"`
	Duration         float64    `json:"duration"`
	NumLoops         int        `json:"numLoops"`
}

// TagDiff is the set of tag slugs added to and removed from a
// reference by one mutation.
type TagDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// ChangeSet is the diff document stored in an edit log entry.
type ChangeSet struct {
	MediaInfo map[string]interface{} `json:"media_info,omitempty"`
	Tags      TagDiff                `json:"tags"`
}

// EditLogEntry is one append-only audit record.
type EditLogEntry struct {
	ID               int64         `json:"id"`
	MediaReferenceID int64         `json:"mediaReferenceId"`
	Editor           string        `json:"editor,omitempty"`
	Operation        OperationType `json:"operation"`
	Changes          ChangeSet     `json:"changes"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// FilesystemPath is one discovered filesystem entry awaiting (or
// having completed) ingestion. Larger priority values are ingested
// sooner; a NULL priority sorts after all explicit priorities.
type FilesystemPath struct {
	ID              int64      `json:"id"`
	Filepath        string     `json:"filepath"`
	IsDirectory     bool       `json:"isDirectory"`
	Checksum        string     `json:"checksum,omitempty"`
	IngestPriority  *int64     `json:"ingestPriority,omitempty"`
	IngestRetriever string     `json:"ingestRetriever,omitempty"`
	Ingested        bool       `json:"ingested"`
	IngestedAt      *time.Time `json:"ingestedAt,omitempty"`
	LastIngestID    int64      `json:"lastIngestId"`
}

// Content is the sum type behind a catalog entry: a reference is
// either a file-backed leaf or a series.
type Content interface {
	isContent()
}

// FileContent is the file side of the Content sum type.
type FileContent struct {
	File MediaFile `json:"file"`
}

func (FileContent) isContent() {}

// SeriesContent is the series side of the Content sum type.
type SeriesContent struct {
	Length        int    `json:"length"`
	IsDirectory   bool   `json:"isDirectory"`
	DirectoryPath string `json:"directoryPath,omitempty"`
	IsRoot        bool   `json:"isRoot"`
}

func (SeriesContent) isContent() {}

// CatalogEntry is the fully hydrated view of a media reference
// returned to callers: the reference row, its file or series content,
// attached tags, and any requested thumbnails. Entries are
// independent copies with no back-reference to store internals.
type CatalogEntry struct {
	Reference  MediaReference `json:"reference"`
	Content    Content        `json:"content"`
	Tags       []AttachedTag  `json:"tags,omitempty"`
	Thumbnails []Thumbnail    `json:"thumbnails,omitempty"`
}

// File returns the entry's media file, or nil for series entries.
func (e *CatalogEntry) File() *MediaFile {
	if fc, ok := e.Content.(FileContent); ok {
		f := fc.File
		return &f
	}
	return nil
}

// CatalogStats summarizes the catalog for status reporting.
type CatalogStats struct {
	TotalReferences int `json:"totalReferences"`
	TotalFiles      int `json:"totalFiles"`
	TotalSeries     int `json:"totalSeries"`
	TotalTags       int `json:"totalTags"`
	TotalUnread     int `json:"totalUnread"`
	QueuedPaths     int `json:"queuedPaths"`
}
