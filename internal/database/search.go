package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-catalog/internal/metrics"
)

// SortField selects the column a search is ordered by. Ties always
// break by reference id so cursor pagination never skips or repeats a
// row.
type SortField string

const (
	SortCreatedAt       SortField = "created_at"
	SortUpdatedAt       SortField = "updated_at"
	SortSourceCreatedAt SortField = "source_created_at"
	SortViewCount       SortField = "view_count"
	SortLastViewedAt    SortField = "last_viewed_at"
	SortStars           SortField = "stars"
	SortTitle           SortField = "title"
)

// SortOrder is the direction of a search ordering.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// sortExprs maps each sort field to the SQL expression it orders by.
// Nullable columns are coalesced so every row has a comparable key.
var sortExprs = map[SortField]string{
	SortCreatedAt:       "r.created_at",
	SortUpdatedAt:       "r.updated_at",
	SortSourceCreatedAt: "COALESCE(r.source_created_at, 0)",
	SortViewCount:       "r.view_count",
	SortLastViewedAt:    "COALESCE(r.last_viewed_at, 0)",
	SortStars:           "r.stars",
	SortTitle:           "COALESCE(r.title, '')",
}

// ThumbnailOptions controls how many thumbnails are attached to each
// search result. Limit -1 attaches all, 0 none. When exactly one
// thumbnail is requested for animated media, the preview frame is the
// one nearest PreviewPercent of the duration, or nearest the keypoint
// labelled KeypointTag when that resolves.
type ThumbnailOptions struct {
	Limit          int
	PreviewPercent float64
	KeypointTag    string
}

// SearchQuery is the filter set of one catalog search. All filters
// compose with AND; tag filters intersect (a result carries every
// listed tag). Zero values mean "no constraint".
type SearchQuery struct {
	Tags          []string // tag slugs, "group:name" or bare name
	SeriesID      int64    // restrict to members of this series
	IncludeSeries bool     // include series references themselves
	Stars         *int
	StarsExact    bool // match stars exactly instead of at-least
	Animated      *bool
	Unread        *bool
	FilepathGlob  string
	Directory     string // restrict to content under this directory

	SortBy SortField
	Order  SortOrder
	Limit  int
	Cursor string

	Thumbnails ThumbnailOptions
}

const (
	defaultSearchLimit = 100
	maxSearchLimit     = 500

	defaultPreviewPercent = 0.25
)

func (q *SearchQuery) normalize() error {
	if q.SortBy == "" {
		q.SortBy = SortCreatedAt
	}
	if _, ok := sortExprs[q.SortBy]; !ok {
		return fmt.Errorf("unknown sort field %q", q.SortBy)
	}
	switch q.Order {
	case "":
		q.Order = OrderDesc
	case OrderAsc, OrderDesc:
	default:
		return fmt.Errorf("unknown sort order %q", q.Order)
	}
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	if q.Limit > maxSearchLimit {
		q.Limit = maxSearchLimit
	}
	if q.Thumbnails.PreviewPercent <= 0 || q.Thumbnails.PreviewPercent >= 1 {
		q.Thumbnails.PreviewPercent = defaultPreviewPercent
	}
	return nil
}

// SearchPage is one page of search results plus the cursor that
// resumes after it. An empty NextCursor means the scan is exhausted.
// TotalItems counts every match, not just this page.
type SearchPage struct {
	Items      []CatalogEntry `json:"items"`
	TotalItems int            `json:"totalItems"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// GroupBucket is one aggregation bucket: a tag value within the
// grouped tag group and how many matching references carry it.
type GroupBucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// GroupPage is one page of aggregation buckets.
type GroupPage struct {
	Buckets    []GroupBucket `json:"buckets"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// splitSlug splits a "group:name" tag slug; a bare name belongs to the
// default group.
func splitSlug(slug string) (group, name string) {
	if i := strings.IndexByte(slug, ':'); i >= 0 {
		return slug[:i], slug[i+1:]
	}
	return "", slug
}

// buildFilters translates the query into SQL conditions over the
// aliases r (media_references) and f (media_files). The second return
// is true when a filter can never match, e.g. an unknown tag.
func (d *Database) buildFilters(q *SearchQuery) (conds []string, args []interface{}, empty bool, err error) {
	if q.SeriesID != 0 {
		conds = append(conds,
			`EXISTS (SELECT 1 FROM media_series_items si
			         WHERE si.series_reference_id = ? AND si.media_reference_id = r.id)`)
		args = append(args, q.SeriesID)
	} else if !q.IncludeSeries {
		conds = append(conds, "r.is_series = 0")
	}

	for _, slug := range q.Tags {
		group, name := splitSlug(slug)
		tag, tagErr := scanTag(d.db.QueryRow(tagSelect+`WHERE t.name = ? AND g.name = ?`, name, group))
		if errors.Is(tagErr, ErrNotFound) {
			return nil, nil, true, nil
		}
		if tagErr != nil {
			return nil, nil, false, tagErr
		}
		conds = append(conds,
			`EXISTS (SELECT 1 FROM media_reference_tags mt
			         WHERE mt.media_reference_id = r.id AND mt.tag_id = ?)`)
		args = append(args, tag.ID)
	}

	if q.Stars != nil {
		if q.StarsExact {
			conds = append(conds, "r.stars = ?")
		} else {
			conds = append(conds, "r.stars >= ?")
		}
		args = append(args, *q.Stars)
	}
	if q.Animated != nil {
		conds = append(conds, "f.animated = ?")
		args = append(args, *q.Animated)
	}
	if q.Unread != nil {
		if *q.Unread {
			conds = append(conds, "r.view_count = 0")
		} else {
			conds = append(conds, "r.view_count > 0")
		}
	}
	if q.FilepathGlob != "" {
		conds = append(conds, "f.filepath GLOB ?")
		args = append(args, q.FilepathGlob)
	}
	if q.Directory != "" {
		dir := strings.TrimRight(q.Directory, "/")
		prefix := globEscape(dir) + "/*"
		conds = append(conds, "(f.filepath GLOB ? OR r.directory_path = ? OR r.directory_path GLOB ?)")
		args = append(args, prefix, dir, prefix)
	}
	return conds, args, false, nil
}

// globEscape neutralizes GLOB metacharacters in a literal path, so a
// directory named "season [1]" scopes to itself instead of becoming a
// character class.
func globEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			b.WriteRune('[')
			b.WriteRune(r)
			b.WriteRune(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

const searchBase = `
	FROM media_references r
	LEFT JOIN media_files f ON f.media_reference_id = r.id
`

// searchColumns is referenceColumns qualified for the search join.
const searchColumns = `
	r.id, r.title, r.description, r.metadata, r.source_url, r.source_created_at,
	r.stars, r.view_count, r.last_viewed_at, r.is_series, r.is_directory_series,
	r.directory_path, r.is_directory_root, r.tag_count, r.series_length,
	r.created_at, r.updated_at
`

// Search runs one cursor-paginated catalog search and hydrates each
// matching reference into a full entry.
func (d *Database) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	start := time.Now()
	var err error
	defer func() {
		recordQuery("search", start, err)
		recordSearch("search", start, err)
	}()

	if err = q.normalize(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	conds, args, empty, fErr := d.buildFilters(&q)
	if fErr != nil {
		err = fErr
		return nil, err
	}
	if empty {
		return &SearchPage{Items: []CatalogEntry{}}, nil
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err = d.db.QueryRowContext(ctx,
		"SELECT COUNT(*)"+searchBase+where, args...,
	).Scan(&total); err != nil {
		return nil, err
	}

	keyExpr := sortExprs[q.SortBy]
	cmp, dir := ">", "ASC"
	if q.Order == OrderDesc {
		cmp, dir = "<", "DESC"
	}

	pageArgs := append([]interface{}(nil), args...)
	pageWhere := where
	if q.Cursor != "" {
		c, cErr := decodeSearchCursor(q.Cursor, q.SortBy, q.Order)
		if cErr != nil {
			err = cErr
			return nil, err
		}
		cursorCond := fmt.Sprintf("(%s %s ? OR (%s = ? AND r.id %s ?))", keyExpr, cmp, keyExpr, cmp)
		if pageWhere == "" {
			pageWhere = " WHERE " + cursorCond
		} else {
			pageWhere += " AND " + cursorCond
		}
		pageArgs = append(pageArgs, c.Key, c.Key, c.ID)
	}

	// One extra row decides whether a next page exists.
	query := "SELECT" + searchColumns + ", " + keyExpr + " AS sort_key" + searchBase + pageWhere +
		fmt.Sprintf(" ORDER BY sort_key %s, r.id %s LIMIT ?", dir, dir)
	pageArgs = append(pageArgs, q.Limit+1)

	rows, qErr := d.db.QueryContext(ctx, query, pageArgs...)
	if qErr != nil {
		err = qErr
		return nil, err
	}
	defer rows.Close()

	type keyedRef struct {
		ref *MediaReference
		key interface{}
	}
	var matched []keyedRef
	for rows.Next() {
		ref, key, scanErr := scanSearchRow(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		matched = append(matched, keyedRef{ref, key})
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	page := &SearchPage{Items: []CatalogEntry{}, TotalItems: total}
	more := len(matched) > q.Limit
	if more {
		matched = matched[:q.Limit]
	}

	for _, m := range matched {
		entry, hErr := d.buildEntry(m.ref, q.Thumbnails)
		if hErr != nil {
			err = hErr
			return nil, err
		}
		page.Items = append(page.Items, *entry)
	}

	if more && len(matched) > 0 {
		last := matched[len(matched)-1]
		page.NextCursor = encodeCursor(searchCursor{
			SortBy: q.SortBy,
			Order:  q.Order,
			Key:    last.key,
			ID:     last.ref.ID,
		})
	}

	metrics.SearchResultsReturned.WithLabelValues("search").Observe(float64(len(page.Items)))
	return page, nil
}

func recordSearch(kind string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.SearchQueriesTotal.WithLabelValues(kind, status).Inc()
	metrics.SearchQueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// scanSearchRow scans one reference row plus its trailing sort key.
func scanSearchRow(row rowScanner) (*MediaReference, interface{}, error) {
	var ref MediaReference
	var title, description, metadata, sourceURL, directoryPath sql.NullString
	var sourceCreatedAt, lastViewedAt sql.NullInt64
	var createdAt, updatedAt int64
	var key interface{}

	err := row.Scan(&ref.ID, &title, &description, &metadata, &sourceURL, &sourceCreatedAt,
		&ref.Stars, &ref.ViewCount, &lastViewedAt, &ref.IsSeries, &ref.IsDirectorySeries,
		&directoryPath, &ref.IsDirectoryRoot, &ref.TagCount, &ref.SeriesLength,
		&createdAt, &updatedAt, &key)
	if err != nil {
		return nil, nil, err
	}

	ref.Title = strOf(title)
	ref.Description = strOf(description)
	ref.Metadata = unmarshalMeta(metadata)
	ref.SourceURL = strOf(sourceURL)
	ref.SourceCreatedAt = timePtr(sourceCreatedAt)
	ref.LastViewedAt = timePtr(lastViewedAt)
	ref.DirectoryPath = strOf(directoryPath)
	ref.CreatedAt = time.Unix(createdAt, 0)
	ref.UpdatedAt = time.Unix(updatedAt, 0)
	return &ref, key, nil
}

// GetCatalogEntry hydrates one reference into a full entry.
func (d *Database) GetCatalogEntry(ctx context.Context, referenceID int64, opts ThumbnailOptions) (*CatalogEntry, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_catalog_entry", start, err) }()

	if opts.PreviewPercent <= 0 || opts.PreviewPercent >= 1 {
		opts.PreviewPercent = defaultPreviewPercent
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ref, gErr := d.getReference(d.db, referenceID)
	if gErr != nil {
		err = gErr
		return nil, err
	}
	entry, bErr := d.buildEntry(ref, opts)
	err = bErr
	return entry, err
}

// buildEntry assembles content, tags, and thumbnails for one scanned
// reference. Callers hold at least a read lock.
func (d *Database) buildEntry(ref *MediaReference, opts ThumbnailOptions) (*CatalogEntry, error) {
	entry := &CatalogEntry{Reference: *ref}

	var file *MediaFile
	if ref.IsSeries {
		entry.Content = SeriesContent{
			Length:        ref.SeriesLength,
			IsDirectory:   ref.IsDirectorySeries,
			DirectoryPath: ref.DirectoryPath,
			IsRoot:        ref.IsDirectoryRoot,
		}
	} else {
		f, err := scanFile(d.db.QueryRow(
			`SELECT ` + fileColumns + ` FROM media_files WHERE media_reference_id = ?`, ref.ID))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &ConsistencyError{Op: "build_entry", Expected: 1, Actual: 0}
			}
			return nil, err
		}
		file = f
		entry.Content = FileContent{File: *f}
	}

	tags, err := queryAttachedTags(d.db, ref.ID)
	if err != nil {
		return nil, err
	}
	entry.Tags = tags

	entry.Thumbnails, err = d.pickThumbnails(ref.ID, file, opts)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// pickThumbnails applies the thumbnail limit. Requesting exactly one
// thumbnail of animated media picks the frame nearest the preview
// point rather than the first.
func (d *Database) pickThumbnails(referenceID int64, file *MediaFile, opts ThumbnailOptions) ([]Thumbnail, error) {
	if opts.Limit == 0 {
		return nil, nil
	}

	if opts.Limit == 1 && file != nil && file.Animated {
		target := file.Duration * opts.PreviewPercent
		if opts.KeypointTag != "" {
			group, name := splitSlug(opts.KeypointTag)
			tag, err := scanTag(d.db.QueryRow(tagSelect+`WHERE t.name = ? AND g.name = ?`, name, group))
			if err == nil {
				if kp, kpErr := keypointForTag(d.db, referenceID, tag.ID); kpErr == nil {
					target = kp.MediaTimestamp
				} else if !errors.Is(kpErr, ErrNotFound) {
					return nil, kpErr
				}
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		thumb, err := nearestThumbnail(d.db, referenceID, target)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []Thumbnail{*thumb}, nil
	}

	return queryThumbnails(d.db, referenceID, opts.Limit)
}

// SearchGrouped aggregates the references matching a query by the tags
// of one tag group, busiest bucket first.
func (d *Database) SearchGrouped(ctx context.Context, q SearchQuery, tagGroup string) (*GroupPage, error) {
	start := time.Now()
	var err error
	defer func() {
		recordQuery("search_grouped", start, err)
		recordSearch("group", start, err)
	}()

	if err = q.normalize(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	conds, args, empty, fErr := d.buildFilters(&q)
	if fErr != nil {
		err = fErr
		return nil, err
	}
	if empty {
		return &GroupPage{Buckets: []GroupBucket{}}, nil
	}

	query := `
		SELECT t.name, COUNT(DISTINCT r.id) AS cnt` + searchBase + `
		INNER JOIN media_reference_tags rt ON rt.media_reference_id = r.id
		INNER JOIN tags t ON t.id = rt.tag_id
		INNER JOIN tag_groups g ON g.id = t.tag_group_id
		WHERE g.name = ?`
	queryArgs := append([]interface{}{tagGroup}, args...)
	if len(conds) > 0 {
		query += " AND " + strings.Join(conds, " AND ")
	}
	query += ` GROUP BY t.id`

	if q.Cursor != "" {
		c, cErr := decodeGroupCursor(q.Cursor)
		if cErr != nil {
			err = cErr
			return nil, err
		}
		query += ` HAVING cnt < ? OR (cnt = ? AND t.name > ?)`
		queryArgs = append(queryArgs, c.Count, c.Count, c.Value)
	}

	query += ` ORDER BY cnt DESC, t.name LIMIT ?`
	queryArgs = append(queryArgs, q.Limit+1)

	rows, qErr := d.db.QueryContext(ctx, query, queryArgs...)
	if qErr != nil {
		err = qErr
		return nil, err
	}
	defer rows.Close()

	page := &GroupPage{Buckets: []GroupBucket{}}
	for rows.Next() {
		var b GroupBucket
		if scanErr := rows.Scan(&b.Value, &b.Count); scanErr != nil {
			err = scanErr
			return nil, err
		}
		page.Buckets = append(page.Buckets, b)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(page.Buckets) > q.Limit {
		page.Buckets = page.Buckets[:q.Limit]
		last := page.Buckets[len(page.Buckets)-1]
		page.NextCursor = encodeCursor(groupCursor{Count: last.Count, Value: last.Value})
	}
	return page, nil
}

// SearchContextualTags returns tags matching the pattern that co-occur
// with the references a query matches, busiest first. With an empty
// query it degrades to a plain tag search.
func (d *Database) SearchContextualTags(ctx context.Context, match TagMatch, q SearchQuery, limit int) ([]Tag, error) {
	start := time.Now()
	var err error
	defer func() {
		recordQuery("search_contextual_tags", start, err)
		recordSearch("contextual_tags", start, err)
	}()

	if limit <= 0 {
		limit = 50
	}
	if err = q.normalize(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	conds, args, empty, fErr := d.buildFilters(&q)
	if fErr != nil {
		err = fErr
		return nil, err
	}
	if empty {
		return nil, nil
	}

	groupGlob, nameGlob := match.globs()
	query := tagSelect + `WHERE t.name GLOB ?`
	queryArgs := []interface{}{nameGlob}
	if groupGlob != "" {
		query += ` AND g.name GLOB ?`
		queryArgs = append(queryArgs, groupGlob)
	}

	coOccurs := `
		EXISTS (
			SELECT 1 FROM media_reference_tags rt
			INNER JOIN media_references r ON r.id = rt.media_reference_id
			LEFT JOIN media_files f ON f.media_reference_id = r.id
			WHERE rt.tag_id = t.id`
	if len(conds) > 0 {
		coOccurs += " AND " + strings.Join(conds, " AND ")
	}
	coOccurs += `)`
	query += ` AND ` + coOccurs
	queryArgs = append(queryArgs, args...)

	query += ` ORDER BY t.media_reference_count DESC, t.name LIMIT ?`
	queryArgs = append(queryArgs, limit)

	rows, qErr := d.db.QueryContext(ctx, query, queryArgs...)
	if qErr != nil {
		err = qErr
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		tag, scanErr := scanTag(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		tags = append(tags, *tag)
	}
	err = rows.Err()
	return tags, err
}
