package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TagSpec identifies (and optionally describes) a tag by normalized
// name and group. Normalization is the tag engine's job; the store
// persists specs verbatim.
type TagSpec struct {
	Name        string
	Group       string
	Description string
	Metadata    map[string]interface{}
}

// GetTag looks a tag up by normalized (name, group).
func (d *Database) GetTag(ctx context.Context, name, group string) (*Tag, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_tag", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	tag, err := scanTag(d.db.QueryRow(tagSelect+`WHERE t.name = ? AND g.name = ?`, name, group))
	return tag, err
}

// GetTagByID looks a tag up by id.
func (d *Database) GetTagByID(ctx context.Context, id int64) (*Tag, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return scanTag(d.db.QueryRow(tagSelect+`WHERE t.id = ?`, id))
}

const tagSelect = `
	SELECT t.id, t.name, g.name, t.alias_tag_id, t.description, t.metadata,
	       t.media_reference_count, t.unread_media_reference_count, t.created_at
	FROM tags t
	INNER JOIN tag_groups g ON t.tag_group_id = g.id
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTag(row rowScanner) (*Tag, error) {
	var tag Tag
	var alias sql.NullInt64
	var description, metadata sql.NullString
	var createdAt int64

	err := row.Scan(&tag.ID, &tag.Name, &tag.Group, &alias, &description, &metadata,
		&tag.MediaReferenceCount, &tag.UnreadMediaReferenceCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if alias.Valid {
		tag.AliasTagID = &alias.Int64
	}
	tag.Description = strOf(description)
	tag.Metadata = unmarshalMeta(metadata)
	tag.CreatedAt = time.Unix(createdAt, 0)
	return &tag, nil
}

// GetOrCreateTagGroup returns the id of the named tag group, creating
// it on first use. The empty-string default group is seeded by the
// schema.
func (d *Database) GetOrCreateTagGroup(tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM tag_groups WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	res, err := tx.Exec(`INSERT INTO tag_groups (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create tag group %q: %w", name, err)
	}
	return res.LastInsertId()
}

// GetOrCreateTag looks a tag up by (name, group) inside a transaction,
// creating it on miss. The second return reports whether a new row was
// created.
func (d *Database) GetOrCreateTag(tx *sql.Tx, spec TagSpec) (*Tag, bool, error) {
	tag, err := scanTag(tx.QueryRow(tagSelect+`WHERE t.name = ? AND g.name = ?`, spec.Name, spec.Group))
	if err == nil {
		return tag, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	groupID, err := d.GetOrCreateTagGroup(tx, spec.Group)
	if err != nil {
		return nil, false, err
	}

	meta, err := marshalMeta(spec.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode tag metadata: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO tags (name, tag_group_id, description, metadata) VALUES (?, ?, ?, ?)`,
		spec.Name, groupID, nullStr(spec.Description), meta,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create tag %q: %w", spec.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}

	return &Tag{
		ID:          id,
		Name:        spec.Name,
		Group:       spec.Group,
		Description: spec.Description,
		Metadata:    spec.Metadata,
		CreatedAt:   time.Now(),
	}, true, nil
}

// AttachTag links a tag to a reference, stamped with the editor that
// attached it. Returns false when the link already existed (the
// original attribution is preserved).
func (d *Database) AttachTag(tx *sql.Tx, referenceID, tagID int64, editor string) (bool, error) {
	res, err := tx.Exec(
		`INSERT OR IGNORE INTO media_reference_tags (media_reference_id, tag_id, attached_by)
		 VALUES (?, ?, ?)`,
		referenceID, tagID, nullStr(editor),
	)
	if err != nil {
		return false, fmt.Errorf("failed to attach tag %d: %w", tagID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DetachTag removes a tag from a reference. Returns false when the
// link did not exist.
func (d *Database) DetachTag(tx *sql.Tx, referenceID, tagID int64) (bool, error) {
	res, err := tx.Exec(
		`DELETE FROM media_reference_tags WHERE media_reference_id = ? AND tag_id = ?`,
		referenceID, tagID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to detach tag %d: %w", tagID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteTagIfOrphaned removes the tag row when no reference uses it
// anymore. The tag group's tag_count follows via trigger.
func (d *Database) DeleteTagIfOrphaned(tx *sql.Tx, tagID int64) (bool, error) {
	res, err := tx.Exec(
		`DELETE FROM tags WHERE id = ? AND media_reference_count = 0`, tagID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete orphaned tag %d: %w", tagID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const attachedTagSelect = `
	SELECT t.id, t.name, g.name, t.alias_tag_id, t.description, t.metadata,
	       t.media_reference_count, t.unread_media_reference_count, t.created_at,
	       rt.attached_by
	FROM media_reference_tags rt
	INNER JOIN tags t ON rt.tag_id = t.id
	INNER JOIN tag_groups g ON t.tag_group_id = g.id
	WHERE rt.media_reference_id = ?
	ORDER BY g.name, t.name
`

// TagsForReference returns the tags attached to a reference with
// their editor attribution.
func (d *Database) TagsForReference(ctx context.Context, referenceID int64) ([]AttachedTag, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return queryAttachedTags(d.db, referenceID)
}

// TagsForReferenceTx is TagsForReference inside a transaction.
func (d *Database) TagsForReferenceTx(tx *sql.Tx, referenceID int64) ([]AttachedTag, error) {
	return queryAttachedTags(tx, referenceID)
}

func queryAttachedTags(q execer, referenceID int64) ([]AttachedTag, error) {
	rows, err := q.Query(attachedTagSelect, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []AttachedTag
	for rows.Next() {
		var tag AttachedTag
		var alias sql.NullInt64
		var description, metadata, attachedBy sql.NullString
		var createdAt int64

		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Group, &alias, &description, &metadata,
			&tag.MediaReferenceCount, &tag.UnreadMediaReferenceCount, &createdAt, &attachedBy); err != nil {
			return nil, err
		}

		if alias.Valid {
			tag.AliasTagID = &alias.Int64
		}
		tag.Description = strOf(description)
		tag.Metadata = unmarshalMeta(metadata)
		tag.CreatedAt = time.Unix(createdAt, 0)
		tag.AttachedBy = strOf(attachedBy)
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// TagMatch is a glob-like tag pattern: '*' wildcards, a bare term
// implies a starts-with match, and "group:pattern" scopes the match to
// one tag group.
type TagMatch string

// globs translates the match into (group glob, name glob) pairs for
// the sqlite GLOB operator. An empty group glob matches every group.
func (m TagMatch) globs() (groupGlob, nameGlob string) {
	s := strings.ToLower(strings.TrimSpace(string(m)))
	if i := strings.IndexByte(s, ':'); i >= 0 {
		groupGlob = s[:i]
		s = s[i+1:]
	}
	if s == "" {
		s = "*"
	}
	if !strings.ContainsAny(s, "*?") {
		s += "*"
	}
	return groupGlob, s
}

// SearchTags returns tags matching the pattern, busiest first.
func (d *Database) SearchTags(ctx context.Context, match TagMatch, limit int) ([]Tag, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("search_tags", start, err) }()

	if limit <= 0 {
		limit = 50
	}

	groupGlob, nameGlob := match.globs()
	query := tagSelect + `WHERE t.name GLOB ?`
	args := []interface{}{nameGlob}
	if groupGlob != "" {
		query += ` AND g.name GLOB ?`
		args = append(args, groupGlob)
	}
	query += ` ORDER BY t.media_reference_count DESC, t.name LIMIT ?`
	args = append(args, limit)

	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, qErr := d.db.QueryContext(ctx, query, args...)
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
