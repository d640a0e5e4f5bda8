package catalog

import (
	"database/sql"
	"strings"

	"media-catalog/internal/database"
)

// reservedGroups are tag group names claimed by the query language and
// never usable as real groups.
var reservedGroups = map[string]bool{
	"media": true,
	"sort":  true,
	"order": true,
}

// normalizeTag parses a "group:name" slug into a normalized TagSpec:
// lower case, spaces collapsed to underscores. Rejects empty names,
// reserved groups, and glob metacharacters.
func normalizeTag(slug string) (database.TagSpec, error) {
	group, name := "", slug
	if i := strings.IndexByte(slug, ':'); i >= 0 {
		group, name = slug[:i], slug[i+1:]
	}

	group = normalizePart(group)
	name = normalizePart(name)

	if name == "" {
		return database.TagSpec{}, invalidInput("tag", "name is empty after normalization in %q", slug)
	}
	if strings.ContainsAny(name, "*?:") || strings.ContainsAny(group, "*?:") {
		return database.TagSpec{}, invalidInput("tag", "%q contains disallowed characters", slug)
	}
	if reservedGroups[group] {
		return database.TagSpec{}, invalidInput("tag", "group %q is reserved", group)
	}
	return database.TagSpec{Name: name, Group: group}, nil
}

func normalizePart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "_")
}

// normalizeTags normalizes a slug list, dropping duplicates while
// keeping first-seen order.
func normalizeTags(slugs []string) ([]database.TagSpec, error) {
	seen := make(map[string]bool, len(slugs))
	specs := make([]database.TagSpec, 0, len(slugs))
	for _, slug := range slugs {
		spec, err := normalizeTag(slug)
		if err != nil {
			return nil, err
		}
		key := spec.Group + ":" + spec.Name
		if seen[key] {
			continue
		}
		seen[key] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

// TagInstructions mutates the tag set of a reference. Replace is a
// full target list; Add and Remove adjust individual tags. Overwrite
// widens Replace from editor-owned tags to every attached tag.
type TagInstructions struct {
	Replace   []string
	Add       []string
	Remove    []string
	Overwrite bool
}

func (ti *TagInstructions) empty() bool {
	return ti == nil || (ti.Replace == nil && len(ti.Add) == 0 && len(ti.Remove) == 0)
}

// applyTagInstructions executes a tag mutation inside tx and returns
// the resulting diff for the edit log. Removal of a Replace-displaced
// tag respects editor ownership unless overwrite is set; Add and
// Remove always apply regardless of who attached a tag.
func (e *Engine) applyTagInstructions(tx *sql.Tx, referenceID int64, editor string, instr *TagInstructions) (database.TagDiff, error) {
	var diff database.TagDiff
	if instr.empty() {
		return diff, nil
	}

	current, err := e.db.TagsForReferenceTx(tx, referenceID)
	if err != nil {
		return diff, err
	}

	var toAdd []database.TagSpec
	removed := make(map[int64]database.Tag)

	if instr.Replace != nil {
		target, err := normalizeTags(instr.Replace)
		if err != nil {
			return diff, err
		}
		inTarget := make(map[string]bool, len(target))
		for _, spec := range target {
			inTarget[spec.Group+":"+spec.Name] = true
		}
		for _, attached := range current {
			if inTarget[attached.Group+":"+attached.Name] {
				continue
			}
			if !instr.Overwrite && attached.AttachedBy != editor {
				continue
			}
			removed[attached.ID] = attached.Tag
		}
		toAdd = append(toAdd, target...)
	}

	addSpecs, err := normalizeTags(instr.Add)
	if err != nil {
		return diff, err
	}
	toAdd = append(toAdd, addSpecs...)

	removeSpecs, err := normalizeTags(instr.Remove)
	if err != nil {
		return diff, err
	}
	for _, spec := range removeSpecs {
		for _, attached := range current {
			if attached.Name == spec.Name && attached.Group == spec.Group {
				removed[attached.ID] = attached.Tag
			}
		}
	}

	for _, tag := range removed {
		detached, err := e.db.DetachTag(tx, referenceID, tag.ID)
		if err != nil {
			return diff, err
		}
		if !detached {
			continue
		}
		diff.Removed = append(diff.Removed, tag.Slug())
		if e.cfg.AutoCleanupTags {
			if _, err := e.db.DeleteTagIfOrphaned(tx, tag.ID); err != nil {
				return diff, err
			}
		}
	}

	for _, spec := range toAdd {
		tag, _, err := e.db.GetOrCreateTag(tx, spec)
		if err != nil {
			return diff, err
		}
		if _, wasRemoved := removed[tag.ID]; wasRemoved {
			// Listed for both removal and addition: removal wins.
			continue
		}
		attached, err := e.db.AttachTag(tx, referenceID, tag.ID, editor)
		if err != nil {
			return diff, err
		}
		if attached {
			diff.Added = append(diff.Added, tag.Slug())
		}
	}

	return diff, nil
}

// attachNewTags resolves and attaches tags during create, when no
// prior state exists.
func (e *Engine) attachNewTags(tx *sql.Tx, referenceID int64, editor string, specs []database.TagSpec) ([]string, error) {
	var added []string
	for _, spec := range specs {
		tag, _, err := e.db.GetOrCreateTag(tx, spec)
		if err != nil {
			return nil, err
		}
		attached, err := e.db.AttachTag(tx, referenceID, tag.ID, editor)
		if err != nil {
			return nil, err
		}
		if attached {
			added = append(added, tag.Slug())
		}
	}
	return added, nil
}
