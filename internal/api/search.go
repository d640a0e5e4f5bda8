package api

import (
	"net/http"

	"media-catalog/internal/database"
)

// SearchRequest is the wire form of a catalog search.
type SearchRequest struct {
	Tags          []string `json:"tags,omitempty"`
	SeriesID      int64    `json:"seriesId,omitempty"`
	IncludeSeries bool     `json:"includeSeries,omitempty"`
	Stars         *int     `json:"stars,omitempty"`
	StarsExact    bool     `json:"starsExact,omitempty"`
	Animated      *bool    `json:"animated,omitempty"`
	Unread        *bool    `json:"unread,omitempty"`
	FilepathGlob  string   `json:"filepathGlob,omitempty"`
	Directory     string   `json:"directory,omitempty"`
	SortBy        string   `json:"sortBy,omitempty"`
	Order         string   `json:"order,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	Cursor        string   `json:"cursor,omitempty"`
	Thumbnails    int      `json:"thumbnails,omitempty"`
	PreviewTag    string   `json:"previewTag,omitempty"`
}

func (req *SearchRequest) query() database.SearchQuery {
	return database.SearchQuery{
		Tags:          req.Tags,
		SeriesID:      req.SeriesID,
		IncludeSeries: req.IncludeSeries,
		Stars:         req.Stars,
		StarsExact:    req.StarsExact,
		Animated:      req.Animated,
		Unread:        req.Unread,
		FilepathGlob:  req.FilepathGlob,
		Directory:     req.Directory,
		SortBy:        database.SortField(req.SortBy),
		Order:         database.SortOrder(req.Order),
		Limit:         req.Limit,
		Cursor:        req.Cursor,
		Thumbnails: database.ThumbnailOptions{
			Limit:       req.Thumbnails,
			KeypointTag: req.PreviewTag,
		},
	}
}

// MediaSearch returns one cursor-paginated page of catalog entries.
func (a *API) MediaSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	page, err := a.db.Search(r.Context(), req.query())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, page)
}

// GroupRequest aggregates a search by the values of one tag group.
type GroupRequest struct {
	SearchRequest
	Group string `json:"group"`
}

// MediaGroup returns bucket counts per tag value within a group.
func (a *API) MediaGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Group == "" {
		badRequest(w, "group is required")
		return
	}

	page, err := a.db.SearchGrouped(r.Context(), req.query(), req.Group)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, page)
}

// ContextTagsRequest finds tags co-occurring with a search's results.
type ContextTagsRequest struct {
	SearchRequest
	Match string `json:"match"`
	Max   int    `json:"max,omitempty"`
}

// MediaContextTags returns tags matching the pattern that co-occur
// with the filtered result set.
func (a *API) MediaContextTags(w http.ResponseWriter, r *http.Request) {
	var req ContextTagsRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	tags, err := a.db.SearchContextualTags(r.Context(), database.TagMatch(req.Match), req.query(), req.Max)
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []database.Tag{}
	}
	writeJSON(w, tags)
}

// TagSearchRequest is a glob tag lookup.
type TagSearchRequest struct {
	Match string `json:"match"`
	Limit int    `json:"limit,omitempty"`
}

// TagSearch returns tags matching the pattern, busiest first.
func (a *API) TagSearch(w http.ResponseWriter, r *http.Request) {
	var req TagSearchRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	tags, err := a.db.SearchTags(r.Context(), database.TagMatch(req.Match), req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if tags == nil {
		tags = []database.Tag{}
	}
	writeJSON(w, tags)
}
