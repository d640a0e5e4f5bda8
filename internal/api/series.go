package api

import (
	"net/http"
)

// SeriesCreateRequest creates a manual series.
type SeriesCreateRequest struct {
	Info   *MediaInfoRequest `json:"info,omitempty"`
	Tags   []string          `json:"tags,omitempty"`
	Editor string            `json:"editor"`
}

// SeriesCreate creates an empty manual series.
func (a *API) SeriesCreate(w http.ResponseWriter, r *http.Request) {
	var req SeriesCreateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Editor == "" {
		badRequest(w, "editor is required")
		return
	}

	entry, err := a.engine.CreateSeries(r.Context(), req.Info, req.Tags, req.Editor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entry)
}

// SeriesAddRequest places a reference in a series. Index is optional;
// when omitted the reference is appended at the end.
type SeriesAddRequest struct {
	SeriesID    int64 `json:"seriesId"`
	ReferenceID int64 `json:"referenceId"`
	Index       *int  `json:"index,omitempty"`
}

// SeriesAdd places a reference in a series. Re-adding a member is a
// no-op.
func (a *API) SeriesAdd(w http.ResponseWriter, r *http.Request) {
	var req SeriesAddRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.SeriesID == 0 || req.ReferenceID == 0 {
		badRequest(w, "seriesId and referenceId are required")
		return
	}

	index := -1
	if req.Index != nil {
		index = *req.Index
	}
	if err := a.engine.AddToSeries(r.Context(), req.SeriesID, req.ReferenceID, index); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "added"})
}

// SeriesUpdateRequest mutates a series reference.
type SeriesUpdateRequest struct {
	SeriesID int64                   `json:"seriesId"`
	Info     *MediaInfoRequest       `json:"info,omitempty"`
	Tags     *TagInstructionsRequest `json:"tags,omitempty"`
	Editor   string                  `json:"editor"`
}

// SeriesUpdate applies field and tag mutations to a series reference.
// Non-series references are rejected; use media/update for those.
func (a *API) SeriesUpdate(w http.ResponseWriter, r *http.Request) {
	var req SeriesUpdateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.SeriesID == 0 || req.Editor == "" {
		badRequest(w, "seriesId and editor are required")
		return
	}

	current, err := a.engine.Get(r.Context(), req.SeriesID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !current.Reference.IsSeries {
		badRequest(w, "reference is not a series")
		return
	}

	entry, err := a.engine.Update(r.Context(), req.SeriesID, req.Info, req.Tags.instructions(), req.Editor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entry)
}

// SeriesGetRequest addresses a series by reference id.
type SeriesGetRequest struct {
	SeriesID int64 `json:"seriesId"`
}

// SeriesGet returns a series entry with its ordered members.
func (a *API) SeriesGet(w http.ResponseWriter, r *http.Request) {
	var req SeriesGetRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.SeriesID == 0 {
		badRequest(w, "seriesId is required")
		return
	}

	series, err := a.engine.GetSeries(r.Context(), req.SeriesID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, series)
}
