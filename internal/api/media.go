package api

import (
	"net/http"

	"media-catalog/internal/catalog"
)

// MediaInfoRequest mirrors catalog.MediaInfo on the wire.
type MediaInfoRequest = catalog.MediaInfo

// TagInstructionsRequest mirrors catalog.TagInstructions on the wire.
type TagInstructionsRequest struct {
	Replace   []string `json:"replace,omitempty"`
	Add       []string `json:"add,omitempty"`
	Remove    []string `json:"remove,omitempty"`
	Overwrite bool     `json:"overwrite,omitempty"`
}

func (t *TagInstructionsRequest) instructions() *catalog.TagInstructions {
	if t == nil {
		return nil
	}
	return &catalog.TagInstructions{
		Replace:   t.Replace,
		Add:       t.Add,
		Remove:    t.Remove,
		Overwrite: t.Overwrite,
	}
}

// MediaCreateRequest catalogs one file.
type MediaCreateRequest struct {
	Filepath string            `json:"filepath"`
	Info     *MediaInfoRequest `json:"info,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Editor   string            `json:"editor"`
}

// MediaCreate catalogs a new file.
func (a *API) MediaCreate(w http.ResponseWriter, r *http.Request) {
	var req MediaCreateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Filepath == "" || req.Editor == "" {
		badRequest(w, "filepath and editor are required")
		return
	}

	entry, err := a.engine.Create(r.Context(), req.Filepath, req.Info, req.Tags, req.Editor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entry)
}

// MediaUpdateRequest mutates a cataloged reference.
type MediaUpdateRequest struct {
	ID     int64                   `json:"id"`
	Info   *MediaInfoRequest       `json:"info,omitempty"`
	Tags   *TagInstructionsRequest `json:"tags,omitempty"`
	Editor string                  `json:"editor"`
}

// MediaUpdate applies field and tag mutations to a reference.
func (a *API) MediaUpdate(w http.ResponseWriter, r *http.Request) {
	var req MediaUpdateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ID == 0 || req.Editor == "" {
		badRequest(w, "id and editor are required")
		return
	}

	entry, err := a.engine.Update(r.Context(), req.ID, req.Info, req.Tags.instructions(), req.Editor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entry)
}

// MediaUpsertResponse reports whether the upsert created or updated.
type MediaUpsertResponse struct {
	Entry   interface{} `json:"entry"`
	Created bool        `json:"created"`
}

// MediaUpsert creates the file's entry or updates the existing one.
func (a *API) MediaUpsert(w http.ResponseWriter, r *http.Request) {
	var req MediaCreateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Filepath == "" || req.Editor == "" {
		badRequest(w, "filepath and editor are required")
		return
	}

	entry, created, err := a.engine.Upsert(r.Context(), req.Filepath, req.Info, req.Tags, req.Editor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, MediaUpsertResponse{Entry: entry, Created: created})
}

// MediaIDRequest addresses a reference by id or filepath.
type MediaIDRequest struct {
	ID       int64  `json:"id,omitempty"`
	Filepath string `json:"filepath,omitempty"`
}

// MediaGet returns one hydrated catalog entry.
func (a *API) MediaGet(w http.ResponseWriter, r *http.Request) {
	var req MediaIDRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	switch {
	case req.ID != 0:
		entry, err := a.engine.Get(r.Context(), req.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, entry)
	case req.Filepath != "":
		entry, err := a.engine.GetByFilepath(r.Context(), req.Filepath)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, entry)
	default:
		badRequest(w, "id or filepath is required")
	}
}

// MediaDelete removes a reference, its file row, tags, and thumbnails.
// The edit log survives.
func (a *API) MediaDelete(w http.ResponseWriter, r *http.Request) {
	var req MediaIDRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ID == 0 {
		badRequest(w, "id is required")
		return
	}

	if err := a.engine.Delete(r.Context(), req.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}

// MediaEditLog returns the reference's append-only audit trail.
func (a *API) MediaEditLog(w http.ResponseWriter, r *http.Request) {
	var req MediaIDRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ID == 0 {
		badRequest(w, "id is required")
		return
	}

	log, err := a.engine.EditLog(r.Context(), req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, log)
}
