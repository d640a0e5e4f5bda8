package api

import (
	"net/http"
	"time"

	"media-catalog/internal/catalog"
)

// ViewStartRequest opens a playback session on a file reference.
type ViewStartRequest struct {
	ReferenceID int64   `json:"referenceId"`
	Duration    float64 `json:"duration,omitempty"`
	NumLoops    int     `json:"numLoops,omitempty"`
}

// ViewStart records the start of a view. The reference's view count
// and unread flag move with it.
func (a *API) ViewStart(w http.ResponseWriter, r *http.Request) {
	var req ViewStartRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ReferenceID == 0 {
		badRequest(w, "referenceId is required")
		return
	}

	view, err := a.engine.StartView(r.Context(), req.ReferenceID, catalog.ViewSession{
		Duration: req.Duration,
		NumLoops: req.NumLoops,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}

// ViewUpdateRequest extends or closes a playback session.
type ViewUpdateRequest struct {
	ViewID   int64      `json:"viewId"`
	End      *time.Time `json:"end,omitempty"`
	Duration float64    `json:"duration,omitempty"`
	NumLoops int        `json:"numLoops,omitempty"`
}

// ViewUpdate updates an open view with elapsed time, loop count, or an
// end timestamp.
func (a *API) ViewUpdate(w http.ResponseWriter, r *http.Request) {
	var req ViewUpdateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ViewID == 0 {
		badRequest(w, "viewId is required")
		return
	}

	view, err := a.engine.UpdateView(r.Context(), req.ViewID, req.End, catalog.ViewSession{
		Duration: req.Duration,
		NumLoops: req.NumLoops,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, view)
}
