package api

import (
	"context"
	"net/http"

	"media-catalog/internal/ingest"
)

// DiscoverRequest walks a path or glob and queues matches for
// ingestion.
type DiscoverRequest struct {
	Path       string   `json:"path"`
	Extensions []string `json:"extensions,omitempty"`
	Priority   string   `json:"priority,omitempty"`
}

// Discover scans the filesystem and enqueues matching files. It runs
// synchronously; the response carries the walk's counters.
func (a *API) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Path == "" {
		badRequest(w, "path is required")
		return
	}

	prio := ingest.PriorityNone
	switch req.Priority {
	case "", string(ingest.PriorityNone):
	case string(ingest.PriorityFirst):
		prio = ingest.PriorityFirst
	case string(ingest.PriorityLast):
		prio = ingest.PriorityLast
	default:
		badRequest(w, "priority must be first, last, or none")
		return
	}

	stats, err := a.disc.Discover(r.Context(), req.Path, req.Extensions, prio)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

// IngestStartRequest configures a run. Defaults apply to every entry
// the run catalogs.
type IngestStartRequest struct {
	DefaultInfo *MediaInfoRequest `json:"defaultInfo,omitempty"`
	DefaultTags []string          `json:"defaultTags,omitempty"`
	Wait        bool              `json:"wait,omitempty"`
}

// IngestStart begins draining the queue. By default the run proceeds
// in the background and the caller polls /api/ingest/status; with
// wait set the response carries the finished run report.
func (a *API) IngestStart(w http.ResponseWriter, r *http.Request) {
	var req IngestStartRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	opts := ingest.RunOptions{
		DefaultInfo: req.DefaultInfo,
		DefaultTags: req.DefaultTags,
	}

	if req.Wait {
		report, err := a.runner.Start(r.Context(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, report)
		return
	}

	// The run outlives the request; it must not die with r.Context().
	if err := a.runner.StartAsync(context.Background(), opts); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSONBody(w, map[string]string{"status": "started"})
}

// IngestStatus reports whether a run is active and the last run's
// report.
func (a *API) IngestStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.runner.Status())
}

// IngestStop asks the active run to stop after its current entry.
func (a *API) IngestStop(w http.ResponseWriter, _ *http.Request) {
	a.runner.Stop()
	writeJSON(w, map[string]string{"status": "stopping"})
}
