package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"media-catalog/internal/catalog"
	"media-catalog/internal/database"
	"media-catalog/internal/ingest"
	"media-catalog/internal/logging"
	"media-catalog/internal/middleware"
	"media-catalog/internal/probe"
	"media-catalog/internal/startup"
)

// API is the JSON RPC facade over the catalog. It holds no logic of
// its own; every route decodes a request, calls one engine operation,
// and encodes the result.
type API struct {
	engine *catalog.Engine
	db     *database.Database
	disc   *ingest.Discovery
	runner *ingest.Runner
}

// New wires the facade to its engines.
func New(engine *catalog.Engine, db *database.Database, disc *ingest.Discovery, runner *ingest.Runner) *API {
	return &API{engine: engine, db: db, disc: disc, runner: runner}
}

// Router builds the route table. All operations are JSON POST routes
// under /api; health is a plain GET.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logger(middleware.DefaultLoggingConfig()))
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	r.Use(middleware.Compression(middleware.DefaultCompressionConfig()))

	r.HandleFunc("/health", a.Health).Methods(http.MethodGet)
	r.HandleFunc("/version", a.Version).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tag/search", a.TagSearch).Methods(http.MethodPost)

	api.HandleFunc("/media/create", a.MediaCreate).Methods(http.MethodPost)
	api.HandleFunc("/media/update", a.MediaUpdate).Methods(http.MethodPost)
	api.HandleFunc("/media/upsert", a.MediaUpsert).Methods(http.MethodPost)
	api.HandleFunc("/media/delete", a.MediaDelete).Methods(http.MethodPost)
	api.HandleFunc("/media/get", a.MediaGet).Methods(http.MethodPost)
	api.HandleFunc("/media/search", a.MediaSearch).Methods(http.MethodPost)
	api.HandleFunc("/media/group", a.MediaGroup).Methods(http.MethodPost)
	api.HandleFunc("/media/context-tags", a.MediaContextTags).Methods(http.MethodPost)
	api.HandleFunc("/media/editlog", a.MediaEditLog).Methods(http.MethodPost)

	api.HandleFunc("/series/create", a.SeriesCreate).Methods(http.MethodPost)
	api.HandleFunc("/series/update", a.SeriesUpdate).Methods(http.MethodPost)
	api.HandleFunc("/series/add", a.SeriesAdd).Methods(http.MethodPost)
	api.HandleFunc("/series/get", a.SeriesGet).Methods(http.MethodPost)

	api.HandleFunc("/views/start", a.ViewStart).Methods(http.MethodPost)
	api.HandleFunc("/views/update", a.ViewUpdate).Methods(http.MethodPost)

	api.HandleFunc("/filesystem/discover", a.Discover).Methods(http.MethodPost)
	api.HandleFunc("/ingest/start", a.IngestStart).Methods(http.MethodPost)
	api.HandleFunc("/ingest/status", a.IngestStatus).Methods(http.MethodPost)
	api.HandleFunc("/ingest/stop", a.IngestStop).Methods(http.MethodPost)

	api.HandleFunc("/stats", a.Stats).Methods(http.MethodPost)
	api.HandleFunc("/maintenance", a.Maintenance).Methods(http.MethodPost)

	return r
}

// decode reads the request body into v. An empty body decodes into the
// zero value, so every operation accepts an argument-free call.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeJSON encodes v as JSON onto the response writer.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeError maps a typed engine error onto an HTTP status and writes
// it as a JSON document.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var invalid *catalog.InvalidInputError
	var exists *catalog.AlreadyExistsError
	var dup *catalog.DuplicateContentError
	var probeErr *probe.Error

	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &exists), errors.As(err, &dup):
		status = http.StatusConflict
	case errors.Is(err, ingest.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.As(err, &probeErr):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		logging.Error("request failed: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSONBody(w, map[string]string{"error": err.Error()})
}

func writeJSONBody(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON error response: %v", err)
	}
}

func badRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	writeJSONBody(w, map[string]string{"error": message})
}

// Health reports liveness.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// Version reports build information.
func (a *API) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, startup.GetBuildInfo())
}

// Stats reports catalog totals.
func (a *API) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.engine.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, stats)
}

// Maintenance checkpoints the WAL and vacuums the database file.
func (a *API) Maintenance(w http.ResponseWriter, _ *http.Request) {
	if err := a.db.CheckpointWAL(); err != nil {
		writeError(w, err)
		return
	}
	if err := a.db.Vacuum(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
