package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-catalog/internal/catalog"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// ErrAlreadyRunning is returned when a run is started while another is
// still active. Ingestion is single-flighted process-wide.
var ErrAlreadyRunning = errors.New("an ingestion run is already active")

// Stats counts queue entry outcomes for one run.
type Stats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Existing  int `json:"existing"`
	Duplicate int `json:"duplicate"`
	Errored   int `json:"errored"`
}

// RunReport describes one ingestion run, finished or in flight.
type RunReport struct {
	RunID      string    `json:"runId"`
	IngestID   int64     `json:"ingestId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Processed  int       `json:"processed"`
	Stats      Stats     `json:"stats"`
	Aborted    bool      `json:"aborted"`
}

// Status is the runner's externally visible state.
type Status struct {
	Running bool       `json:"running"`
	LastRun *RunReport `json:"lastRun,omitempty"`
}

// RunOptions configures one ingestion run. DefaultInfo and DefaultTags
// are merged into every entry the run catalogs.
type RunOptions struct {
	DefaultInfo *catalog.MediaInfo
	DefaultTags []string
}

// Throttler blocks the run loop while the process is under memory
// pressure. WaitIfPaused returns false when processing should stop
// for good.
type Throttler interface {
	WaitIfPaused() bool
}

// Runner drains the ingest queue through the receiver registry. At
// most one run is active at a time; a second Start fails immediately.
type Runner struct {
	db        *database.Database
	cat       Cataloger
	receivers []Receiver
	def       Receiver
	editor    string
	throttle  Throttler

	mu       sync.Mutex
	running  bool
	stopFlag bool
	lastRun  *RunReport
}

// NewRunner creates a runner. Edits made by ingestion are attributed
// to editor; receivers are consulted in the given order, falling back
// to the built-in default receiver.
func NewRunner(db *database.Database, cat Cataloger, receivers []Receiver, editor string) *Runner {
	if editor == "" {
		editor = "ingest"
	}
	return &Runner{
		db:        db,
		cat:       cat,
		receivers: receivers,
		def:       defaultReceiver{},
		editor:    editor,
	}
}

// SetThrottler installs a backpressure gate consulted between queue
// entries. Nil disables throttling.
func (r *Runner) SetThrottler(t Throttler) {
	r.throttle = t
}

// tryStart flips the runner to running, or reports that another run
// holds the flag.
func (r *Runner) tryStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.stopFlag = false
	return true
}

func (r *Runner) finish(report *RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.lastRun = report
}

// Stop asks the active run to stop after the entry it is processing.
// A no-op when nothing is running.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.stopFlag = true
	}
}

func (r *Runner) stopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopFlag
}

// Status reports whether a run is active and the last completed run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{Running: r.running}
	if r.lastRun != nil {
		report := *r.lastRun
		st.LastRun = &report
	}
	return st
}

// Start executes one ingestion run synchronously: allocate an ingest
// id, then repeatedly hand the highest-priority unprocessed queue
// entry to its receiver until the queue drains. Per-entry failures are
// counted and the run continues; database errors abort the run. A
// second concurrent Start fails with ErrAlreadyRunning.
func (r *Runner) Start(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if !r.tryStart() {
		metrics.IngestRunsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrAlreadyRunning
	}
	return r.run(ctx, opts)
}

// StartAsync begins a run in the background and returns once the run
// is claimed. Progress is observable through Status.
func (r *Runner) StartAsync(ctx context.Context, opts RunOptions) error {
	if !r.tryStart() {
		metrics.IngestRunsTotal.WithLabelValues("rejected").Inc()
		return ErrAlreadyRunning
	}
	go func() {
		if _, err := r.run(ctx, opts); err != nil {
			logging.Error("Background ingestion run failed: %v", err)
		}
	}()
	return nil
}

func (r *Runner) run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	metrics.IngestRunning.Set(1)
	defer metrics.IngestRunning.Set(0)

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	defer func() {
		report.FinishedAt = time.Now()
		metrics.IngestLastRunDuration.Set(report.FinishedAt.Sub(report.StartedAt).Seconds())
		r.finish(report)
	}()

	ingestID, err := r.db.NextIngestID(ctx)
	if err != nil {
		report.Aborted = true
		metrics.IngestRunsTotal.WithLabelValues("aborted").Inc()
		return nil, err
	}
	report.IngestID = ingestID

	logging.Info("Ingestion run %s started (ingest id %d)", report.RunID, ingestID)

	for {
		if r.stopping() {
			logging.Info("Ingestion run %s stopped on request after %d entries", report.RunID, report.Processed)
			report.Aborted = true
			metrics.IngestRunsTotal.WithLabelValues("aborted").Inc()
			return report, nil
		}
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			metrics.IngestRunsTotal.WithLabelValues("aborted").Inc()
			return report, err
		}
		if r.throttle != nil && !r.throttle.WaitIfPaused() {
			logging.Warn("Ingestion run %s aborted by memory backpressure", report.RunID)
			report.Aborted = true
			metrics.IngestRunsTotal.WithLabelValues("aborted").Inc()
			return report, nil
		}

		fp, err := r.db.NextQueueEntry(ctx, ingestID)
		if errors.Is(err, database.ErrNotFound) {
			break
		}
		if err != nil {
			report.Aborted = true
			metrics.IngestRunsTotal.WithLabelValues("aborted").Inc()
			return report, err
		}

		if err := r.processEntry(ctx, fp, ingestID, opts, &report.Stats); err != nil {
			// The failing entry stays unmarked so the next run
			// retries it.
			logging.Error("Ingestion run %s aborted on %s: %v", report.RunID, fp.Filepath, err)
			report.Aborted = true
			metrics.IngestRunsTotal.WithLabelValues("aborted").Inc()
			return report, err
		}
		report.Processed++
	}

	logging.Info("Ingestion run %s complete: %d entries (%d created, %d updated, %d existing, %d duplicate, %d errored)",
		report.RunID, report.Processed, report.Stats.Created, report.Stats.Updated,
		report.Stats.Existing, report.Stats.Duplicate, report.Stats.Errored)
	metrics.IngestRunsTotal.WithLabelValues("completed").Inc()
	return report, nil
}

// processEntry resolves the entry's receiver, invokes it, records the
// outcome metric, and stamps the queue row. Only fatal errors return
// non-nil.
func (r *Runner) processEntry(ctx context.Context, fp *database.FilesystemPath, ingestID int64, opts RunOptions, stats *Stats) error {
	before := *stats

	rctx := &Context{
		ctx:         ctx,
		cat:         r.cat,
		editor:      r.editor,
		Entry:       fp,
		Stats:       stats,
		DefaultInfo: opts.DefaultInfo,
		DefaultTags: opts.DefaultTags,
	}

	recv := r.resolve(fp)
	if recv == nil {
		logging.Warn("No receiver matches %s, skipping", fp.Filepath)
		stats.Errored++
	} else if err := recv.Handle(rctx); err != nil {
		if rctx.fatal != nil {
			return rctx.fatal
		}
		// A receiver error outside the Add callback is a per-entry
		// failure, not a run failure.
		logging.Warn("Receiver %s failed on %s: %v", recv.Name(), fp.Filepath, err)
		stats.Errored++
	}

	recordOutcome(before, *stats)
	return r.db.MarkPathProcessed(ctx, fp.ID, ingestID, rctx.ingested, fp.Checksum)
}

// resolve picks the receiver for a queue entry: the stored retriever
// name wins, then registration order, then the default.
func (r *Runner) resolve(fp *database.FilesystemPath) Receiver {
	if fp.IngestRetriever != "" {
		for _, recv := range r.receivers {
			if recv.Name() == fp.IngestRetriever {
				return recv
			}
		}
		logging.Warn("Queue entry %s names unknown receiver %q", fp.Filepath, fp.IngestRetriever)
	}
	for _, recv := range r.receivers {
		if recv.Matches(fp) {
			return recv
		}
	}
	if r.def.Matches(fp) {
		return r.def
	}
	return nil
}

func recordOutcome(before, after Stats) {
	inc := func(result string, n int) {
		if n > 0 {
			metrics.IngestEntriesTotal.WithLabelValues(result).Add(float64(n))
		}
	}
	inc("created", after.Created-before.Created)
	inc("updated", after.Updated-before.Updated)
	inc("existing", after.Existing-before.Existing)
	inc("duplicate", after.Duplicate-before.Duplicate)
	inc("errored", after.Errored-before.Errored)
}
