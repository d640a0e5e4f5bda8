package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Config bounds the monitor's watermarks. Both are fractions of the
// limit; the critical mark must sit above the high mark so pause and
// resume cannot oscillate on a single sample.
type Config struct {
	// LimitBytes overrides the memory limit. 0 means read GOMEMLIMIT.
	LimitBytes int64

	// HighWatermark is the usage fraction below which a paused
	// monitor resumes.
	HighWatermark float64

	// CriticalWatermark is the usage fraction at which the monitor
	// pauses cooperating workers.
	CriticalWatermark float64

	// Interval between heap samples.
	Interval time.Duration
}

// DefaultConfig pauses at 85% of the limit and resumes below 70%.
func DefaultConfig() Config {
	return Config{
		HighWatermark:     0.7,
		CriticalWatermark: 0.85,
		Interval:          5 * time.Second,
	}
}

// Monitor samples heap allocation against the memory limit and gates
// workers through WaitIfPaused. Without a limit it is inert: nothing
// is sampled and nothing ever pauses.
type Monitor struct {
	config Config
	limit  int64
	done   chan struct{}

	mu      sync.RWMutex
	paused  bool
	resumed chan struct{}
}

// NewMonitor builds a monitor against the configured limit, falling
// back to the runtime's GOMEMLIMIT when none is given.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		// SetMemoryLimit(-1) reads without changing; the runtime
		// default is effectively unlimited and treated as unset.
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		logging.Warn("No memory limit configured, ingestion backpressure disabled")
	} else {
		logging.Info("Memory monitor watching %s limit (pause at %.0f%%, resume below %.0f%%)",
			humanBytes(limit), config.CriticalWatermark*100, config.HighWatermark*100)
	}

	return &Monitor{
		config:  config,
		limit:   limit,
		done:    make(chan struct{}),
		resumed: make(chan struct{}),
	}
}

// Start begins sampling heap usage.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases every goroutine blocked in
// WaitIfPaused.
func (m *Monitor) Stop() {
	close(m.done)
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			m.observe(stats.Alloc)
		case <-m.done:
			return
		}
	}
}

// observe applies the watermark transitions for one heap sample.
// Between the two marks the current state holds.
func (m *Monitor) observe(alloc uint64) {
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.paused && usage >= m.config.CriticalWatermark:
		logging.Warn("Heap at %.1f%% of limit, pausing ingestion", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.HighWatermark:
		logging.Info("Heap back at %.1f%% of limit, resuming ingestion", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumed)
		m.resumed = make(chan struct{})
	}
}

// WaitIfPaused blocks while the monitor is paused. It returns false
// when the monitor is stopped before usage recovers.
func (m *Monitor) WaitIfPaused() bool {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return true
	}
	resumed := m.resumed
	m.mu.RUnlock()

	select {
	case <-resumed:
		return true
	case <-m.done:
		return false
	}
}

// IsPaused reports the current pause state.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}
