package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// VolumeResolver labels paths with the volume they live on for the
// retry metrics, by longest-prefix match on absolute paths.
type VolumeResolver struct {
	// mounts sorted by path length descending, so the most specific
	// prefix wins.
	mounts []volumeMount
}

type volumeMount struct {
	path string // absolute, trailing slash
	name string
}

// NewVolumeResolver builds a resolver from volume name to mount path.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	mounts := make([]volumeMount, 0, len(volumes))
	for name, path := range volumes {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if !strings.HasSuffix(abs, "/") {
			abs += "/"
		}
		mounts = append(mounts, volumeMount{path: abs, name: name})
	}
	sort.Slice(mounts, func(i, j int) bool {
		return len(mounts[i].path) > len(mounts[j].path)
	})
	return &VolumeResolver{mounts: mounts}
}

// Resolve returns the volume name for a path, "unknown" when no
// configured mount contains it. A nil resolver resolves everything to
// "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return "unknown"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}
	// The trailing slash makes the mount directory itself match.
	abs += "/"
	for _, m := range vr.mounts {
		if strings.HasPrefix(abs, m.path) {
			return m.name
		}
	}
	return "unknown"
}

var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver installs the package-level resolver. Called
// once at startup after configuration is loaded.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}

// RetryConfig bounds the stale-handle retry loop.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver overrides the package default for this operation.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig retries three times with 50ms-500ms exponential
// backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c *RetryConfig) resolveVolume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

// isStaleHandle reports whether err is an NFS stale file handle. The
// server invalidates handles when the export changes underneath a
// client; a fresh lookup usually recovers.
func isStaleHandle(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// withRetry runs attempt until it succeeds, fails with a non-stale
// error, or exhausts the configured retries. Only ESTALE retries;
// every other error returns immediately.
func withRetry(op, path string, config RetryConfig, attempt func() error) error {
	start := time.Now()
	volume := config.resolveVolume(path)
	defer func() {
		metrics.FilesystemRetryDuration.WithLabelValues(op, volume).Observe(time.Since(start).Seconds())
	}()

	backoff := config.InitialBackoff
	var lastErr error
	for try := 0; try <= config.MaxRetries; try++ {
		err := attempt()
		if err == nil {
			if try > 0 {
				logging.Info("%s of %s recovered after %d stale-handle retries", op, path, try)
				metrics.FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
			}
			return nil
		}
		if !isStaleHandle(err) {
			return err
		}

		lastErr = err
		metrics.FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
		if try < config.MaxRetries {
			metrics.FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
			logging.Debug("Stale handle on %s of %s, retrying in %v", op, path, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("%s of %s gave up after %d stale-handle retries: %v", op, path, config.MaxRetries, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
	return lastErr
}

// StatWithRetry is os.Stat with the stale-handle retry loop.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, config, func() error {
		var statErr error
		info, statErr = os.Stat(path)
		return statErr
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// OpenWithRetry is os.Open with the stale-handle retry loop.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var f *os.File
	err := withRetry("open", path, config, func() error {
		var openErr error
		f, openErr = os.Open(path)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
