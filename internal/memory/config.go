package memory

import (
	"os"
	"runtime/debug"
	"strconv"

	"media-catalog/internal/logging"
)

// DefaultMemoryRatio is the fraction of the container limit handed to
// the Go heap. The remainder stays free for ffprobe/ffmpeg children,
// CGO image buffers, and goroutine stacks.
const DefaultMemoryRatio = 0.85

// ConfigureFromEnv sets GOMEMLIMIT from the container's memory limit
// and returns the resulting limit in bytes, 0 when none applies.
// An explicit GOMEMLIMIT always wins; otherwise MEMORY_LIMIT (bytes)
// scaled by MEMORY_RATIO is applied. Call before the first significant
// allocation.
func ConfigureFromEnv() int64 {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		logging.Info("GOMEMLIMIT set explicitly: %s", env)
		// The runtime applied it at startup; read it back.
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
			return limit
		}
		return 0
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, leaving GOMEMLIMIT alone")
		return 0
	}
	containerLimit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || containerLimit <= 0 {
		logging.Warn("Ignoring unparseable MEMORY_LIMIT %q", raw)
		return 0
	}

	limit := int64(float64(containerLimit) * ratioFromEnv())
	debug.SetMemoryLimit(limit)
	logging.Info("GOMEMLIMIT set to %s from %s container limit",
		humanBytes(limit), humanBytes(containerLimit))
	return limit
}

// ratioFromEnv reads MEMORY_RATIO, falling back to the default for
// missing or out-of-range values.
func ratioFromEnv() float64 {
	raw := os.Getenv("MEMORY_RATIO")
	if raw == "" {
		return DefaultMemoryRatio
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio <= 0 || ratio > 1 {
		logging.Warn("Ignoring MEMORY_RATIO %q, using %.2f", raw, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return ratio
}

// humanBytes renders a byte count with a binary unit suffix.
func humanBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
