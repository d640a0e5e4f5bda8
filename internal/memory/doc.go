// Package memory sets the Go runtime's memory limit from container
// environment variables and supplies backpressure to ingestion.
//
// ConfigureFromEnv derives GOMEMLIMIT from MEMORY_LIMIT (the container
// limit in bytes, typically injected through the downward API) scaled
// by MEMORY_RATIO, leaving headroom for ffprobe/ffmpeg children and
// CGO image buffers. An explicit GOMEMLIMIT always wins.
//
// Monitor samples heap allocation against that limit and pauses
// cooperating workers between two watermarks; the ingestion runner
// checks WaitIfPaused between queue entries.
package memory
