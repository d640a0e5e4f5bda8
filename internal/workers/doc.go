// Package workers calculates worker pool sizes for concurrent tasks,
// respecting container CPU limits and environment overrides. Discovery
// uses it to size its checksum worker pool.
package workers
