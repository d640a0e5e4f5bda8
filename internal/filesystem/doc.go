// Package filesystem wraps os.Stat and os.Open with a retry loop for
// NFS stale file handles (ESTALE). Media libraries commonly live on
// network mounts, where a server-side export change invalidates open
// handles; a fresh lookup after a short backoff usually recovers.
// Every other error fails immediately.
//
// Checksumming (internal/probe) and discovery (internal/ingest) read
// through this package. Retry metrics are labeled with the volume the
// path resolves to; the resolver is installed at startup via
// SetDefaultVolumeResolver.
package filesystem
