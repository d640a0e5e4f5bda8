// Package catalog implements the mutation surface of the media
// catalog: creating, updating, and deleting references with
// content-checksum deduplication, editor-scoped tag instructions,
// directory-derived series construction, playback-session tracking,
// and an append-only edit log.
//
// Expensive file I/O (checksumming, probing, thumbnail generation)
// always runs before a write transaction opens, so disk latency never
// holds the database write lock. Every mutation is one transaction:
// either it all commits or none of it does.
package catalog
