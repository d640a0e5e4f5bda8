// Package ingest drains the filesystem queue into the catalog.
// Discovery walks directories (or glob static prefixes) and queues
// matching files with checksums precomputed; a single-flighted run
// hands each queued entry to its receiver, which catalogs files
// through the Add callback. Watch mode feeds the same queue from
// filesystem events.
package ingest
