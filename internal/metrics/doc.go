// Package metrics defines the Prometheus collectors used across the
// media catalog: catalog operation counters and latencies, search query
// metrics, database query/transaction instrumentation, ingestion run
// stats, and HTTP metrics for the RPC facade.
//
// Collectors are registered with the default registry via promauto at
// package load time; expose them with promhttp.Handler().
package metrics
