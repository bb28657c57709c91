// Package metrics defines the Prometheus gauges, counters and
// histograms the block master exposes on /metrics, plus a small Timer
// helper for observing handler and journal-commit latency.
package metrics
