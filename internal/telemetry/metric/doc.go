// Package metric provides Prometheus metrics for RetroState.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: registry, service event counters and the HTTP handler
//   - collector.go: a collector that reads repository statistics on scrape
//
// Metrics are exposed at /metrics in Prometheus text format.
package metric
