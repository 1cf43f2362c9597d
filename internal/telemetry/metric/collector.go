package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/retrostate-go/internal/core/service"
)

// StatsSource reports repository statistics.
type StatsSource interface {
	Stats() service.RepositoryStats
}

// StoreCollector exports repository statistics, read on every scrape.
type StoreCollector struct {
	source StatsSource
	states *prometheus.Desc
	bytes  *prometheus.Desc
}

var _ prometheus.Collector = (*StoreCollector)(nil)

// NewStoreCollector creates a collector reading from source.
func NewStoreCollector(source StatsSource) *StoreCollector {
	return &StoreCollector{
		source: source,
		states: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "states_active"),
			"Number of stored, unexpired system states",
			nil, nil),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "state_bytes"),
			"Memory data bytes held by stored states",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.states
	ch <- c.bytes
}

// Collect implements prometheus.Collector.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.states, prometheus.GaugeValue, float64(stats.States))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(stats.Bytes))
}
