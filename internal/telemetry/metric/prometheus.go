package metric

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/retrostate-go/internal/core/service"
)

// Namespace prefixes every RetroState metric.
const Namespace = "retrostate"

// Download variants reported by StateDownloads.
const (
	VariantFull   = "full"
	VariantHeader = "header"
)

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// State metrics
	StatesUploaded prometheus.Counter
	StatesRejected *prometheus.CounterVec
	StatesExpired  prometheus.Counter
	StateDownloads *prometheus.CounterVec
	RangeReads     prometheus.Counter
	RangeReadBytes prometheus.Histogram
	UploadBytes    prometheus.Histogram

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var _ service.Observer = (*Registry)(nil)

// NewRegistry creates a registry with the Go runtime and process
// collectors plus every application metric.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		StatesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "states_uploaded_total",
			Help:      "Total system states accepted for storage",
		}),
		StatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "states_rejected_total",
			Help:      "Total uploads rejected, by reason",
		}, []string{"reason"}),
		StatesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "states_expired_total",
			Help:      "Total states removed after their TTL elapsed",
		}),
		StateDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_downloads_total",
			Help:      "Total state downloads, by variant",
		}, []string{"variant"}),
		RangeReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "range_reads_total",
			Help:      "Total memory range reads",
		}),
		RangeReadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "range_read_bytes",
			Help:      "Length of memory range reads in bytes",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
		}),
		UploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "upload_bytes",
			Help:      "Memory data bytes per accepted upload",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.StatesUploaded,
		r.StatesRejected,
		r.StatesExpired,
		r.StateDownloads,
		r.RangeReads,
		r.RangeReadBytes,
		r.UploadBytes,
		r.RequestsTotal,
		r.RequestDuration,
	)
	return r
}

// Registerer returns the underlying registerer for additional collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// ObserveRequest records one served HTTP request.
func (r *Registry) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	r.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// StateUploaded implements service.Observer.
func (r *Registry) StateUploaded(bytes int64) {
	r.StatesUploaded.Inc()
	r.UploadBytes.Observe(float64(bytes))
}

// StateRejected implements service.Observer.
func (r *Registry) StateRejected(reason string) {
	r.StatesRejected.WithLabelValues(reason).Inc()
}

// StateDownloaded implements service.Observer.
func (r *Registry) StateDownloaded(excludeMemoryData bool) {
	variant := VariantFull
	if excludeMemoryData {
		variant = VariantHeader
	}
	r.StateDownloads.WithLabelValues(variant).Inc()
}

// RangeRead implements service.Observer.
func (r *Registry) RangeRead(length int64) {
	r.RangeReads.Inc()
	r.RangeReadBytes.Observe(float64(length))
}

// StatesExpired implements service.Observer.
func (r *Registry) StatesExpired(n int) {
	r.StatesExpired.Add(float64(n))
}
