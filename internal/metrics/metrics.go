// Package metrics holds the Prometheus instruments for the fleet core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HealthChecksTotal *prometheus.CounterVec
	HealthCheckRTT    prometheus.Histogram
	DevicesOnline     prometheus.Gauge
	ScanDuration      prometheus.Histogram
	DevicesDiscovered prometheus.Counter
	ActiveStreams     prometheus.Gauge
	FramesTotal       *prometheus.CounterVec
	Subscribers       prometheus.Gauge
	HTTPRequests      *prometheus.CounterVec
}

// New registers every instrument on the given registerer. Tests pass a fresh
// registry to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HealthChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ovfleet",
			Name:      "health_checks_total",
			Help:      "Health checks by outcome.",
		}, []string{"outcome"}),
		HealthCheckRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ovfleet",
			Name:      "health_check_rtt_seconds",
			Help:      "Round trip time of successful health checks.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 3, 5},
		}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ovfleet",
			Name:      "devices_online",
			Help:      "Devices currently reported online.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ovfleet",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of network scans.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		DevicesDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ovfleet",
			Name:      "devices_discovered_total",
			Help:      "Devices found by discovery runs.",
		}),
		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ovfleet",
			Name:      "active_streams",
			Help:      "Capture loops currently running.",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ovfleet",
			Name:      "frames_total",
			Help:      "Frames handled by the broadcaster.",
		}, []string{"result"}), // delivered, dropped
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ovfleet",
			Name:      "stream_subscribers",
			Help:      "Live frame subscribers.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ovfleet",
			Name:      "http_requests_total",
			Help:      "API requests by route and status.",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.HealthChecksTotal, m.HealthCheckRTT, m.DevicesOnline,
		m.ScanDuration, m.DevicesDiscovered,
		m.ActiveStreams, m.FramesTotal, m.Subscribers,
		m.HTTPRequests,
	)
	return m
}
