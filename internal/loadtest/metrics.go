// Created by WINK Streaming (https://www.wink.co)
package loadtest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors a load test run exports.
// Each Metrics owns its own registry rather than the global default,
// so multiple load tests can run in one process without colliding
// metric names. Runners handed the same Metrics share its collectors.
type Metrics struct {
	registry          *prometheus.Registry
	PacketsReceived   prometheus.Counter
	BytesReceived     prometheus.Counter
	ConnectFailures   prometheus.Counter
	BadClientsSpawned prometheus.Counter
	ConnectLatencyMs  prometheus.Histogram
}

// NewMetrics builds a Metrics bound to a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_loadtest_rtp_packets_received_total",
			Help: "Total number of RTP datagrams received across all simulated clients.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_loadtest_rtp_bytes_received_total",
			Help: "Total number of RTP payload bytes received across all simulated clients.",
		}),
		ConnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_loadtest_connect_failures_total",
			Help: "Total number of RTSP connection attempts that failed.",
		}),
		BadClientsSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mjpeg_loadtest_bad_clients_spawned_total",
			Help: "Total number of misbehaving chaos clients spawned.",
		}),
		ConnectLatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mjpeg_loadtest_connect_latency_ms",
			Help:    "RTSP SETUP+PLAY handshake latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}

	reg.MustRegister(m.PacketsReceived, m.BytesReceived, m.ConnectFailures, m.BadClientsSpawned, m.ConnectLatencyMs)
	return m
}

// Handler returns an HTTP handler serving this Metrics' registry in
// the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
