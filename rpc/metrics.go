package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks outbound node RPC traffic.
type Metrics struct {
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewMetrics registers RPC client collectors on the supplied registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrowscan",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total JSON-RPC requests issued to the node.",
		}, []string{"method", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "escrowscan",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Duration of JSON-RPC requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.durations)
	}
	return m
}

func (m *Metrics) observe(method string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.durations.WithLabelValues(method).Observe(elapsed.Seconds())
}
