// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes Prometheus counters for the dispatch loop and
// the proof verifier. Metrics are observability only and never feed back
// into request handling.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zkverify",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Rollup requests processed, by request type and reported status.",
		},
		[]string{"type", "status"},
	)
	verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zkverify",
			Subsystem: "verifier",
			Name:      "verifications_total",
			Help:      "Receipt verifications, by outcome kind.",
		},
		[]string{"kind", "cached"},
	)
	verifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zkverify",
			Subsystem: "verifier",
			Name:      "verify_duration_seconds",
			Help:      "Receipt verification duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	notices = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zkverify",
			Subsystem: "dispatch",
			Name:      "notices_total",
			Help:      "Notice submissions, by result.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requests, verifications, verifyDuration, notices)
	})
}

func RecordRequest(requestType, status string) {
	RegisterMetrics()
	requests.WithLabelValues(requestType, status).Inc()
}

func RecordVerification(kind string, cached bool, duration time.Duration) {
	RegisterMetrics()
	cachedLabel := "false"
	if cached {
		cachedLabel = "true"
	}
	verifications.WithLabelValues(kind, cachedLabel).Inc()
	verifyDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordNotice(ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "error"
	}
	notices.WithLabelValues(result).Inc()
}

// Handler returns the scrape endpoint handler. Mounted by the daemon
// when a metrics address is configured.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
