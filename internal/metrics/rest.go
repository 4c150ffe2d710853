// SPDX-License-Identifier: MIT

// Package metrics exposes the library's Prometheus collectors. All
// collectors register on the default registry so a binary only has to
// mount promhttp.Handler.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts REST requests by route key and final status.
	RequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_rest_requests_total",
		Help: "Total REST requests by route key and HTTP status",
	}, []string{"route", "status"})

	// RequestDuration tracks wall time of REST requests including
	// rate-limit waits and retries.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "concord_rest_request_duration_seconds",
		Help:    "REST request duration including waits and retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"route"})

	// RatelimitSleep counts pre-emptive and 429-driven sleeps.
	RatelimitSleep = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_rest_ratelimit_sleeps_total",
		Help: "Rate limit sleeps by kind (preemptive, response, global)",
	}, []string{"kind"})

	// BucketCount gauges the number of live rate-limit buckets.
	BucketCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concord_rest_ratelimit_buckets",
		Help: "Live rate limit buckets being tracked",
	})
)

// ObserveRequest records one completed REST request.
func ObserveRequest(routeKey string, status int, d time.Duration) {
	RequestTotal.WithLabelValues(routeKey, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(routeKey).Observe(d.Seconds())
}

// IncRatelimitSleep records a rate limit sleep of the given kind.
func IncRatelimitSleep(kind string) {
	RatelimitSleep.WithLabelValues(kind).Inc()
}
