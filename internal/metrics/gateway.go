// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayEvents counts dispatched gateway events by type.
	GatewayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_gateway_events_total",
		Help: "Gateway dispatch events by event type",
	}, []string{"type"})

	// GatewayReconnects counts reconnect attempts by reason.
	GatewayReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_gateway_reconnects_total",
		Help: "Gateway reconnects by reason (resume, identify)",
	}, []string{"reason"})

	// GatewayHeartbeatLatency tracks ack round-trip time.
	GatewayHeartbeatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "concord_gateway_heartbeat_latency_seconds",
		Help:    "Heartbeat to HEARTBEAT_ACK round-trip time",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// GatewayConnected gauges whether a session is currently up.
	GatewayConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concord_gateway_connected",
		Help: "1 while a gateway session is established",
	})

	// VoicePackets counts encrypted RTP packets sent.
	VoicePackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_voice_packets_total",
		Help: "Encrypted voice packets sent by encryption mode",
	}, []string{"mode"})
)
