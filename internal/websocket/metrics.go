package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	UsersOnline       prometheus.Gauge
	FramesReceived    *prometheus.CounterVec
	FramesRejected    *prometheus.CounterVec
	MessagesStored    prometheus.Counter
	PersistFailures   prometheus.Counter
	ResolveFailures   prometheus.Counter
	Deliveries        *prometheus.CounterVec
	ConnectionsDrops  prometheus.Counter
	FanoutDuration    prometheus.Histogram
}

// NewMetrics registers the collectors on reg. A nil reg keeps them
// unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay", Name: "connections_active",
			Help: "Open WebSocket connections.",
		}),
		UsersOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay", Name: "users_online",
			Help: "Identities with at least one open connection.",
		}),
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay", Name: "frames_received_total",
			Help: "Inbound frames by type.",
		}, []string{"type"}),
		FramesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay", Name: "frames_rejected_total",
			Help: "Inbound frames answered with an error frame, by code.",
		}, []string{"code"}),
		MessagesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "messages_stored_total",
			Help: "Chat messages persisted.",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "persist_failures_total",
			Help: "Chat messages dropped because persistence failed.",
		}),
		ResolveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "resolve_failures_total",
			Help: "Group membership lookups that failed.",
		}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay", Name: "deliveries_total",
			Help: "Per connection deliveries by result.",
		}, []string{"result"}),
		ConnectionsDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: "relay", Name: "connection_drops_total",
			Help: "Connections dropped after a failed send.",
		}),
		FanoutDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay", Name: "fanout_duration_seconds",
			Help:    "Time spent fanning one frame out to local connections.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}
