// Package metrics provides Prometheus metrics for the tradedesk realtime
// client. It covers connection lifecycle, message throughput, heartbeat, and
// error counters exposed via the metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the realtime client.
type Metrics struct {
	Connected        prometheus.Gauge       // 1 while the websocket is connected
	Subscriptions    prometheus.Gauge       // Channels currently in the subscription set
	Reconnects       prometheus.Counter     // Scheduled reconnection attempts
	MessagesReceived *prometheus.CounterVec // Inbound frames by message type
	HeartbeatsSent   prometheus.Counter     // Outbound ping directives
	ParseErrors      prometheus.Counter     // Malformed inbound frames dropped
	ErrorsTotal      prometheus.Counter     // Errors surfaced to the caller
	EventsStored     prometheus.Counter     // Events persisted to the local journal
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, keeping tests
// isolated from the global Prometheus state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connected",
			Help: "Whether the realtime websocket is currently connected",
		}),
		Subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_subscriptions",
			Help: "Number of channels in the subscription set",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Total number of scheduled websocket reconnection attempts",
		}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_messages_received_total",
			Help: "Total number of inbound websocket frames by message type",
		}, []string{"type"}),
		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_heartbeats_sent_total",
			Help: "Total number of heartbeat pings sent",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ws_parse_errors_total",
			Help: "Total number of malformed inbound frames dropped",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors reported to the caller",
		}),
		EventsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "journal_events_stored_total",
			Help: "Total number of events persisted to the local journal",
		}),
	}
}
