// Package metrics defines the Prometheus collectors for the hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub metrics
var (
	// ActiveConnections tracks currently registered connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_connections",
			Help: "Number of currently registered connections",
		},
	)

	// ActiveRooms tracks rooms with at least one member.
	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_rooms",
			Help: "Number of rooms with at least one member",
		},
	)

	// EventsRoutedTotal counts accepted inbound events by kind.
	EventsRoutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_routed_total",
			Help: "Accepted inbound events by kind",
		},
		[]string{"kind"},
	)

	// EventsRejectedTotal counts rejected inbound events by reason.
	EventsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_rejected_total",
			Help: "Rejected inbound events by reason",
		},
		[]string{"reason"},
	)

	// DeliveriesTotal counts frames enqueued to recipients by frame type.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_deliveries_total",
			Help: "Frames enqueued to recipient connections by frame type",
		},
		[]string{"type"},
	)

	// FanoutDuration tracks how long one fanout takes.
	FanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_fanout_duration_seconds",
			Help:    "Duration of a single fanout operation in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
	)

	// CommandChannelDepth tracks the hub command channel depth.
	CommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current hub command channel depth",
		},
	)

	// HubPanicsTotal tracks hub panic recoveries.
	HubPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_panics_total",
			Help: "Total hub panic recoveries",
		},
	)

	// HubStopTimeoutsTotal tracks hub stops that exceeded the timeout.
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_stop_timeouts_total",
			Help: "Hub stops that exceeded the shutdown timeout",
		},
	)
)

// WebSocket transport metrics
var (
	// MessagesDroppedTotal counts frames dropped under backpressure by policy.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Outbound frames dropped under backpressure by policy applied",
		},
		[]string{"policy"},
	)

	// MessageSendDuration tracks websocket write latency.
	MessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// PingFailuresTotal counts keepalive ping failures.
	PingFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total keepalive ping failures",
		},
	)

	// ConnectionsRejectedTotal counts handshakes rejected before upgrade.
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Handshakes rejected before upgrade by reason",
		},
		[]string{"reason"},
	)
)

// Ledger metrics
var (
	// LedgerRequestsTotal counts hype ledger requests by status.
	LedgerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_requests_total",
			Help: "Hype ledger requests by status",
		},
		[]string{"status"},
	)

	// LedgerRequestDuration tracks hype ledger request latency.
	LedgerRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_request_duration_seconds",
			Help:    "Hype ledger request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
	)
)
