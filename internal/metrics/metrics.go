// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksReceived counts ticks applied to the store, per connection.
	TicksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickrelay_ticks_received_total",
		Help: "Ticks received from the broker, by connection id.",
	}, []string{"conn"})

	// SnapshotSize tracks the number of instruments observed so far.
	SnapshotSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickrelay_snapshot_instruments",
		Help: "Instruments present in the tick snapshot.",
	})

	// Dials counts upstream connection attempts, by outcome.
	Dials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickrelay_upstream_dials_total",
		Help: "Upstream dial attempts, by outcome (ok, error).",
	}, []string{"outcome"})

	// ConnectedUpstreams tracks live upstream connections.
	ConnectedUpstreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickrelay_upstream_connected",
		Help: "Currently live upstream connections.",
	})

	// RotationCycles counts completed rotation cycles, per connection.
	RotationCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickrelay_rotation_cycles_total",
		Help: "Completed rotation cycles, by connection id.",
	}, []string{"conn"})

	// CommandErrors counts failed subscribe/unsubscribe/set-mode commands.
	CommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickrelay_command_errors_total",
		Help: "Failed upstream commands, by command.",
	}, []string{"command"})

	// EgressClients tracks connected realtime push clients.
	EgressClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickrelay_egress_clients",
		Help: "Connected realtime push clients.",
	})
)

// ConnLabel formats a connection id for use as a label value.
func ConnLabel(id int) string {
	return strconv.Itoa(id)
}
