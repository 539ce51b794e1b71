// SPDX-License-Identifier: MIT

// Package metrics exposes the car process's Prometheus metrics and a
// small debug HTTP surface (/metrics, /healthz) carried over from the
// teacher's observability stack even though dispatch and door logic
// carry none of their own HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "car_state_transitions_total",
		Help: "Total door/motion FSM transitions by car and destination state.",
	}, []string{"car", "to"})

	reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "car_controller_reconnects_total",
		Help: "Total number of times the network session re-entered Disconnected.",
	}, []string{"car", "reason"})

	controlBlockVersion = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "car_control_block_version",
		Help: "Current control block version counter, for staleness checks.",
	}, []string{"car"})
)

// RecordTransition increments the transition counter for a car entering
// state `to`.
func RecordTransition(car, to string) {
	stateTransitions.WithLabelValues(car, to).Inc()
}

// RecordReconnect increments the reconnect counter for a car, tagged
// with why the session dropped.
func RecordReconnect(car, reason string) {
	reconnects.WithLabelValues(car, reason).Inc()
}

// SetControlBlockVersion publishes the control block's current version
// counter for a car.
func SetControlBlockVersion(car string, version int64) {
	controlBlockVersion.WithLabelValues(car).Set(float64(version))
}
