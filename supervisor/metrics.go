// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package supervisor

import "github.com/prometheus/client_golang/prometheus"

var sessionState = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "lora",
		Subsystem: "gateway",
		Name:      "session_state",
		Help:      "State of the broker session (0=Disconnected, 1=Connecting, 2=Connected, 3=ReconnectPending).",
	},
)

var reconnectAttempts = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lora",
		Subsystem: "gateway",
		Name:      "reconnect_attempts_total",
		Help:      "Total number of broker reconnect attempts.",
	},
)

func init() {
	prometheus.MustRegister(sessionState)
	prometheus.MustRegister(reconnectAttempts)
}
