// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package dispatcher

import "github.com/prometheus/client_golang/prometheus"

var packetsReceived = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lora",
		Subsystem: "gateway",
		Name:      "packets_received_total",
		Help:      "Total number of packets received from the radio.",
	},
)

var handledCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lora",
		Subsystem: "gateway",
		Name:      "messages_handled_total",
		Help:      "Total number of packets and broker messages handled.",
	}, []string{"result"},
)

var handlerFaults = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lora",
		Subsystem: "gateway",
		Name:      "handler_faults_total",
		Help:      "Total number of panics recovered from the handler.",
	},
)

var publishFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lora",
		Subsystem: "gateway",
		Name:      "publish_failures_total",
		Help:      "Total number of messages that could not be published to the broker.",
	},
)

var transmitFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "lora",
		Subsystem: "gateway",
		Name:      "transmit_failures_total",
		Help:      "Total number of transmissions that could not be sent to the radio.",
	},
)

// Results of handling an event
const (
	resultHandled   = "handled"
	resultFiltered  = "filtered"
	resultError     = "error"
	resultUnhandled = "unhandled"
	resultFault     = "fault"
)

func registerHandled(result string) {
	handledCounter.WithLabelValues(result).Inc()
}

func init() {
	prometheus.MustRegister(packetsReceived)
	prometheus.MustRegister(handledCounter)
	prometheus.MustRegister(handlerFaults)
	prometheus.MustRegister(publishFailures)
	prometheus.MustRegister(transmitFailures)
}
