// Copyright 2024 Bolt Server Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics declares the Prometheus collectors the bolt server
// exposes. Grounded on dm/dumpling.go's NewCounterVec wiring pattern,
// narrowed to the connections/dispatch/cycle surface this server has.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConnectionsAccepted counts handshakes that completed successfully.
	ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bolt",
		Subsystem: "server",
		Name:      "connections_accepted_total",
		Help:      "Total number of client connections that completed the topic handshake.",
	})

	// HandshakeFailures counts connections dropped during handshake.
	HandshakeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bolt",
		Subsystem: "server",
		Name:      "handshake_failures_total",
		Help:      "Total number of connections closed due to a malformed handshake frame.",
	})

	// FramesReceived counts successfully parsed inbound frames.
	FramesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bolt",
		Subsystem: "server",
		Name:      "frames_received_total",
		Help:      "Total number of inbound frames forwarded to the dispatcher.",
	})

	// MessagesDispatched counts successful sendMessage calls.
	MessagesDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bolt",
		Subsystem: "dispatcher",
		Name:      "messages_dispatched_total",
		Help:      "Total number of messages successfully dispatched, by message name.",
	}, []string{"name"})

	// DispatchFailures counts failed sendMessage calls.
	DispatchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bolt",
		Subsystem: "dispatcher",
		Name:      "dispatch_failures_total",
		Help:      "Total number of sendMessage calls that failed, by topic.",
	}, []string{"topic"})

	// CycleDuration observes how long one cycleTasks pass took.
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bolt",
		Subsystem: "engine",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one cycleTasks scan over the task queue.",
		Buckets:   prometheus.DefBuckets,
	})

	// TasksDispatched counts tasks that transitioned to Running.
	TasksDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bolt",
		Subsystem: "engine",
		Name:      "tasks_dispatched_total",
		Help:      "Total number of tasks successfully transitioned to Running by cycleTasks.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsAccepted,
		HandshakeFailures,
		FramesReceived,
		MessagesDispatched,
		DispatchFailures,
		CycleDuration,
		TasksDispatched,
	)
}
