// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnvelopesValidated tracks envelope validation outcomes by message type.
	EnvelopesValidated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "envelope",
			Name:      "validated_total",
			Help:      "Total number of envelopes validated",
		},
		[]string{"type", "status"}, // status: accepted, rejected
	)

	// MessagesPublished tracks accepted publishes per topic.
	MessagesPublished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "published_total",
			Help:      "Total number of messages published per topic",
		},
		[]string{"topic"},
	)

	// MessagesDelivered tracks deliveries to a consumer group per topic.
	MessagesDelivered = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "delivered_total",
			Help:      "Total number of messages delivered to a consumer group",
		},
		[]string{"topic", "group"},
	)

	// MessagesAcked tracks acknowledged deliveries per topic/group.
	MessagesAcked = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "acked_total",
			Help:      "Total number of messages acknowledged",
		},
		[]string{"topic", "group"},
	)

	// MessagesNacked tracks negatively acknowledged (redelivered) deliveries.
	MessagesNacked = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "nacked_total",
			Help:      "Total number of messages nacked for redelivery",
		},
		[]string{"topic", "group"},
	)

	// MessagesRejected tracks deliveries routed to a dead-letter topic.
	MessagesRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "rejected_total",
			Help:      "Total number of messages rejected to the dead-letter topic",
		},
		[]string{"topic", "group"},
	)

	// DLQDepth reports the current size of each topic's dead-letter queue.
	DLQDepth = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "dlq_depth",
			Help:      "Current number of messages sitting in a topic's dead-letter queue",
		},
		[]string{"topic"},
	)

	// ConsumerGroupLag reports how many undelivered messages remain for a
	// consumer group on a topic.
	ConsumerGroupLag = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "consumer_group_lag",
			Help:      "Number of messages not yet delivered to a consumer group",
		},
		[]string{"topic", "group"},
	)

	// RegistryHeartbeats tracks heartbeat publishes per agent status outcome.
	RegistryHeartbeats = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "heartbeats_total",
			Help:      "Total number of agent heartbeats processed",
		},
		[]string{"status"}, // accepted, expired
	)

	// RegistrySweeps counts lease-expiry sweep runs; RegistryExpired counts
	// the agents they marked expired.
	RegistrySweeps = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "sweeps_total",
			Help:      "Total number of lease-expiry sweeps run",
		},
	)

	// RegistryExpired tracks agents marked expired by the sweeper.
	RegistryExpired = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "expired_total",
			Help:      "Total number of agents marked expired by the lease sweeper",
		},
	)

	// TokenVerifications tracks bearer/capability token verification outcomes.
	TokenVerifications = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "token_verifications_total",
			Help:      "Total number of bearer and capability token verifications",
		},
		[]string{"kind", "status"}, // kind: bearer, capability; status: valid, invalid, expired
	)

	// SignatureVerifications tracks HMAC envelope signature verification outcomes.
	SignatureVerifications = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "signature_verifications_total",
			Help:      "Total number of envelope HMAC signature verifications",
		},
		[]string{"status"}, // valid, invalid
	)

	// ReplaysRejected tracks envelopes rejected for future or stale timestamps.
	ReplaysRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "replays_rejected_total",
			Help:      "Total number of envelopes rejected by replay protection",
		},
		[]string{"reason"}, // future_timestamp, stale_timestamp
	)

	// PolicyDecisions tracks pre-send and post-receive policy gate outcomes.
	PolicyDecisions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "decisions_total",
			Help:      "Total number of policy gate decisions",
		},
		[]string{"stage", "decision"}, // stage: pre_send, post_receive; decision: allow, deny
	)

	// EnvelopeProcessingDuration tracks end-to-end validation+publish latency.
	EnvelopeProcessingDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "envelope",
			Name:      "processing_duration_seconds",
			Help:      "Envelope validation and dispatch duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	// HealthCheckStatus reports the last outcome (1 healthy, 0 unhealthy)
	// of each named health check the process registers.
	HealthCheckStatus = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_status",
			Help:      "Last health check outcome per check name (1 healthy, 0 unhealthy)",
		},
		[]string{"check"},
	)
)
