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

package transport

import (
	"context"

	"github.com/a2a-mesh/fabric/pkg/envelope"
)

// Ack is handed to a subscription handler alongside each delivered
// envelope. Exactly one of Ack/Nack/Reject must be called per
// delivery (§4.2.1/§4.2.5).
type Ack interface {
	// Ack removes the message from the consumer group's pending set.
	Ack()
	// Nack returns the message for later redelivery without touching
	// the DLQ counter.
	Nack()
	// Reject appends the message to the topic's DLQ with reason, then
	// removes it from the pending set.
	Reject(reason string)
}

// Handler processes one delivered envelope. It must call exactly one
// method on ack before returning; otherwise the message stays pending
// until the subscription stops (context done, Unsubscribe, or Close),
// and is then treated as if Nack'd.
type Handler func(ctx context.Context, env *envelope.Envelope, ack Ack)

// PublishOptions carries optional publish-time hints.
type PublishOptions struct {
	// PartitionKey hints at producer-side partitioning. The in-memory
	// backend ignores it; it exists for parity with brokers that
	// shard topics by key.
	PartitionKey string
}

// SubscribeOptions configures a subscription (§4.2.1/§4.2.3).
type SubscribeOptions struct {
	ConsumerGroup string
	ConsumerName  string
	// MaxPending bounds delivered-but-not-ack'd messages for this
	// consumer (ConsumerName within ConsumerGroup) before backpressure
	// pauses new claims. Zero means DefaultMaxPending.
	MaxPending int
	// CheckIdempotency, if set, is consulted before Handler is
	// invoked; a true return acks silently without dispatch (§4.2.2).
	CheckIdempotency func(key string) bool
}

const DefaultMaxPending = 64

// Subscription is returned by Subscribe and controls its lifetime.
type Subscription interface {
	// Unsubscribe drains in-flight handler invocations, then releases
	// the consumer name. It blocks until drained or ctx is done.
	Unsubscribe(ctx context.Context) error
}

// Transport is the durable streaming transport contract (§4.2).
type Transport interface {
	// Publish durably appends env to topic and returns its message id.
	// On any failure no partial append is observable.
	Publish(ctx context.Context, topic string, env *envelope.Envelope, opts PublishOptions) (string, error)
	// Subscribe creates (idempotently) consumerGroup on topic and
	// begins dispatching envelopes to handler.
	Subscribe(ctx context.Context, topic string, handler Handler, opts SubscribeOptions) (Subscription, error)
	// Close releases all resources; outstanding subscriptions are
	// stopped without draining.
	Close() error
}
