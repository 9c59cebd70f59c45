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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2a-mesh/fabric/config"
	"github.com/a2a-mesh/fabric/pkg/envelope"
)

func testTaskEnvelope(id string) *envelope.Envelope {
	return &envelope.Envelope{
		Meta: envelope.Meta{
			A2AVersion: envelope.Version,
			MessageID:  strings.Repeat(id, 32)[:32],
			TraceID:    "trace-" + id,
			TS:         time.Now().UTC().Format(time.RFC3339Nano),
			From:       envelope.AgentRef{ID: "agent-1", Type: "coordinator", Version: "1"},
			To:         []envelope.Recipient{{Type: "topic", Name: "wesign.default.tasks.review.request"}},
			Tenant:     "wesign",
			Project:    "default",
			Type:       envelope.TaskRequest,
		},
		Payload: map[string]interface{}{
			"task":   "review",
			"inputs": map[string]interface{}{},
		},
	}
}

func TestMemoryTransport_S2_PublishSubscribeAck(t *testing.T) {
	tr := NewMemoryTransport(config.TransportConfig{})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan *envelope.Envelope, 1)
	sub, err := tr.Subscribe(ctx, "wesign.default.tasks.review.request", func(ctx context.Context, env *envelope.Envelope, ack Ack) {
		received <- env
		ack.Ack()
	}, SubscribeOptions{ConsumerGroup: "reviewers", ConsumerName: "c1"})
	require.NoError(t, err)
	defer sub.Unsubscribe(context.Background())

	_, err = tr.Publish(ctx, "wesign.default.tasks.review.request", testTaskEnvelope("a"), PublishOptions{})
	require.NoError(t, err)

	select {
	case env := <-received:
		assert.Equal(t, "review", env.Payload["task"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryTransport_S2_NackRedelivers(t *testing.T) {
	tr := NewMemoryTransport(config.TransportConfig{})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	sub, err := tr.Subscribe(ctx, "wesign.default.tasks.review.request", func(ctx context.Context, env *envelope.Envelope, ack Ack) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		if n == 1 {
			ack.Nack()
			return
		}
		ack.Ack()
		close(done)
	}, SubscribeOptions{ConsumerGroup: "reviewers", ConsumerName: "c1"})
	require.NoError(t, err)
	defer sub.Unsubscribe(context.Background())

	_, err = tr.Publish(ctx, "wesign.default.tasks.review.request", testTaskEnvelope("b"), PublishOptions{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("message was not redelivered after nack")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts)
}

func TestMemoryTransport_S3_RejectGoesToDLQ(t *testing.T) {
	tr := NewMemoryTransport(config.TransportConfig{})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := tr.Subscribe(ctx, "wesign.default.tasks.review.request", func(ctx context.Context, env *envelope.Envelope, ack Ack) {
		ack.Reject("bad_payload")
	}, SubscribeOptions{ConsumerGroup: "reviewers", ConsumerName: "c1"})
	require.NoError(t, err)
	defer sub.Unsubscribe(context.Background())

	dlqReceived := make(chan *envelope.Envelope, 1)
	dlqSub, err := tr.Subscribe(ctx, "wesign.default.tasks.review.request:dlq", func(ctx context.Context, env *envelope.Envelope, ack Ack) {
		dlqReceived <- env
		ack.Ack()
	}, SubscribeOptions{ConsumerGroup: "dlq-drainer", ConsumerName: "d1"})
	require.NoError(t, err)
	defer dlqSub.Unsubscribe(context.Background())

	_, err = tr.Publish(ctx, "wesign.default.tasks.review.request", testTaskEnvelope("c"), PublishOptions{})
	require.NoError(t, err)

	select {
	case env := <-dlqReceived:
		assert.Equal(t, "dlq_reject", env.Payload["event"])
		assert.Equal(t, "bad_payload", env.Payload["reason"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for DLQ delivery")
	}
}

func TestMemoryTransport_S4_IdempotentDuplicateSkipsHandler(t *testing.T) {
	tr := NewMemoryTransport(config.TransportConfig{})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	seen := make(map[string]bool)
	var mu sync.Mutex
	invocations := 0
	acked := 0
	done := make(chan struct{}, 3)

	env := testTaskEnvelope("d")
	sub, err := tr.Subscribe(ctx, "wesign.default.tasks.review.request", func(ctx context.Context, env *envelope.Envelope, ack Ack) {
		mu.Lock()
		invocations++
		mu.Unlock()
		ack.Ack()
		done <- struct{}{}
	}, SubscribeOptions{
		ConsumerGroup: "reviewers",
		ConsumerName:  "c1",
		CheckIdempotency: func(key string) bool {
			mu.Lock()
			defer mu.Unlock()
			if seen[key] {
				acked++
				return true
			}
			seen[key] = true
			return false
		},
	})
	require.NoError(t, err)
	defer sub.Unsubscribe(context.Background())

	// Republish the same envelope (same message_id/trace_id/ts/from.id,
	// hence the same derived idempotency key) three times, mirroring a
	// sender retry after a delayed or lost ack.
	for i := 0; i < 3; i++ {
		_, err = tr.Publish(ctx, "wesign.default.tasks.review.request", env, PublishOptions{})
		require.NoError(t, err)
	}
	<-done

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, invocations, "handler must fire exactly once for three duplicates of one idempotency key")
	assert.Equal(t, 2, acked, "the two duplicate republishes must be skipped and acked without dispatch")
	mu.Unlock()
}

func TestMemoryTransport_ValidateOnPublishRejects(t *testing.T) {
	tr := NewMemoryTransport(config.TransportConfig{ValidateOnPublish: true})
	defer tr.Close()

	invalid := testTaskEnvelope("e")
	invalid.Meta.Type = "not_a_real_type"

	_, err := tr.Publish(context.Background(), "wesign.default.tasks.review.request", invalid, PublishOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestMemoryTransport_MaxRedeliveriesAutoRejectsToDLQ(t *testing.T) {
	tr := NewMemoryTransport(config.TransportConfig{MaxRedeliveries: 1})
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := tr.Subscribe(ctx, "wesign.default.tasks.review.request", func(ctx context.Context, env *envelope.Envelope, ack Ack) {
		ack.Nack()
	}, SubscribeOptions{ConsumerGroup: "reviewers", ConsumerName: "c1"})
	require.NoError(t, err)
	defer sub.Unsubscribe(context.Background())

	dlqReceived := make(chan *envelope.Envelope, 1)
	dlqSub, err := tr.Subscribe(ctx, "wesign.default.tasks.review.request:dlq", func(ctx context.Context, env *envelope.Envelope, ack Ack) {
		dlqReceived <- env
		ack.Ack()
	}, SubscribeOptions{ConsumerGroup: "dlq-drainer", ConsumerName: "d1"})
	require.NoError(t, err)
	defer dlqSub.Unsubscribe(context.Background())

	_, err = tr.Publish(ctx, "wesign.default.tasks.review.request", testTaskEnvelope("f"), PublishOptions{})
	require.NoError(t, err)

	select {
	case env := <-dlqReceived:
		assert.Equal(t, "max_redeliveries", env.Payload["reason"])
	case <-time.After(time.Second):
		t.Fatal("message was never auto-rejected to DLQ")
	}
}
