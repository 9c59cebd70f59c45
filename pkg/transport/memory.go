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

// Package transport implements the durable streaming transport: named
// topics with consumer-group semantics, explicit ack/nack/reject, a
// dead-letter queue, and backpressure. MemoryTransport is an
// in-process, goroutine-safe engine suitable for single-binary
// deployments and tests; it keeps every topic's log in memory for the
// lifetime of the process.
package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/a2a-mesh/fabric/config"
	"github.com/a2a-mesh/fabric/internal/logger"
	"github.com/a2a-mesh/fabric/internal/metrics"
	"github.com/a2a-mesh/fabric/pkg/envelope"
	"github.com/a2a-mesh/fabric/pkg/security"
)

func dlqTopicName(topic string) string {
	return topic + ":dlq"
}

func newMessageID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

type record struct {
	id  string
	seq uint64
	env *envelope.Envelope
}

type pendingDelivery struct {
	record      *record
	consumer    string
	deliveredAt time.Time
}

// group is a named consumer group's cursor and in-flight state. All
// fields are guarded by the owning topicState's mutex.
type group struct {
	name           string
	cursor         int
	redeliverQueue []string
	pending        map[string]*pendingDelivery
	deliveryCount  map[string]int
}

func newGroup(name string) *group {
	return &group{
		name:          name,
		pending:       make(map[string]*pendingDelivery),
		deliveryCount: make(map[string]int),
	}
}

// topicState holds one topic's durable log plus every consumer
// group's view into it. One mutex covers the log and all groups;
// topics are independent of each other, so this does not serialize
// unrelated traffic.
type topicState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	name    string
	log     []*record
	byID    map[string]*record
	groups  map[string]*group
	nextSeq uint64
	closed  bool
}

func newTopicState(name string) *topicState {
	ts := &topicState{
		name:   name,
		byID:   make(map[string]*record),
		groups: make(map[string]*group),
	}
	ts.cond = sync.NewCond(&ts.mu)
	return ts
}

func (ts *topicState) totalPending() int {
	n := 0
	for _, g := range ts.groups {
		n += len(g.pending)
	}
	return n
}

// MemoryTransport is the in-process Transport implementation.
type MemoryTransport struct {
	cfg config.TransportConfig
	log logger.Logger

	mu     sync.Mutex
	topics map[string]*topicState
	closed bool
}

// NewMemoryTransport builds a transport governed by cfg's backpressure
// and redelivery limits.
func NewMemoryTransport(cfg config.TransportConfig) *MemoryTransport {
	return &MemoryTransport{
		cfg:    cfg,
		log:    logger.GetDefaultLogger(),
		topics: make(map[string]*topicState),
	}
}

func (t *MemoryTransport) topicFor(name string) (*topicState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportUnavailable
	}
	ts, ok := t.topics[name]
	if !ok {
		ts = newTopicState(name)
		t.topics[name] = ts
	}
	return ts, nil
}

// Publish implements Transport.
func (t *MemoryTransport) Publish(ctx context.Context, topic string, env *envelope.Envelope, opts PublishOptions) (string, error) {
	start := time.Now()
	defer func() { metrics.EnvelopeProcessingDuration.Observe(time.Since(start).Seconds()) }()

	if t.cfg.ValidateOnPublish {
		if res := envelope.Validate(env, envelope.ValidateOptions{}); !res.Valid {
			return "", fmt.Errorf("%w: %v", ErrValidationFailed, res.Errors)
		}
	}

	ts, err := t.topicFor(topic)
	if err != nil {
		return "", err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return "", ErrTransportUnavailable
	}

	id := env.Meta.MessageID
	if id == "" {
		id = newMessageID()
	}
	rec := &record{id: id, seq: ts.nextSeq, env: env}
	ts.nextSeq++
	ts.log = append(ts.log, rec)
	ts.byID[rec.id] = rec
	ts.cond.Broadcast()

	metrics.MessagesPublished.WithLabelValues(topic).Inc()
	return rec.id, nil
}

// publishDLQ appends a dead-letter record for env to <topic>:dlq.
func (t *MemoryTransport) publishDLQ(ctx context.Context, topic string, env *envelope.Envelope, reason, rejectingConsumer string) error {
	dlqEnv := &envelope.Envelope{
		Meta: envelope.Meta{
			A2AVersion: envelope.Version,
			MessageID:  newMessageID(),
			TraceID:    env.Meta.TraceID,
			TS:         time.Now().UTC().Format(time.RFC3339Nano),
			From:       envelope.AgentRef{ID: "transport", Type: "system", Version: envelope.Version},
			To:         []envelope.Recipient{{Type: "topic", Name: dlqTopicName(topic)}},
			Tenant:     env.Meta.Tenant,
			Project:    env.Meta.Project,
			Type:       envelope.SystemEvent,
		},
		Payload: map[string]interface{}{
			"event":              "dlq_reject",
			"original_envelope":  env,
			"reason":             reason,
			"rejecting_consumer": rejectingConsumer,
			"rejected_at":        time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
	_, err := t.Publish(ctx, dlqTopicName(topic), dlqEnv, PublishOptions{})
	if err == nil {
		metrics.DLQDepth.WithLabelValues(topic).Inc()
	}
	return err
}

// recordLag sets the consumer-group-lag gauge to the number of
// messages not yet claimed by group on ts. Callers must hold ts.mu.
func recordLag(ts *topicState, g *group, topic string) {
	lag := len(ts.log) - g.cursor
	if lag < 0 {
		lag = 0
	}
	metrics.ConsumerGroupLag.WithLabelValues(topic, g.name).Set(float64(lag))
}

// Subscribe implements Transport.
func (t *MemoryTransport) Subscribe(ctx context.Context, topic string, handler Handler, opts SubscribeOptions) (Subscription, error) {
	ts, err := t.topicFor(topic)
	if err != nil {
		return nil, err
	}

	maxPending := opts.MaxPending
	if maxPending <= 0 {
		maxPending = t.cfg.MaxPendingPerConsumer
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	lowWater := maxPending / 2
	if lowWater < 1 {
		lowWater = 1
	}

	ts.mu.Lock()
	g, ok := ts.groups[opts.ConsumerGroup]
	if !ok {
		// A newly created group replays the full durable log from the
		// start, consistent with at-least-once delivery for late
		// joiners rather than a latest-offset default.
		g = newGroup(opts.ConsumerGroup)
		ts.groups[opts.ConsumerGroup] = g
	}
	ts.mu.Unlock()

	sub := &subscription{
		transport:        t,
		topic:            topic,
		ts:               ts,
		group:            g,
		consumerName:     opts.ConsumerName,
		maxPending:       maxPending,
		lowWater:         lowWater,
		handler:          handler,
		checkIdempotency: opts.CheckIdempotency,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run(ctx)

	return sub, nil
}

// Close releases all topics. Outstanding subscriptions see the topic
// closed on their next claim attempt and stop without draining
// in-flight handlers; later Publish and Subscribe calls return
// ErrTransportUnavailable.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	for _, ts := range t.topics {
		ts.mu.Lock()
		ts.closed = true
		ts.cond.Broadcast()
		ts.mu.Unlock()
	}
	t.mu.Unlock()
	return nil
}

// subscription is the fetch -> dispatch -> track-pending task behind
// one Subscribe call.
type subscription struct {
	transport        *MemoryTransport
	topic            string
	ts               *topicState
	group            *group
	consumerName     string
	maxPending       int
	lowWater         int
	handler          Handler
	checkIdempotency func(string) bool

	paused bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	wg       sync.WaitGroup
}

func (s *subscription) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.doneCh)
	defer func() {
		s.ts.mu.Lock()
		var unacked []string
		for id, p := range s.group.pending {
			if p.consumer == s.consumerName {
				unacked = append(unacked, id)
			}
		}
		s.ts.mu.Unlock()
		for _, id := range unacked {
			s.nackMessage(id)
		}
	}()

	for {
		rec, ok := s.claim(ctx)
		if !ok {
			return
		}
		s.dispatch(ctx, rec)
	}
}

// claim blocks until a message is available for this consumer, the
// subscription is stopped, or ctx is cancelled.
func (s *subscription) claim(ctx context.Context) (*record, bool) {
	ts := s.ts
	g := s.group

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for {
		select {
		case <-s.stopCh:
			return nil, false
		case <-ctx.Done():
			return nil, false
		default:
		}
		if ts.closed {
			return nil, false
		}

		pendingCount := 0
		for _, p := range g.pending {
			if p.consumer == s.consumerName {
				pendingCount++
			}
		}
		totalPending := ts.totalPending()

		highWater := s.transport.cfg.HighWaterMark
		lowWaterTopic := s.transport.cfg.LowWaterMark
		if lowWaterTopic <= 0 {
			lowWaterTopic = highWater / 2
		}

		if s.paused {
			if pendingCount <= s.lowWater && (highWater <= 0 || totalPending <= lowWaterTopic) {
				s.paused = false
			} else {
				ts.cond.Wait()
				continue
			}
		}
		if pendingCount >= s.maxPending || (highWater > 0 && totalPending >= highWater) {
			s.paused = true
			ts.cond.Wait()
			continue
		}

		if len(g.redeliverQueue) > 0 {
			id := g.redeliverQueue[0]
			g.redeliverQueue = g.redeliverQueue[1:]
			rec, exists := ts.byID[id]
			if !exists {
				continue
			}
			g.pending[id] = &pendingDelivery{record: rec, consumer: s.consumerName, deliveredAt: time.Now()}
			recordLag(ts, g, s.topic)
			return rec, true
		}
		if g.cursor < len(ts.log) {
			rec := ts.log[g.cursor]
			g.cursor++
			g.pending[rec.id] = &pendingDelivery{record: rec, consumer: s.consumerName, deliveredAt: time.Now()}
			recordLag(ts, g, s.topic)
			return rec, true
		}

		ts.cond.Wait()
	}
}

func (s *subscription) dispatch(ctx context.Context, rec *record) {
	metrics.MessagesDelivered.WithLabelValues(s.topic, s.group.name).Inc()

	if s.transport.cfg.ValidateOnSubscribe {
		if res := envelope.Validate(rec.env, envelope.ValidateOptions{}); !res.Valid {
			s.rejectMessage(ctx, rec.id, "schema_invalid")
			return
		}
	}

	key := security.DeriveIdempotencyKey(rec.env)
	if s.checkIdempotency != nil && s.checkIdempotency(key) {
		s.transport.log.Debug("duplicate envelope acked without dispatch",
			logger.Error(logger.NewFabricError(logger.ErrCodeDuplicate, "idempotency key already seen", nil)),
			logger.String("topic", s.topic), logger.String("idempotency_key", key))
		s.ackMessage(rec.id)
		return
	}

	s.handler(ctx, rec.env, &ackHandle{sub: s, ctx: ctx, id: rec.id})
}

func (s *subscription) ackMessage(id string) {
	ts := s.ts
	ts.mu.Lock()
	delete(s.group.pending, id)
	delete(s.group.deliveryCount, id)
	ts.cond.Broadcast()
	ts.mu.Unlock()
	metrics.MessagesAcked.WithLabelValues(s.topic, s.group.name).Inc()

	if orig, isDLQ := strings.CutSuffix(s.topic, ":dlq"); isDLQ {
		metrics.DLQDepth.WithLabelValues(orig).Dec()
	}
}

func (s *subscription) nackMessage(id string) {
	ts := s.ts
	ts.mu.Lock()
	delete(s.group.pending, id)
	s.group.deliveryCount[id]++
	count := s.group.deliveryCount[id]
	maxRedeliveries := s.transport.cfg.MaxRedeliveries
	rec := ts.byID[id]
	ts.cond.Broadcast()

	if maxRedeliveries > 0 && count > maxRedeliveries {
		delete(s.group.deliveryCount, id)
		ts.mu.Unlock()
		metrics.MessagesRejected.WithLabelValues(s.topic, s.group.name).Inc()
		_ = s.transport.publishDLQ(context.Background(), s.topic, rec.env, "max_redeliveries", s.consumerName)
		return
	}

	s.group.redeliverQueue = append(s.group.redeliverQueue, id)
	ts.mu.Unlock()
	metrics.MessagesNacked.WithLabelValues(s.topic, s.group.name).Inc()
}

func (s *subscription) rejectMessage(ctx context.Context, id, reason string) {
	ts := s.ts
	ts.mu.Lock()
	rec := ts.byID[id]
	delete(s.group.pending, id)
	delete(s.group.deliveryCount, id)
	ts.cond.Broadcast()
	ts.mu.Unlock()

	metrics.MessagesRejected.WithLabelValues(s.topic, s.group.name).Inc()
	_ = s.transport.publishDLQ(ctx, s.topic, rec.env, reason, s.consumerName)
}

// Unsubscribe implements Subscription.
func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.ts.mu.Lock()
		s.ts.cond.Broadcast()
		s.ts.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type ackHandle struct {
	sub *subscription
	ctx context.Context
	id  string
}

func (a *ackHandle) Ack() { a.sub.ackMessage(a.id) }

func (a *ackHandle) Nack() { a.sub.nackMessage(a.id) }

func (a *ackHandle) Reject(reason string) { a.sub.rejectMessage(a.ctx, a.id, reason) }
