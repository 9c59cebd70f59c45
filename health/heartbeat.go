// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/a2a-mesh/fabric/internal/logger"
	"github.com/a2a-mesh/fabric/internal/metrics"
	"github.com/a2a-mesh/fabric/pkg/registry"
)

// heartbeater is the one registry method the publisher needs.
type heartbeater interface {
	Heartbeat(ctx context.Context, agentID string, status registry.Status, leaseDuration time.Duration) (*registry.Lease, error)
}

// StatusProvider returns an agent's current status. Its failure is
// logged and the publisher falls back to lastStatus for that tick
// (§4.3.3).
type StatusProvider func(ctx context.Context) (registry.Status, error)

// HeartbeatPublisher sends one agent's heartbeat at
// lease_duration/3, carrying whatever status its StatusProvider
// reports.
type HeartbeatPublisher struct {
	store         heartbeater
	agentID       string
	leaseDuration time.Duration
	statusFn      StatusProvider
	logger        logger.Logger

	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	lastStatus registry.Status
}

// NewHeartbeatPublisher builds a publisher for one agent. leaseDuration
// must match the duration the agent registered with; the publisher
// derives its own interval as leaseDuration/3.
func NewHeartbeatPublisher(store heartbeater, agentID string, leaseDuration time.Duration, statusFn StatusProvider) *HeartbeatPublisher {
	return &HeartbeatPublisher{
		store:         store,
		agentID:       agentID,
		leaseDuration: leaseDuration,
		statusFn:      statusFn,
		logger:        logger.GetDefaultLogger(),
		lastStatus:    registry.StatusStarting,
	}
}

// Start runs the heartbeat loop until Stop is called or ctx is
// cancelled. It blocks; callers typically run it in its own
// goroutine, one per live agent.
func (p *HeartbeatPublisher) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	defer close(p.doneCh)

	interval := p.leaseDuration / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.beat(ctx)
		}
	}
}

func (p *HeartbeatPublisher) beat(ctx context.Context) {
	status := p.lastStatus
	if p.statusFn != nil {
		s, err := p.statusFn(ctx)
		if err != nil {
			p.logger.Warn("status provider failed, reusing last known status",
				logger.String("agent_id", p.agentID), logger.Error(err))
		} else {
			status = s
		}
	}

	_, err := p.store.Heartbeat(ctx, p.agentID, status, p.leaseDuration)
	if err != nil {
		metrics.RegistryHeartbeats.WithLabelValues("expired").Inc()
		code := logger.ErrCodeRegistryUnavailable
		if errors.Is(err, registry.ErrAgentNotFound) {
			code = logger.ErrCodeAgentNotFound
		}
		p.logger.Warn("heartbeat failed", logger.String("agent_id", p.agentID),
			logger.Error(logger.NewFabricError(code, "heartbeat failed", err)))
		return
	}

	p.lastStatus = status
	metrics.RegistryHeartbeats.WithLabelValues("accepted").Inc()
}

// Stop signals the loop to exit and waits for the in-flight beat, if
// any, to finish.
func (p *HeartbeatPublisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
}
