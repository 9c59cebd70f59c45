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
	"sync"
	"time"

	"github.com/a2a-mesh/fabric/internal/logger"
	"github.com/a2a-mesh/fabric/internal/metrics"
)

// expirer is the one method the lease-expiry sweeper needs from a
// registry store, kept narrow so this package doesn't import
// pkg/registry.
type expirer interface {
	MarkExpiredAgents(ctx context.Context) (int, error)
}

// Sweeper periodically transitions expired agent leases to
// UNAVAILABLE (§4.3.3). It is cooperative, cancellable, and
// restartable: Stop drains the in-flight sweep before returning, and a
// restarted Sweeper simply resumes calling the same idempotent
// backend operation.
type Sweeper struct {
	store    expirer
	interval time.Duration
	logger   logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

const defaultSweepInterval = 10 * time.Second

// NewSweeper builds a Sweeper over store. A zero interval defaults to
// 10s per §4.3.3.
func NewSweeper(store expirer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger.GetDefaultLogger(),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
// It blocks; callers typically run it in its own goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.store.MarkExpiredAgents(ctx)
	metrics.RegistrySweeps.Inc()
	if err != nil {
		s.logger.Warn("lease-expiry sweep failed", logger.Error(err))
		return
	}
	if count > 0 {
		metrics.RegistryExpired.Add(float64(count))
		s.logger.Info("lease-expiry sweep marked agents unavailable", logger.Int("count", count))
	}
}

// Stop signals the loop to exit and waits for the in-flight sweep, if
// any, to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}
