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

// Package fabric wires the transport, registry, security, and policy
// layers into one explicit lifecycle. Nothing here is package-global:
// every component is constructed from config and held on Fabric, per
// the "explicit lifecycles, nothing module-global" design note.
package fabric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a2a-mesh/fabric/config"
	"github.com/a2a-mesh/fabric/health"
	"github.com/a2a-mesh/fabric/internal/logger"
	"github.com/a2a-mesh/fabric/pkg/policy"
	"github.com/a2a-mesh/fabric/pkg/registry"
	"github.com/a2a-mesh/fabric/pkg/security"
	"github.com/a2a-mesh/fabric/pkg/transport"
)

// Fabric holds one process's view of every fabric component. Callers
// never reach upwards: policy checks never call into security,
// security never calls into transport, transport never calls into
// registry — the composition in this package is the only place the
// call graph runs top-down (policy -> security -> transport ->
// registry), matching the lock order the concurrency model requires.
type Fabric struct {
	cfg config.Config

	Policy    *policy.Gate
	Security  SecurityContext
	Transport transport.Transport
	Registry  registry.Store

	idempotency *security.IdempotencyStore
	sweeper     *health.Sweeper
	logger      logger.Logger

	mu          sync.Mutex
	started     bool
	cancelSweep context.CancelFunc
}

// SecurityContext bundles the wire-security configuration each send/
// receive path needs; it has no mutable state of its own beyond the
// idempotency store, which Fabric owns directly.
type SecurityContext struct {
	JWT     security.JWTConfig
	HMAC    security.HMACConfig
	Replay  security.ReplayConfig
}

// New builds every component from cfg. The only background goroutine it
// starts is the idempotency store's cleanup loop; call Start to begin
// the sweeper.
func New(ctx context.Context, cfg config.Config) (*Fabric, error) {
	store, err := registry.NewStoreFromConfig(ctx, cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("fabric: build registry store: %w", err)
	}

	freshness := cfg.Security.FreshnessWindow
	if freshness <= 0 {
		freshness = 5 * time.Minute
	}
	nonceTTL := cfg.Security.NonceTTL
	if nonceTTL <= 0 {
		nonceTTL = freshness
	}

	f := &Fabric{
		cfg: cfg,
		Security: SecurityContext{
			JWT: security.JWTConfig{
				Algorithm: cfg.Security.JWT.Algorithm,
				Secret:    cfg.Security.JWT.Secret,
			},
			HMAC: security.HMACConfig{
				Algorithm: cfg.Security.HMAC.Algorithm,
				SecretKey: cfg.Security.HMAC.Secret,
			},
			Replay: security.ReplayConfig{FreshnessWindow: freshness},
		},
		Transport:   transport.NewMemoryTransport(cfg.Transport),
		Registry:    store,
		Policy:      policy.NewGate(cfg.Policy, 0),
		idempotency: security.NewIdempotencyStore(nonceTTL, nonceTTL),
		logger:      logger.GetDefaultLogger(),
	}

	return f, nil
}

// CheckIdempotency is the hook transport subscriptions pass through
// to SubscribeOptions.CheckIdempotency.
func (f *Fabric) CheckIdempotency(key string) bool {
	if f.idempotency.Seen(key) {
		return true
	}
	f.idempotency.MarkSeen(key)
	return false
}

// Start begins the lease-expiry sweeper. It is idempotent.
func (f *Fabric) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	f.started = true

	sweepCtx, cancel := context.WithCancel(ctx)
	f.cancelSweep = cancel
	f.sweeper = health.NewSweeper(f.Registry, f.cfg.Registry.SweepInterval)
	go f.sweeper.Start(sweepCtx)
}

// Stop drains the sweeper, then closes the transport and registry
// store. It is safe to call multiple times.
func (f *Fabric) Stop() error {
	f.mu.Lock()
	if f.started {
		f.cancelSweep()
		f.sweeper.Stop()
		f.started = false
	}
	f.mu.Unlock()

	f.idempotency.Stop()

	if err := f.Transport.Close(); err != nil {
		f.logger.Warn("transport close failed",
			logger.Error(logger.NewFabricError(logger.ErrCodeTransportUnavailable, "transport close failed", err)))
	}

	if err := f.Registry.Close(); err != nil {
		return logger.NewFabricError(logger.ErrCodeRegistryUnavailable, "registry close failed", err)
	}
	return nil
}
