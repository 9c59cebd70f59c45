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

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RegisterAndDiscover(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	lease, err := store.Register(ctx, &Registration{
		AgentID:      "agent-1",
		Version:      "1",
		Tenant:       "wesign",
		Project:      "default",
		Capabilities: []string{"self-healing"},
		LeaseDuration: 60 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", lease.AgentID)
	assert.True(t, lease.LeaseUntil.After(time.Now()))

	result, err := store.Discover(ctx, DiscoverFilter{Capability: "self-healing", Tenant: "wesign"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, StatusStarting, result.Agents[0].Status)
}

func TestMemoryStore_DiscoverFilterAND(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, registerAgent(ctx, store, "a1", "wesign", "self-healing"))
	require.NoError(t, registerAgent(ctx, store, "a2", "wesign", "self-healing"))
	require.NoError(t, registerAgent(ctx, store, "a3", "other-tenant", "self-healing"))

	result, err := store.Discover(ctx, DiscoverFilter{Capability: "self-healing", Tenant: "wesign"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalCount)
}

func TestMemoryStore_HeartbeatUnknownAgent(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Heartbeat(context.Background(), "ghost", StatusHealthy, 0)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestMemoryStore_HeartbeatExtendsLease(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Register(ctx, &Registration{AgentID: "a1", LeaseDuration: time.Second})
	require.NoError(t, err)

	second, err := store.Heartbeat(ctx, "a1", StatusHealthy, 60*time.Second)
	require.NoError(t, err)
	assert.True(t, second.LeaseUntil.After(first.LeaseUntil))
}

func TestMemoryStore_MarkExpiredAgents(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Register(ctx, &Registration{AgentID: "a1", LeaseDuration: -1 * time.Second})
	require.NoError(t, err)

	count, err := store.MarkExpiredAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := store.Discover(ctx, DiscoverFilter{Status: StatusUnavailable})
	require.NoError(t, err)
	require.Len(t, result.Agents, 1)
	assert.Equal(t, StatusUnavailable, result.Agents[0].Status)

	live, err := store.Discover(ctx, DiscoverFilter{})
	require.NoError(t, err)
	assert.Empty(t, live.Agents)
}

func registerAgent(ctx context.Context, store *MemoryStore, id, tenant, capability string) error {
	_, err := store.Register(ctx, &Registration{
		AgentID:       id,
		Tenant:        tenant,
		Capabilities:  []string{capability},
		LeaseDuration: 60 * time.Second,
	})
	return err
}
