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
	"time"
)

// Store is the authoritative, strongly-consistent agent directory.
// Implementations must make Register/Heartbeat/MarkExpiredAgents
// atomic with respect to concurrent callers.
type Store interface {
	// Register upserts by AgentID: on conflict it replaces version,
	// capabilities, topics, and metadata, and resets the lease.
	Register(ctx context.Context, reg *Registration) (*Lease, error)

	// Heartbeat refreshes an existing agent's lease and status.
	// Returns ErrAgentNotFound if the row is absent.
	Heartbeat(ctx context.Context, agentID string, status Status, leaseDuration time.Duration) (*Lease, error)

	// Discover lists agents matching filters, ANDed together.
	Discover(ctx context.Context, filter DiscoverFilter) (*DiscoverResult, error)

	// MarkExpiredAgents atomically transitions every row with
	// lease_until < now AND status != UNAVAILABLE to UNAVAILABLE.
	// Returns the number of rows updated.
	MarkExpiredAgents(ctx context.Context) (int, error)

	// Close releases any held resources (connection pools, etc).
	Close() error

	// Ping checks the backend connection.
	Ping(ctx context.Context) error
}
