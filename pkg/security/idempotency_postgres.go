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

package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyKeySeen is returned by PostgresIdempotencyStore.MarkSeen
// when the key was already recorded by a concurrent or prior call.
var ErrIdempotencyKeySeen = errors.New("security: idempotency key already seen")

// PostgresIdempotencyStore durably records idempotency keys (§4.4.5),
// so the dedup window survives a process restart — unlike
// IdempotencyStore, which only tracks keys in memory. A consumer
// group typically needs only the in-memory store; this exists for
// deployments where redelivery can span a transport engine restart.
type PostgresIdempotencyStore struct {
	db *pgxpool.Pool
}

// NewPostgresIdempotencyStore opens a connection pool against an
// idempotency_keys(key, seen_at, expires_at) table and verifies
// connectivity.
func NewPostgresIdempotencyStore(ctx context.Context, connString string) (*PostgresIdempotencyStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("security: open idempotency store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("security: ping idempotency store: %w", err)
	}
	return &PostgresIdempotencyStore{db: pool}, nil
}

// Seen reports whether key has already been recorded and has not yet
// expired.
func (s *PostgresIdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM idempotency_keys
			WHERE key = $1 AND expires_at > NOW()
		)
	`
	var seen bool
	if err := s.db.QueryRow(ctx, query, key).Scan(&seen); err != nil {
		return false, fmt.Errorf("security: check idempotency key: %w", err)
	}
	return seen, nil
}

// MarkSeen atomically records key, first-writer-wins. It returns
// ErrIdempotencyKeySeen if key was already recorded by another caller.
func (s *PostgresIdempotencyStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) error {
	const query = `
		INSERT INTO idempotency_keys (key, seen_at, expires_at)
		VALUES ($1, NOW(), NOW() + $2::interval)
		ON CONFLICT (key) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query, key, ttl)
	if err != nil {
		return fmt.Errorf("security: store idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyKeySeen
	}
	return nil
}

// DeleteExpired removes expired keys and returns the count removed.
// Callers typically run this on a periodic schedule alongside the
// registry lease-expiry sweep.
func (s *PostgresIdempotencyStore) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`
	tag, err := s.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("security: delete expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the underlying connection pool.
func (s *PostgresIdempotencyStore) Close() error {
	s.db.Close()
	return nil
}
