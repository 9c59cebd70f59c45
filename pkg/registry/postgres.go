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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds connection parameters for the PostgreSQL-backed
// registry store.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// PostgresStore implements Store against a PostgreSQL schema of
// agents / agent_capabilities / agent_topics.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Schema is the DDL the PostgreSQL driver expects to already exist.
// It is exposed so operators can run it with their migration tool of
// choice rather than have the driver own schema management.
const Schema = `
CREATE TABLE IF NOT EXISTS agents (
	agent_id       TEXT PRIMARY KEY,
	version        TEXT NOT NULL,
	tenant         TEXT NOT NULL,
	project        TEXT NOT NULL,
	status         TEXT NOT NULL,
	lease_until    TIMESTAMPTZ NOT NULL,
	last_heartbeat TIMESTAMPTZ NOT NULL,
	metadata       JSONB
);

CREATE TABLE IF NOT EXISTS agent_capabilities (
	agent_id   TEXT NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
	capability TEXT NOT NULL,
	PRIMARY KEY (agent_id, capability)
);

CREATE TABLE IF NOT EXISTS agent_topics (
	agent_id TEXT NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
	topic    TEXT NOT NULL,
	role     TEXT NOT NULL,
	PRIMARY KEY (agent_id, topic)
);
`

func (s *PostgresStore) Register(ctx context.Context, reg *Registration) (*Lease, error) {
	leaseDuration := reg.LeaseDuration
	if leaseDuration == 0 {
		leaseDuration = defaultLeaseDuration
	}
	status := reg.Status
	if status == "" {
		status = StatusStarting
	}

	metadata, err := json.Marshal(reg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now()
	leaseUntil := now.Add(leaseDuration)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO agents (agent_id, version, tenant, project, status, lease_until, last_heartbeat, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_id) DO UPDATE SET
			version = EXCLUDED.version,
			tenant = EXCLUDED.tenant,
			project = EXCLUDED.project,
			status = EXCLUDED.status,
			lease_until = EXCLUDED.lease_until,
			last_heartbeat = EXCLUDED.last_heartbeat,
			metadata = EXCLUDED.metadata
	`, reg.AgentID, reg.Version, reg.Tenant, reg.Project, status, leaseUntil, now, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert agent: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM agent_capabilities WHERE agent_id = $1`, reg.AgentID); err != nil {
		return nil, fmt.Errorf("failed to clear capabilities: %w", err)
	}
	for _, capability := range reg.Capabilities {
		if _, err := tx.Exec(ctx, `INSERT INTO agent_capabilities (agent_id, capability) VALUES ($1, $2)`, reg.AgentID, capability); err != nil {
			return nil, fmt.Errorf("failed to insert capability: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM agent_topics WHERE agent_id = $1`, reg.AgentID); err != nil {
		return nil, fmt.Errorf("failed to clear topics: %w", err)
	}
	for _, topic := range reg.Topics {
		if _, err := tx.Exec(ctx, `INSERT INTO agent_topics (agent_id, topic, role) VALUES ($1, $2, $3)`, reg.AgentID, topic.Topic, string(topic.Role)); err != nil {
			return nil, fmt.Errorf("failed to insert topic binding: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	return &Lease{AgentID: reg.AgentID, LeaseUntil: leaseUntil}, nil
}

func (s *PostgresStore) Heartbeat(ctx context.Context, agentID string, status Status, leaseDuration time.Duration) (*Lease, error) {
	if leaseDuration == 0 {
		leaseDuration = defaultLeaseDuration
	}
	now := time.Now()
	leaseUntil := now.Add(leaseDuration)

	query := `UPDATE agents SET last_heartbeat = $1, lease_until = $2`
	args := []interface{}{now, leaseUntil}
	if status != "" {
		query += `, status = $3 WHERE agent_id = $4`
		args = append(args, string(status), agentID)
	} else {
		query += ` WHERE agent_id = $3`
		args = append(args, agentID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	if result.RowsAffected() == 0 {
		return nil, ErrAgentNotFound
	}

	return &Lease{AgentID: agentID, LeaseUntil: leaseUntil}, nil
}

func (s *PostgresStore) Discover(ctx context.Context, filter DiscoverFilter) (*DiscoverResult, error) {
	var conditions []string
	var args []interface{}
	argN := 1

	if filter.Capability != "" {
		conditions = append(conditions, fmt.Sprintf(
			"a.agent_id IN (SELECT agent_id FROM agent_capabilities WHERE capability = $%d)", argN))
		args = append(args, filter.Capability)
		argN++
	}
	if filter.Tenant != "" {
		conditions = append(conditions, fmt.Sprintf("a.tenant = $%d", argN))
		args = append(args, filter.Tenant)
		argN++
	}
	if filter.Project != "" {
		conditions = append(conditions, fmt.Sprintf("a.project = $%d", argN))
		args = append(args, filter.Project)
		argN++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", argN))
		args = append(args, string(filter.Status))
		argN++
	} else {
		conditions = append(conditions, fmt.Sprintf("a.status != $%d AND a.lease_until >= $%d", argN, argN+1))
		args = append(args, string(StatusUnavailable), time.Now())
		argN += 2
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM agents a %s`, where)
	var total int
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	query := fmt.Sprintf(`
		SELECT a.agent_id, a.version, a.tenant, a.project, a.status, a.lease_until, a.last_heartbeat, a.metadata
		FROM agents a %s
		ORDER BY a.agent_id
	`, where)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
		argN++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var agent Agent
		var metadataJSON []byte
		var statusStr string
		if err := rows.Scan(&agent.AgentID, &agent.Version, &agent.Tenant, &agent.Project, &statusStr,
			&agent.LeaseUntil, &agent.LastHeartbeat, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agent.Status = Status(statusStr)
		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &agent.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		agents = append(agents, &agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}

	for _, agent := range agents {
		caps, err := s.loadCapabilities(ctx, agent.AgentID)
		if err != nil {
			return nil, err
		}
		agent.Capabilities = caps

		topics, err := s.loadTopics(ctx, agent.AgentID)
		if err != nil {
			return nil, err
		}
		agent.Topics = topics
	}

	return &DiscoverResult{Agents: agents, TotalCount: total}, nil
}

func (s *PostgresStore) loadCapabilities(ctx context.Context, agentID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT capability FROM agent_capabilities WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load capabilities: %w", err)
	}
	defer rows.Close()

	var caps []string
	for rows.Next() {
		var capability string
		if err := rows.Scan(&capability); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		caps = append(caps, capability)
	}
	return caps, rows.Err()
}

func (s *PostgresStore) loadTopics(ctx context.Context, agentID string) ([]TopicBinding, error) {
	rows, err := s.pool.Query(ctx, `SELECT topic, role FROM agent_topics WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}
	defer rows.Close()

	var topics []TopicBinding
	for rows.Next() {
		var topic, role string
		if err := rows.Scan(&topic, &role); err != nil {
			return nil, fmt.Errorf("failed to scan topic binding: %w", err)
		}
		topics = append(topics, TopicBinding{Topic: topic, Role: TopicRole(role)})
	}
	return topics, rows.Err()
}

func (s *PostgresStore) MarkExpiredAgents(ctx context.Context) (int, error) {
	result, err := s.pool.Exec(ctx, `
		UPDATE agents SET status = $1
		WHERE lease_until < $2 AND status != $1
	`, string(StatusUnavailable), time.Now())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	return int(result.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
