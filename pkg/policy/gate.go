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

package policy

import (
	"context"

	"github.com/a2a-mesh/fabric/config"
	"github.com/a2a-mesh/fabric/internal/logger"
	"github.com/a2a-mesh/fabric/internal/metrics"
	"github.com/a2a-mesh/fabric/pkg/envelope"
	"github.com/a2a-mesh/fabric/pkg/security"
)

// preSendInput is what the engine sees for checkPreSend.
type preSendInput struct {
	Envelope *envelope.Envelope `json:"envelope"`
}

// postReceiveInput is what the engine sees for checkPostReceive.
type postReceiveInput struct {
	Envelope *envelope.Envelope `json:"envelope"`
	Claims   *security.Claims   `json:"claims,omitempty"`
}

// Gate wraps a Client with the audit trail required by §4.5.
type Gate struct {
	client *Client
	audit  *AuditLog
	log    logger.Logger
}

// NewGate builds a Gate from configuration.
func NewGate(cfg config.PolicyConfig, auditCapacity int) *Gate {
	return &Gate{
		client: NewClient(cfg),
		audit:  NewAuditLog(auditCapacity),
		log:    logger.GetDefaultLogger(),
	}
}

// Audit exposes the gate's audit ring buffer for inspection/export.
func (g *Gate) Audit() *AuditLog {
	return g.audit
}

// CheckPreSend is called by the sender before publish. On deny,
// publish must be aborted.
func (g *Gate) CheckPreSend(ctx context.Context, env *envelope.Envelope) Decision {
	decision, err := g.client.Evaluate(ctx, preSendInput{Envelope: env})
	if err != nil {
		decision = Decision{Allow: false, Reasons: []string{"policy_client_error"}}
	}
	g.record("pre_send", env.Meta.TraceID, decision)
	return decision
}

// CheckPostReceive is called after token verification and before the
// handler.
func (g *Gate) CheckPostReceive(ctx context.Context, env *envelope.Envelope, claims *security.Claims) Decision {
	decision, err := g.client.Evaluate(ctx, postReceiveInput{Envelope: env, Claims: claims})
	if err != nil {
		decision = Decision{Allow: false, Reasons: []string{"policy_client_error"}}
	}
	g.record("post_receive", env.Meta.TraceID, decision)
	return decision
}

func (g *Gate) record(stage, traceID string, decision Decision) {
	g.audit.Append(AuditRecord{
		Stage:   stage,
		TraceID: traceID,
		Allow:   decision.Allow,
		Reasons: decision.Reasons,
	})

	outcome := "deny"
	if decision.Allow {
		outcome = "allow"
	}
	metrics.PolicyDecisions.WithLabelValues(stage, outcome).Inc()

	fields := []logger.Field{
		logger.String("stage", stage),
		logger.String("trace_id", traceID),
		logger.Bool("allow", decision.Allow),
		logger.Any("reasons", decision.Reasons),
	}
	if decision.Allow {
		g.log.Info("policy decision", fields...)
		return
	}

	code := logger.ErrCodePolicyDeny
	for _, r := range decision.Reasons {
		if r == "policy_engine_unreachable" || r == "malformed_policy_response" {
			code = logger.ErrCodePolicyUnavailable
			break
		}
	}
	fields = append(fields, logger.Error(logger.NewFabricError(code, "policy check denied", nil)))
	g.log.Warn("policy decision", fields...)
}
