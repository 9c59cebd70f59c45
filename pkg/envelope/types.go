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

// Package envelope defines the canonical message shape exchanged
// between agents and its per-type validators.
package envelope

// Version is the only accepted value of meta.a2a_version.
const Version = "1.0"

// Type is one of the twelve closed envelope types.
type Type string

const (
	TaskRequest                 Type = "TaskRequest"
	TaskResult                  Type = "TaskResult"
	MemoryEvent                 Type = "MemoryEvent"
	ContextRequest               Type = "ContextRequest"
	ContextResult                Type = "ContextResult"
	SpecialistInvocationRequest  Type = "SpecialistInvocationRequest"
	SpecialistInvocationResult   Type = "SpecialistInvocationResult"
	RegistryHeartbeat             Type = "RegistryHeartbeat"
	RegistryDiscoveryRequest      Type = "RegistryDiscoveryRequest"
	RegistryDiscoveryResponse     Type = "RegistryDiscoveryResponse"
	SystemEvent                  Type = "SystemEvent"
	SpecialistEventNotification  Type = "SpecialistEventNotification"
)

// knownTypes is the closed set backing the dispatch table in validate.go.
var knownTypes = map[Type]bool{
	TaskRequest:                  true,
	TaskResult:                   true,
	MemoryEvent:                  true,
	ContextRequest:               true,
	ContextResult:                true,
	SpecialistInvocationRequest:  true,
	SpecialistInvocationResult:   true,
	RegistryHeartbeat:            true,
	RegistryDiscoveryRequest:     true,
	RegistryDiscoveryResponse:    true,
	SystemEvent:                  true,
	SpecialistEventNotification:  true,
}

// Priority is an optional hint for transport/policy layers.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// AgentRef identifies the sender, or a direct recipient.
type AgentRef struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version string `json:"version"`
}

// Recipient is one entry of meta.to: either a direct AgentRef or a
// topic reference. RecipientType distinguishes the two on the wire.
type Recipient struct {
	// ID, Type, Version are populated for a direct recipient.
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`

	// Name is populated when Type == "topic".
	Name string `json:"name,omitempty"`
}

// IsTopic reports whether this recipient is a topic reference rather
// than a direct agent reference.
func (r Recipient) IsTopic() bool {
	return r.Type == "topic"
}

// RetryPolicy is an opaque, caller-defined retry hint carried on meta.
type RetryPolicy struct {
	MaxAttempts int    `json:"max_attempts,omitempty"`
	BackoffMS   int    `json:"backoff_ms,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
}

// Meta is the envelope's required routing and correlation header.
type Meta struct {
	A2AVersion     string         `json:"a2a_version"`
	MessageID      string         `json:"message_id"`
	TraceID        string         `json:"trace_id"`
	TS             string         `json:"ts"`
	From           AgentRef       `json:"from"`
	To             []Recipient    `json:"to"`
	Tenant         string         `json:"tenant"`
	Project        string         `json:"project"`
	Type           Type           `json:"type"`

	ReplyTo        string         `json:"reply_to,omitempty"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	Priority       Priority       `json:"priority,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Deadline       string         `json:"deadline,omitempty"`
	RetryPolicy    *RetryPolicy   `json:"retry_policy,omitempty"`

	// Signature holds the hex-encoded HMAC signature when the envelope
	// has been signed. Excluded from its own canonical form.
	Signature string `json:"signature,omitempty"`
}

// Envelope is the outer message structure exchanged between agents.
// Payload shape is determined by Meta.Type; validators reject unknown
// fields that violate the type's schema.
type Envelope struct {
	Meta    Meta                   `json:"meta"`
	Payload map[string]interface{} `json:"payload"`
}
