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

package envelope

import (
	"fmt"
	"regexp"
	"time"

	"github.com/a2a-mesh/fabric/internal/metrics"
)

var messageIDPattern = regexp.MustCompile(`^[a-f0-9]{32,}$`)

// ValidateOptions bounds validation resource usage (§4.1: validation
// must succeed in constant time w.r.t. payload depth up to a
// configured cap).
type ValidateOptions struct {
	// MaxPayloadDepth caps nested object/array depth in payload. Zero
	// means DefaultMaxPayloadDepth.
	MaxPayloadDepth int
}

const DefaultMaxPayloadDepth = 16

// Result is the outcome of Validate: a decision plus zero or more
// field-level errors. Validate never panics (§8 invariant 1).
type Result struct {
	Valid  bool
	Errors []FieldError
}

// payloadValidator checks one type's payload shape given its required
// top-level keys. The dispatch table below is the "constant-time
// lookup" replacement for a generic runtime schema checker (§9).
type payloadValidator func(payload map[string]interface{}) []FieldError

var payloadValidators = map[Type]payloadValidator{
	TaskRequest:                  requireKeys("task", "inputs"),
	TaskResult:                   requireKeys("task", "status"),
	MemoryEvent:                  requireKeys("event_type", "data"),
	ContextRequest:               requireKeys("query"),
	ContextResult:                requireKeys("context"),
	SpecialistInvocationRequest:  requireKeys("specialist", "inputs"),
	SpecialistInvocationResult:   requireKeys("specialist", "status"),
	RegistryHeartbeat:            requireKeys("agent_id", "status"),
	RegistryDiscoveryRequest:     requireKeys("filters"),
	RegistryDiscoveryResponse:    requireKeys("agents"),
	SystemEvent:                  requireKeys("event"),
	SpecialistEventNotification:  requireKeys("specialist", "event"),
}

// requireKeys builds a payloadValidator that rejects a payload missing
// any of the given top-level keys.
func requireKeys(keys ...string) payloadValidator {
	return func(payload map[string]interface{}) []FieldError {
		var errs []FieldError
		for _, key := range keys {
			if _, ok := payload[key]; !ok {
				errs = append(errs, FieldError{
					Path:   fmt.Sprintf("payload.%s", key),
					Reason: ReasonMissingField,
				})
			}
		}
		return errs
	}
}

// Validate checks an envelope against the common meta schema, then
// dispatches to e.Meta.Type's payload validator. It is pure (no I/O)
// and always terminates.
func Validate(e *Envelope, opts ValidateOptions) Result {
	result := validate(e, opts)

	status := "accepted"
	if !result.Valid {
		status = "rejected"
	}
	metrics.EnvelopesValidated.WithLabelValues(string(e.Meta.Type), status).Inc()

	return result
}

func validate(e *Envelope, opts ValidateOptions) Result {
	maxDepth := opts.MaxPayloadDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxPayloadDepth
	}

	var errs []FieldError
	errs = append(errs, validateMeta(&e.Meta)...)

	if depth(e.Payload, 0) > maxDepth {
		return Result{Valid: false, Errors: []FieldError{{Path: "payload", Reason: ReasonPayloadTooLarge}}}
	}

	if validator, ok := payloadValidators[e.Meta.Type]; ok {
		errs = append(errs, validator(e.Payload)...)
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func validateMeta(m *Meta) []FieldError {
	var errs []FieldError

	if m.A2AVersion != Version {
		errs = append(errs, FieldError{Path: "meta.a2a_version", Reason: ReasonInvalidVersion})
	}
	if !messageIDPattern.MatchString(m.MessageID) {
		errs = append(errs, FieldError{Path: "meta.message_id", Reason: ReasonInvalidMessageID})
	}
	if m.TraceID == "" {
		errs = append(errs, FieldError{Path: "meta.trace_id", Reason: ReasonMissingField})
	}
	if _, err := time.Parse(time.RFC3339Nano, m.TS); err != nil {
		errs = append(errs, FieldError{Path: "meta.ts", Reason: ReasonMalformedTS})
	}
	if m.From.ID == "" {
		errs = append(errs, FieldError{Path: "meta.from.id", Reason: ReasonMissingField})
	}
	if len(m.To) == 0 {
		errs = append(errs, FieldError{Path: "meta.to", Reason: ReasonEmptyRecipients})
	}
	for i, r := range m.To {
		if r.IsTopic() {
			if r.Name == "" {
				errs = append(errs, FieldError{Path: fmt.Sprintf("meta.to[%d].name", i), Reason: ReasonMissingField})
			}
		} else if r.ID == "" {
			errs = append(errs, FieldError{Path: fmt.Sprintf("meta.to[%d].id", i), Reason: ReasonMissingField})
		}
	}
	if m.Tenant == "" {
		errs = append(errs, FieldError{Path: "meta.tenant", Reason: ReasonMissingField})
	}
	if m.Project == "" {
		errs = append(errs, FieldError{Path: "meta.project", Reason: ReasonMissingField})
	}
	if !knownTypes[m.Type] {
		errs = append(errs, FieldError{Path: "meta.type", Reason: ReasonUnknownType})
	}
	if m.Priority != "" {
		switch m.Priority {
		case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		default:
			errs = append(errs, FieldError{Path: "meta.priority", Reason: ReasonInvalidEnum})
		}
	}
	if m.Deadline != "" {
		if _, err := time.Parse(time.RFC3339Nano, m.Deadline); err != nil {
			errs = append(errs, FieldError{Path: "meta.deadline", Reason: ReasonMalformedTS})
		}
	}

	return errs
}

// depth computes the maximum nesting depth of a decoded JSON value.
func depth(v interface{}, current int) int {
	switch val := v.(type) {
	case map[string]interface{}:
		max := current
		for _, child := range val {
			if d := depth(child, current+1); d > max {
				max = d
			}
		}
		return max
	case []interface{}:
		max := current
		for _, child := range val {
			if d := depth(child, current+1); d > max {
				max = d
			}
		}
		return max
	default:
		return current
	}
}
