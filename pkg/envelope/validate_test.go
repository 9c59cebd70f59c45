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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validTaskRequest() *Envelope {
	return &Envelope{
		Meta: Meta{
			A2AVersion: Version,
			MessageID:  strings.Repeat("a", 32),
			TraceID:    "trace-1",
			TS:         time.Now().UTC().Format(time.RFC3339Nano),
			From:       AgentRef{ID: "agent-1", Type: "coordinator", Version: "1"},
			To:         []Recipient{{ID: "agent-2", Type: "specialist", Version: "1"}},
			Tenant:     "wesign",
			Project:    "default",
			Type:       TaskRequest,
		},
		Payload: map[string]interface{}{
			"task":   "review",
			"inputs": map[string]interface{}{},
		},
	}
}

func TestValidate_S1_ValidTaskRequest(t *testing.T) {
	result := Validate(validTaskRequest(), ValidateOptions{})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidate_S1_EmptyRecipientsRejected(t *testing.T) {
	e := validTaskRequest()
	e.Meta.To = nil

	result := Validate(e, ValidateOptions{})
	assert.False(t, result.Valid)
	found := false
	for _, err := range result.Errors {
		if err.Path == "meta.to" && err.Reason == ReasonEmptyRecipients {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_RejectsWrongVersion(t *testing.T) {
	e := validTaskRequest()
	e.Meta.A2AVersion = "2.0"

	result := Validate(e, ValidateOptions{})
	assert.False(t, result.Valid)
}

func TestValidate_RejectsBadMessageID(t *testing.T) {
	e := validTaskRequest()
	e.Meta.MessageID = "not-hex"

	result := Validate(e, ValidateOptions{})
	assert.False(t, result.Valid)
}

func TestValidate_RejectsUnknownType(t *testing.T) {
	e := validTaskRequest()
	e.Meta.Type = "NotARealType"

	result := Validate(e, ValidateOptions{})
	assert.False(t, result.Valid)
}

func TestValidate_RejectsMissingPayloadField(t *testing.T) {
	e := validTaskRequest()
	delete(e.Payload, "inputs")

	result := Validate(e, ValidateOptions{})
	assert.False(t, result.Valid)
}

func TestValidate_PayloadTooDeepRejected(t *testing.T) {
	e := validTaskRequest()

	var nested interface{} = "leaf"
	for i := 0; i < 20; i++ {
		nested = map[string]interface{}{"n": nested}
	}
	e.Payload["inputs"] = nested

	result := Validate(e, ValidateOptions{MaxPayloadDepth: 8})
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonPayloadTooLarge, result.Errors[0].Reason)
}

func TestValidate_NeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Validate(&Envelope{}, ValidateOptions{})
	})
}
