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

import "fmt"

// Reason tokens for ValidationError, referenced by callers deciding
// whether to log, drop, or DLQ a rejected envelope.
const (
	ReasonMissingField     = "missing_field"
	ReasonInvalidVersion   = "invalid_version"
	ReasonInvalidMessageID = "invalid_message_id"
	ReasonMalformedTS      = "malformed_timestamp"
	ReasonEmptyRecipients  = "empty_recipients"
	ReasonUnknownType      = "unknown_type"
	ReasonInvalidEnum      = "invalid_enum"
	ReasonPayloadTooLarge  = "payload_too_large"
)

// FieldError is one validation failure at a specific path, e.g.
// "meta.to[0].id".
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ValidationError is the E_VALIDATION_FAILED error kind: one or more
// field-level failures. Validate itself does not return it: it reports
// failures in Result and never panics — validation is pure and total
// (§8 invariant 1).
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", e.Errors[0].Error())
}

// PayloadTooLargeError is the E_PAYLOAD_TOO_LARGE error kind, a type
// distinct from ValidationError. Validate does not return it: an
// over-deep payload is reported in Result as the single FieldError
// {Path: "payload", Reason: ReasonPayloadTooLarge}.
type PayloadTooLargeError struct {
	Path string
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("%s: payload exceeds size cap", e.Path)
}
