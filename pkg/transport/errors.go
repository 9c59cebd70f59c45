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

package transport

import "errors"

var (
	// ErrTransportUnavailable is E_TRANSPORT_UNAVAILABLE (§4.2.6).
	ErrTransportUnavailable = errors.New("transport: broker unavailable")
	// ErrValidationFailed is E_VALIDATION_FAILED (§4.2.4).
	ErrValidationFailed = errors.New("transport: envelope failed validation")
	// ErrSubscriptionClosed is returned by operations on a subscription
	// that has already been unsubscribed.
	ErrSubscriptionClosed = errors.New("transport: subscription closed")
)
