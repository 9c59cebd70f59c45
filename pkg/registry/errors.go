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

import "errors"

// ErrAgentNotFound is returned by Heartbeat when no row exists for the
// given agent id. Non-retriable.
var ErrAgentNotFound = errors.New("registry: agent not found")

// ErrRegistryUnavailable wraps any backend failure reaching the
// directory store. Callers retry with jittered backoff.
var ErrRegistryUnavailable = errors.New("registry: backend unavailable")
