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

import "strings"

// HasScope implements the scope matching rules from §4.4.1 / §8
// invariant 9:
//   - exact equality matches
//   - a granted scope of "*" matches any required scope
//   - a granted scope ending in ":*" matches any required scope with
//     the same prefix up to and including the colon
//   - otherwise no match
func HasScope(claims *Claims, required string) bool {
	for _, granted := range claims.Scopes {
		if scopeGrants(granted, required) {
			return true
		}
	}
	return false
}

func scopeGrants(granted, required string) bool {
	if granted == required {
		return true
	}
	if granted == "*" {
		return true
	}
	if strings.HasSuffix(granted, ":*") {
		prefix := granted[:len(granted)-1] // keep trailing colon
		return strings.HasPrefix(required, prefix)
	}
	return false
}
