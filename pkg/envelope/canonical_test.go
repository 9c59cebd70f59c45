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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_KeysSortedAndStable(t *testing.T) {
	e := validTaskRequest()
	e.Payload["zeta"] = "z"
	e.Payload["alpha"] = "a"

	first, err := Canonicalize(e)
	require.NoError(t, err)
	second, err := Canonicalize(e)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotContains(t, string(first), " ")
}

func TestCanonicalize_ExcludesSignatureField(t *testing.T) {
	e := validTaskRequest()
	e.Meta.Signature = "deadbeef"

	canonical, err := Canonicalize(e)
	require.NoError(t, err)
	assert.NotContains(t, string(canonical), "deadbeef")
}

func TestCanonicalize_DifferentPayloadProducesDifferentBytes(t *testing.T) {
	e1 := validTaskRequest()
	e2 := validTaskRequest()
	e2.Payload["task"] = "mutated"

	c1, err := Canonicalize(e1)
	require.NoError(t, err)
	c2, err := Canonicalize(e2)
	require.NoError(t, err)

	assert.NotEqual(t, c1, c2)
}

func TestCanonicalize_UnicodePayload(t *testing.T) {
	e := validTaskRequest()
	e.Payload["task"] = "レビュー"

	canonical, err := Canonicalize(e)
	require.NoError(t, err)
	assert.Contains(t, string(canonical), "task")
	_ = canonical
}
