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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2a-mesh/fabric/config"
	"github.com/a2a-mesh/fabric/pkg/envelope"
)

func testEnvelope() *envelope.Envelope {
	return &envelope.Envelope{
		Meta: envelope.Meta{
			A2AVersion: envelope.Version,
			MessageID:  strings.Repeat("a", 32),
			TraceID:    "trace-policy",
			TS:         time.Now().UTC().Format(time.RFC3339Nano),
			From:       envelope.AgentRef{ID: "agent-1"},
			To:         []envelope.Recipient{{ID: "agent-2"}},
			Tenant:     "wesign",
			Project:    "default",
			Type:       envelope.TaskRequest,
		},
		Payload: map[string]interface{}{"task": "review", "inputs": map[string]interface{}{}},
	}
}

func TestGate_AllowDecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/data/a2a/wire_gates", r.URL.Path)
		w.Write([]byte(`{"result":{"allow":true}}`))
	}))
	defer srv.Close()

	g := NewGate(config.PolicyConfig{BaseURL: srv.URL, PolicyPath: "a2a/wire_gates"}, 8)
	decision := g.CheckPreSend(context.Background(), testEnvelope())
	assert.True(t, decision.Allow)

	recent := g.Audit().Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "pre_send", recent[0].Stage)
	assert.True(t, recent[0].Allow)
}

func TestGate_DenyDecisionWithReasons(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"allow":false,"reasons":["tenant_mismatch"]}}`))
	}))
	defer srv.Close()

	g := NewGate(config.PolicyConfig{BaseURL: srv.URL, PolicyPath: "a2a/wire_gates"}, 8)
	decision := g.CheckPreSend(context.Background(), testEnvelope())
	assert.False(t, decision.Allow)
	assert.Equal(t, []string{"tenant_mismatch"}, decision.Reasons)
}

func TestGate_ClosedOnUnreachable(t *testing.T) {
	g := NewGate(config.PolicyConfig{BaseURL: "http://127.0.0.1:1", PolicyPath: "a2a/wire_gates", Timeout: 100 * time.Millisecond}, 8)
	decision := g.CheckPreSend(context.Background(), testEnvelope())
	assert.False(t, decision.Allow)
}

func TestGate_MalformedResponseDenies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	g := NewGate(config.PolicyConfig{BaseURL: srv.URL, PolicyPath: "a2a/wire_gates"}, 8)
	decision := g.CheckPreSend(context.Background(), testEnvelope())
	assert.False(t, decision.Allow)
}

func TestGate_DisabledAlwaysAllows(t *testing.T) {
	g := NewGate(config.PolicyConfig{Disabled: true, BaseURL: "http://127.0.0.1:1"}, 8)
	decision := g.CheckPostReceive(context.Background(), testEnvelope(), nil)
	assert.True(t, decision.Allow)
}

func TestClient_EvaluateCollapsesConcurrentIdenticalRequests(t *testing.T) {
	var hits int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		close(started)
		<-release
		w.Write([]byte(`{"result":{"allow":true}}`))
	}))
	defer srv.Close()

	c := NewClient(config.PolicyConfig{BaseURL: srv.URL, PolicyPath: "a2a/wire_gates"})

	const callers = 5
	var wg sync.WaitGroup
	wg.Add(callers)

	// Goroutine 0 reaches the handler and blocks there; the rest only
	// start once that request is in flight, so they join it instead of
	// each issuing their own.
	go func() {
		defer wg.Done()
		decision, err := c.Evaluate(context.Background(), map[string]string{"k": "same"})
		assert.NoError(t, err)
		assert.True(t, decision.Allow)
	}()
	<-started

	for i := 1; i < callers; i++ {
		go func() {
			defer wg.Done()
			decision, err := c.Evaluate(context.Background(), map[string]string{"k": "same"})
			assert.NoError(t, err)
			assert.True(t, decision.Allow)
		}()
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestAuditLog_ForTrace(t *testing.T) {
	al := NewAuditLog(4)
	al.Append(AuditRecord{Stage: "pre_send", TraceID: "t1", Allow: true})
	al.Append(AuditRecord{Stage: "post_receive", TraceID: "t2", Allow: false})
	al.Append(AuditRecord{Stage: "post_receive", TraceID: "t1", Allow: true})

	records := al.ForTrace("t1")
	require.Len(t, records, 2)
}

func TestAuditLog_EvictsOldest(t *testing.T) {
	al := NewAuditLog(2)
	al.Append(AuditRecord{TraceID: "t1"})
	al.Append(AuditRecord{TraceID: "t2"})
	al.Append(AuditRecord{TraceID: "t3"})

	recent := al.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "t3", recent[0].TraceID)
	assert.Equal(t, "t2", recent[1].TraceID)
}
