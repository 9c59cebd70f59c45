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

// Package policy implements the pre-send/post-receive policy gate: a
// thin client for an out-of-process policy engine, consulted by its
// decision path and closed (deny) on any unreachable or malformed
// response (§4.5).
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/a2a-mesh/fabric/config"
	"github.com/a2a-mesh/fabric/pkg/version"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons,omitempty"`
}

type decisionEnvelope struct {
	Result *Decision `json:"result"`
}

type requestBody struct {
	Input interface{} `json:"input"`
}

// Client calls an external policy engine over HTTP, exposing policies
// by path (e.g. a2a/wire_gates).
type Client struct {
	cfg  config.PolicyConfig
	http *http.Client
	sf   singleflight.Group
}

// NewClient builds a Client from cfg. A zero Timeout defaults to 500ms.
func NewClient(cfg config.PolicyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// Disabled reports whether the gate is configured to always allow.
func (c *Client) Disabled() bool {
	return c.cfg.Disabled
}

// Evaluate POSTs input to <base_url>/v1/data/<policy_path> and parses
// a {result:{allow,reasons?}} response. Any transport error or
// malformed body is treated as deny (closed failure), per §4.5.
func (c *Client) Evaluate(ctx context.Context, input interface{}) (Decision, error) {
	if c.cfg.Disabled {
		return Decision{Allow: true}, nil
	}

	body, err := json.Marshal(requestBody{Input: input})
	if err != nil {
		return Decision{Allow: false}, fmt.Errorf("policy: marshal request: %w", err)
	}

	// Two envelopes with byte-identical canonical input (same message
	// replayed to concurrent consumers, or a pre-send/post-receive pair
	// on a loopback) collapse onto one HTTP round trip.
	v, err, _ := c.sf.Do(string(body), func() (interface{}, error) {
		return c.evaluate(ctx, body)
	})
	if err != nil {
		return Decision{Allow: false}, err
	}
	return v.(Decision), nil
}

func (c *Client) evaluate(ctx context.Context, body []byte) (Decision, error) {
	url := fmt.Sprintf("%s/v1/data/%s", c.cfg.BaseURL, c.cfg.PolicyPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Decision{Allow: false}, fmt.Errorf("policy: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return Decision{Allow: false, Reasons: []string{"policy_engine_unreachable"}}, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		return Decision{Allow: false, Reasons: []string{"policy_engine_unreachable"}}, nil
	}

	var decoded decisionEnvelope
	if err := json.Unmarshal(data, &decoded); err != nil || decoded.Result == nil {
		return Decision{Allow: false, Reasons: []string{"malformed_policy_response"}}, nil
	}

	return *decoded.Result, nil
}
