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

import (
	"fmt"
	"time"

	"github.com/a2a-mesh/fabric/internal/metrics"
)

// These ErrorCode values distinguish the two replay rejection reasons.
const (
	ErrReplayTimestampFuture ErrorCode = "E_REPLAY_TIMESTAMP_FUTURE"
	ErrReplayTimestampStale  ErrorCode = "E_REPLAY_TIMESTAMP_STALE"
)

// ReplayConfig bounds how far an envelope's timestamp may drift from
// the verifier's clock (§4.4.4).
type ReplayConfig struct {
	FreshnessWindow time.Duration
	// Skew is the tolerance for clock drift on future timestamps.
	// Defaults to 5s when zero.
	Skew time.Duration
}

// CheckReplayProtection validates an envelope timestamp against the
// freshness window. ts is the envelope's meta.ts, already parsed.
func CheckReplayProtection(ts time.Time, cfg ReplayConfig) error {
	skew := cfg.Skew
	if skew == 0 {
		skew = 5 * time.Second
	}

	now := time.Now()
	if ts.After(now.Add(skew)) {
		metrics.ReplaysRejected.WithLabelValues("future_timestamp").Inc()
		return &VerifyError{Code: ErrReplayTimestampFuture, Err: fmt.Errorf("timestamp %s is in the future", ts)}
	}
	if now.Sub(ts) > cfg.FreshnessWindow {
		metrics.ReplaysRejected.WithLabelValues("stale_timestamp").Inc()
		return &VerifyError{Code: ErrReplayTimestampStale, Err: fmt.Errorf("timestamp %s exceeds freshness window %s", ts, cfg.FreshnessWindow)}
	}
	return nil
}
