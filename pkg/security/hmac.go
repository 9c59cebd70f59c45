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
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/a2a-mesh/fabric/internal/metrics"
	"github.com/a2a-mesh/fabric/pkg/envelope"
)

// ErrSignatureMismatch is the E_SIGNATURE_MISMATCH error kind.
const ErrSignatureMismatch ErrorCode = "E_SIGNATURE_MISMATCH"

// HMACConfig configures envelope signing.
type HMACConfig struct {
	Algorithm string // sha256, sha512
	SecretKey string
}

func newHash(algorithm, secretKey string) (hash.Hash, error) {
	switch algorithm {
	case "sha256", "SHA256":
		return hmac.New(sha256.New, []byte(secretKey)), nil
	case "sha512", "SHA512":
		return hmac.New(sha512.New, []byte(secretKey)), nil
	default:
		return nil, fmt.Errorf("security: unsupported HMAC algorithm %q", algorithm)
	}
}

// SignEnvelope computes the hex-encoded HMAC signature over the
// envelope's canonical form (§4.4.3).
func SignEnvelope(e *envelope.Envelope, cfg HMACConfig) (string, error) {
	mac, err := newHash(cfg.Algorithm, cfg.SecretKey)
	if err != nil {
		return "", err
	}

	canonical, err := envelope.Canonicalize(e)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize envelope: %w", err)
	}

	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyEnvelopeSignature recomputes the HMAC over the envelope's
// canonical form and compares it against signature in constant time.
func VerifyEnvelopeSignature(e *envelope.Envelope, signature string, cfg HMACConfig) error {
	expected, err := SignEnvelope(e, cfg)
	if err != nil {
		return err
	}

	expectedBytes, err := hex.DecodeString(expected)
	if err != nil {
		return fmt.Errorf("security: malformed computed signature: %w", err)
	}
	gotBytes, err := hex.DecodeString(signature)
	if err != nil {
		return &VerifyError{Code: ErrSignatureMismatch, Err: fmt.Errorf("malformed signature encoding: %w", err)}
	}

	if subtle.ConstantTimeCompare(expectedBytes, gotBytes) != 1 {
		metrics.SignatureVerifications.WithLabelValues("invalid").Inc()
		return &VerifyError{Code: ErrSignatureMismatch, Err: fmt.Errorf("signature does not match")}
	}
	metrics.SignatureVerifications.WithLabelValues("valid").Inc()
	return nil
}
