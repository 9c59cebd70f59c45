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
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/a2a-mesh/fabric/internal/metrics"
)

// CapabilityToken is a short-lived, signed delegation carrying a
// single grant plus optional resource and constraints (§4.4.2).
type CapabilityToken struct {
	Grant       string                 `json:"grant"`
	Resource    string                 `json:"resource,omitempty"`
	Constraints map[string]interface{} `json:"constraints,omitempty"`
	ExpiresAt   time.Time              `json:"exp"`
}

type capabilityClaims struct {
	jwt.RegisteredClaims
	Grant       string                 `json:"grant"`
	Resource    string                 `json:"resource,omitempty"`
	Constraints map[string]interface{} `json:"constraints,omitempty"`
}

// SignCapabilityToken issues a signed capability token using the same
// algorithm family as bearer tokens.
func SignCapabilityToken(cap CapabilityToken, cfg JWTConfig) (string, error) {
	claims := capabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(cap.ExpiresAt),
		},
		Grant:       cap.Grant,
		Resource:    cap.Resource,
		Constraints: cap.Constraints,
	}

	var method jwt.SigningMethod
	var key interface{}
	switch cfg.Algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
		key = []byte(cfg.Secret)
	case "RS256":
		return "", errors.New("security: RS256 capability signing requires a private key, not supported by this helper")
	default:
		return "", fmt.Errorf("security: unsupported algorithm %q", cfg.Algorithm)
	}

	return jwt.NewWithClaims(method, claims).SignedString(key)
}

// VerifyCapabilityToken parses and validates a capability token,
// returning the decoded grant on success.
func VerifyCapabilityToken(token string, cfg JWTConfig) (*CapabilityToken, error) {
	var claims capabilityClaims

	keyFunc := func(t *jwt.Token) (interface{}, error) {
		switch cfg.Algorithm {
		case "HS256":
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		case "RS256":
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return cfg.PublicKey, nil
		default:
			return nil, fmt.Errorf("unsupported algorithm: %s", cfg.Algorithm)
		}
	}

	parsed, err := jwt.ParseWithClaims(token, &claims, keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			metrics.TokenVerifications.WithLabelValues("capability", "expired").Inc()
			return nil, &VerifyError{Code: ErrJWTExpired, Err: err}
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			metrics.TokenVerifications.WithLabelValues("capability", "invalid").Inc()
			return nil, &VerifyError{Code: ErrJWTSignature, Err: err}
		}
		metrics.TokenVerifications.WithLabelValues("capability", "invalid").Inc()
		return nil, &VerifyError{Code: ErrJWTInvalid, Err: err}
	}
	if !parsed.Valid || claims.Grant == "" {
		metrics.TokenVerifications.WithLabelValues("capability", "invalid").Inc()
		return nil, &VerifyError{Code: ErrJWTInvalidClaims, Err: errors.New("missing grant")}
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	metrics.TokenVerifications.WithLabelValues("capability", "valid").Inc()
	return &CapabilityToken{
		Grant:       claims.Grant,
		Resource:    claims.Resource,
		Constraints: claims.Constraints,
		ExpiresAt:   expiresAt,
	}, nil
}

// AllowsResource reports whether the capability token's grant matches
// required and, when the token narrows to a resource, that resource
// equals the one being accessed.
func (c *CapabilityToken) AllowsResource(required, resource string) bool {
	if !scopeGrants(c.Grant, required) {
		return false
	}
	if c.Resource != "" && c.Resource != resource {
		return false
	}
	return true
}
