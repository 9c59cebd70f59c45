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

// Package security implements the wire-security layer: bearer and
// capability token verification, envelope HMAC signing, replay
// protection, and idempotency key derivation.
package security

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/a2a-mesh/fabric/internal/metrics"
)

// ErrorCode enumerates the verify() error codes from the bearer token
// and capability token contracts.
type ErrorCode string

const (
	ErrJWTExpired        ErrorCode = "E_JWT_EXPIRED"
	ErrJWTInvalid        ErrorCode = "E_JWT_INVALID"
	ErrJWTInvalidClaims  ErrorCode = "E_JWT_INVALID_CLAIMS"
	ErrJWTSignature      ErrorCode = "E_JWT_SIGNATURE"
)

// VerifyError carries a taxonomy error code alongside the underlying
// parse/verification failure.
type VerifyError struct {
	Code ErrorCode
	Err  error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// JWTConfig configures bearer token verification for one algorithm family.
type JWTConfig struct {
	Algorithm string // HS256, RS256
	Secret    string
	PublicKey *rsa.PublicKey

	// ExpectedIssuer/ExpectedAudience, if set, are enforced in addition
	// to the required claim set.
	ExpectedIssuer   string
	ExpectedAudience string
}

// Claims is the decoded set of bearer-token claims required by §4.4.1:
// sub (agent id), tenant, project, scopes, plus the standard optional
// registered claims.
type Claims struct {
	Subject string   `json:"sub"`
	Tenant  string   `json:"tenant"`
	Project string   `json:"project"`
	Scopes  []string `json:"scopes"`
	Issuer  string   `json:"iss,omitempty"`
	Audience string  `json:"aud,omitempty"`
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Tenant  string   `json:"tenant"`
	Project string   `json:"project"`
	Scopes  []string `json:"scopes"`
}

// VerifyBearerToken parses and validates a signed bearer token,
// returning the decoded claims on success.
func VerifyBearerToken(token string, cfg JWTConfig) (*Claims, error) {
	var claims jwtClaims

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
			metrics.TokenVerifications.WithLabelValues("bearer", "expired").Inc()
			return nil, &VerifyError{Code: ErrJWTExpired, Err: err}
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			metrics.TokenVerifications.WithLabelValues("bearer", "invalid").Inc()
			return nil, &VerifyError{Code: ErrJWTSignature, Err: err}
		}
		metrics.TokenVerifications.WithLabelValues("bearer", "invalid").Inc()
		return nil, &VerifyError{Code: ErrJWTInvalid, Err: err}
	}
	if !parsed.Valid {
		metrics.TokenVerifications.WithLabelValues("bearer", "invalid").Inc()
		return nil, &VerifyError{Code: ErrJWTInvalid, Err: errors.New("token not valid")}
	}

	if claims.Subject == "" || claims.Tenant == "" || claims.Project == "" || len(claims.Scopes) == 0 {
		metrics.TokenVerifications.WithLabelValues("bearer", "invalid").Inc()
		return nil, &VerifyError{Code: ErrJWTInvalidClaims, Err: errors.New("missing required claim")}
	}
	if cfg.ExpectedIssuer != "" && claims.Issuer != cfg.ExpectedIssuer {
		metrics.TokenVerifications.WithLabelValues("bearer", "invalid").Inc()
		return nil, &VerifyError{Code: ErrJWTInvalidClaims, Err: errors.New("issuer mismatch")}
	}
	if cfg.ExpectedAudience != "" && !audienceContains(claims.Audience, cfg.ExpectedAudience) {
		metrics.TokenVerifications.WithLabelValues("bearer", "invalid").Inc()
		return nil, &VerifyError{Code: ErrJWTInvalidClaims, Err: errors.New("audience mismatch")}
	}

	metrics.TokenVerifications.WithLabelValues("bearer", "valid").Inc()
	return &Claims{
		Subject: claims.Subject,
		Tenant:  claims.Tenant,
		Project: claims.Project,
		Scopes:  claims.Scopes,
		Issuer:  claims.Issuer,
	}, nil
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
