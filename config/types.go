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

// Package config provides configuration management for the fabric.
package config

import "time"

// Config represents the main configuration structure. It holds no
// package-level state of its own; every component is constructed by
// passing the relevant section explicitly.
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	Transport   TransportConfig `yaml:"transport" json:"transport"`
	Registry    RegistryConfig  `yaml:"registry" json:"registry"`
	Security    SecurityConfig  `yaml:"security" json:"security"`
	Policy      PolicyConfig    `yaml:"policy" json:"policy"`
	Logging     *LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health      *HealthConfig   `yaml:"health" json:"health"`
}

// TransportConfig configures the durable streaming transport.
type TransportConfig struct {
	// MaxPendingPerConsumer bounds in-flight unacked deliveries per
	// (group, consumer) before backpressure kicks in.
	MaxPendingPerConsumer int `yaml:"max_pending_per_consumer" json:"max_pending_per_consumer"`
	// HighWaterMark/LowWaterMark bound a topic's unacked depth overall.
	HighWaterMark int `yaml:"high_water_mark" json:"high_water_mark"`
	LowWaterMark  int `yaml:"low_water_mark" json:"low_water_mark"`
	// MaxRedeliveries caps how many times a nacked message is retried
	// before it is routed to the topic's dead-letter queue.
	MaxRedeliveries int `yaml:"max_redeliveries" json:"max_redeliveries"`
	// ValidateOnPublish/ValidateOnSubscribe gate whether envelopes are
	// re-validated at each transport boundary.
	ValidateOnPublish   bool `yaml:"validate_on_publish" json:"validate_on_publish"`
	ValidateOnSubscribe bool `yaml:"validate_on_subscribe" json:"validate_on_subscribe"`
}

// RegistryConfig configures the leased agent registry's storage backend.
type RegistryConfig struct {
	Driver string `yaml:"driver" json:"driver"` // postgres, memory

	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`

	// DefaultLeaseDuration is loaded and defaulted with the rest of the
	// config, but the registry stores do not read it: a registration or
	// heartbeat without a lease duration gets the stores' fixed 60s lease.
	DefaultLeaseDuration time.Duration `yaml:"default_lease_duration" json:"default_lease_duration"`
	// SweepInterval is how often the lease-expiry sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// SecurityConfig configures the wire security layer.
type SecurityConfig struct {
	JWT  JWTConfig  `yaml:"jwt" json:"jwt"`
	HMAC HMACConfig `yaml:"hmac" json:"hmac"`
	// FreshnessWindow bounds how far an envelope's timestamp may drift
	// from the verifier's clock before replay protection rejects it.
	FreshnessWindow time.Duration `yaml:"freshness_window" json:"freshness_window"`
	// NonceTTL controls how long a seen nonce is retained for dedup.
	NonceTTL time.Duration `yaml:"nonce_ttl" json:"nonce_ttl"`
}

// JWTConfig configures bearer and capability token verification.
type JWTConfig struct {
	Algorithm string `yaml:"algorithm" json:"algorithm"` // HS256, RS256
	Secret    string `yaml:"secret" json:"secret"`
	PublicKey string `yaml:"public_key" json:"public_key"` // PEM, for RS256
}

// HMACConfig configures envelope signing.
type HMACConfig struct {
	Algorithm string `yaml:"algorithm" json:"algorithm"` // SHA256, SHA512
	Secret    string `yaml:"secret" json:"secret"`
}

// PolicyConfig configures the pre-send/post-receive policy gate.
type PolicyConfig struct {
	Disabled   bool          `yaml:"disabled" json:"disabled"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	PolicyPath string        `yaml:"policy_path" json:"policy_path"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig represents health check configuration.
type HealthConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Port    int      `yaml:"port" json:"port"`
	Path    string   `yaml:"path" json:"path"`
	Checks  []string `yaml:"checks" json:"checks"`
}
