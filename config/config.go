// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a file, trying YAML then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults fills in zero-valued fields with operational defaults.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Transport.MaxPendingPerConsumer == 0 {
		cfg.Transport.MaxPendingPerConsumer = 100
	}
	if cfg.Transport.HighWaterMark == 0 {
		cfg.Transport.HighWaterMark = 10000
	}
	if cfg.Transport.LowWaterMark == 0 {
		cfg.Transport.LowWaterMark = cfg.Transport.HighWaterMark / 2
	}
	if cfg.Transport.MaxRedeliveries == 0 {
		cfg.Transport.MaxRedeliveries = 5
	}

	if cfg.Registry.Driver == "" {
		cfg.Registry.Driver = "memory"
	}
	if cfg.Registry.SSLMode == "" {
		cfg.Registry.SSLMode = "disable"
	}
	if cfg.Registry.DefaultLeaseDuration == 0 {
		cfg.Registry.DefaultLeaseDuration = 30 * time.Second
	}
	if cfg.Registry.SweepInterval == 0 {
		cfg.Registry.SweepInterval = 10 * time.Second
	}

	if cfg.Security.JWT.Algorithm == "" {
		cfg.Security.JWT.Algorithm = "HS256"
	}
	if cfg.Security.HMAC.Algorithm == "" {
		cfg.Security.HMAC.Algorithm = "SHA256"
	}
	if cfg.Security.FreshnessWindow == 0 {
		cfg.Security.FreshnessWindow = 5 * time.Minute
	}
	if cfg.Security.NonceTTL == 0 {
		cfg.Security.NonceTTL = 10 * time.Minute
	}

	if cfg.Policy.PolicyPath == "" {
		cfg.Policy.PolicyPath = "fabric/allow"
	}
	if cfg.Policy.Timeout == 0 {
		cfg.Policy.Timeout = 500 * time.Millisecond
	}

	if cfg.Logging != nil {
		if cfg.Logging.Level == "" {
			cfg.Logging.Level = "info"
		}
		if cfg.Logging.Format == "" {
			cfg.Logging.Format = "json"
		}
		if cfg.Logging.Output == "" {
			cfg.Logging.Output = "stdout"
		}
	}

	if cfg.Metrics != nil && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Health != nil && cfg.Health.Path == "" {
		cfg.Health.Path = "/health"
	}
}

// ValidationIssue describes a single configuration problem found during
// validation. Level "error" fails loading; "warning" is surfaced but
// does not block startup.
type ValidationIssue struct {
	Field   string
	Message string
	Level   string // error, warning
}

// ValidateConfiguration checks a loaded config for internal consistency.
func ValidateConfiguration(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Registry.Driver != "memory" && cfg.Registry.Driver != "postgres" {
		issues = append(issues, ValidationIssue{
			Field:   "registry.driver",
			Message: fmt.Sprintf("unknown registry driver %q", cfg.Registry.Driver),
			Level:   "error",
		})
	}

	if cfg.Registry.Driver == "postgres" && cfg.Registry.Database == "" {
		issues = append(issues, ValidationIssue{
			Field:   "registry.database",
			Message: "postgres registry driver requires a database name",
			Level:   "error",
		})
	}

	if !cfg.Policy.Disabled && cfg.Policy.BaseURL == "" {
		issues = append(issues, ValidationIssue{
			Field:   "policy.base_url",
			Message: "policy gate is enabled but no base_url is configured",
			Level:   "warning",
		})
	}

	switch cfg.Security.JWT.Algorithm {
	case "HS256":
		if cfg.Security.JWT.Secret == "" {
			issues = append(issues, ValidationIssue{
				Field:   "security.jwt.secret",
				Message: "HS256 requires a shared secret",
				Level:   "error",
			})
		}
	case "RS256":
		if cfg.Security.JWT.PublicKey == "" {
			issues = append(issues, ValidationIssue{
				Field:   "security.jwt.public_key",
				Message: "RS256 requires a public key",
				Level:   "error",
			})
		}
	default:
		issues = append(issues, ValidationIssue{
			Field:   "security.jwt.algorithm",
			Message: fmt.Sprintf("unsupported JWT algorithm %q", cfg.Security.JWT.Algorithm),
			Level:   "error",
		})
	}

	if cfg.Security.HMAC.Secret == "" {
		issues = append(issues, ValidationIssue{
			Field:   "security.hmac.secret",
			Message: "envelope signing requires an HMAC secret",
			Level:   "error",
		})
	}

	return issues
}
