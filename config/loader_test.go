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
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoConfigFilesFallsBackToDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(LoaderOptions{
		ConfigDir:      tmpDir,
		Environment:    "development",
		SkipValidation: true,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "development")
	}
	if cfg.Registry.Driver != "memory" {
		t.Errorf("Registry.Driver = %q, want %q", cfg.Registry.Driver, "memory")
	}
}

func TestLoad_EnvironmentSpecificFileWins(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "default.yaml"), []byte("environment: default-file\n"), 0644); err != nil {
		t.Fatalf("failed writing fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "staging.yaml"), []byte("environment: staging\n"), 0644); err != nil {
		t.Fatalf("failed writing fixture: %v", err)
	}

	cfg, err := Load(LoaderOptions{
		ConfigDir:      tmpDir,
		Environment:    "staging",
		SkipValidation: true,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "staging" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "staging")
	}
}

func TestLoad_FallsBackToDefaultYAML(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "default.yaml"), []byte("environment: from-default\n"), 0644); err != nil {
		t.Fatalf("failed writing fixture: %v", err)
	}

	cfg, err := Load(LoaderOptions{
		ConfigDir:      tmpDir,
		Environment:    "nonexistent-env",
		SkipValidation: true,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "from-default" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "from-default")
	}
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	tmpDir := t.TempDir()
	os.Setenv("A2AFABRIC_REGISTRY_HOST", "override-host")
	os.Setenv("A2AFABRIC_LOG_LEVEL", "debug")
	defer os.Unsetenv("A2AFABRIC_REGISTRY_HOST")
	defer os.Unsetenv("A2AFABRIC_LOG_LEVEL")

	configContent := `environment: test
registry:
  driver: memory
  host: file-host
logging:
  level: info
  format: json
`
	if err := os.WriteFile(filepath.Join(tmpDir, "test.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed writing fixture: %v", err)
	}

	cfg, err := Load(LoaderOptions{
		ConfigDir:      tmpDir,
		Environment:    "test",
		SkipValidation: true,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Registry.Host != "override-host" {
		t.Errorf("Registry.Host = %q, want %q", cfg.Registry.Host, "override-host")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_ValidationFailureSurfacesError(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `environment: test
security:
  jwt:
    algorithm: HS256
`
	if err := os.WriteFile(filepath.Join(tmpDir, "test.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed writing fixture: %v", err)
	}

	_, err := Load(LoaderOptions{
		ConfigDir:   tmpDir,
		Environment: "test",
	})
	if err == nil {
		t.Fatal("expected validation error for missing HMAC secret, got nil")
	}
}

func TestDefaultLoaderOptions(t *testing.T) {
	opts := DefaultLoaderOptions()

	if opts.ConfigDir != "config" {
		t.Errorf("ConfigDir = %q, want %q", opts.ConfigDir, "config")
	}
	if opts.SkipEnvSubstitution {
		t.Error("SkipEnvSubstitution should be false by default")
	}
	if opts.SkipValidation {
		t.Error("SkipValidation should be false by default")
	}
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected MustLoad to panic on invalid config")
		}
	}()

	tmpDir := t.TempDir()
	configContent := "environment: test\nsecurity:\n  jwt:\n    algorithm: HS256\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "test.yaml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed writing fixture: %v", err)
	}

	MustLoad(LoaderOptions{ConfigDir: tmpDir, Environment: "test"})
}
