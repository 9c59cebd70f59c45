package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `environment: staging

registry:
  driver: postgres
  host: db.internal
  database: fabric
  default_lease_duration: 45s
  sweep_interval: 15s

security:
  jwt:
    algorithm: HS256
    secret: topsecret
  hmac:
    algorithm: SHA256
    secret: hmac-secret

policy:
  base_url: "http://policy.internal:8181"

logging:
  level: "debug"
  format: "json"
  output: "stdout"`

	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "postgres", cfg.Registry.Driver)
	assert.Equal(t, "db.internal", cfg.Registry.Host)
	assert.Equal(t, "fabric", cfg.Registry.Database)
	assert.Equal(t, "HS256", cfg.Security.JWT.Algorithm)
	assert.Equal(t, "http://policy.internal:8181", cfg.Policy.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.Registry.Driver)
	assert.Equal(t, 100, cfg.Transport.MaxPendingPerConsumer)
	assert.Equal(t, 10000, cfg.Transport.HighWaterMark)
	assert.Equal(t, 5000, cfg.Transport.LowWaterMark)
	assert.Equal(t, 5, cfg.Transport.MaxRedeliveries)
	assert.Equal(t, "HS256", cfg.Security.JWT.Algorithm)
	assert.Equal(t, "SHA256", cfg.Security.HMAC.Algorithm)
	assert.Equal(t, "fabric/allow", cfg.Policy.PolicyPath)
}

func TestSetDefaults_DoesNotOverrideExplicitValues(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		Registry:    RegistryConfig{Driver: "postgres"},
	}
	setDefaults(cfg)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "postgres", cfg.Registry.Driver)
}

func TestValidateConfiguration(t *testing.T) {
	t.Run("valid memory+HS256 config", func(t *testing.T) {
		cfg := &Config{
			Registry: RegistryConfig{Driver: "memory"},
			Security: SecurityConfig{
				JWT:  JWTConfig{Algorithm: "HS256", Secret: "s"},
				HMAC: HMACConfig{Secret: "s"},
			},
			Policy: PolicyConfig{Disabled: true},
		}
		issues := ValidateConfiguration(cfg)
		assert.Empty(t, issues)
	})

	t.Run("unknown registry driver", func(t *testing.T) {
		cfg := &Config{
			Registry: RegistryConfig{Driver: "mongo"},
			Security: SecurityConfig{
				JWT:  JWTConfig{Algorithm: "HS256", Secret: "s"},
				HMAC: HMACConfig{Secret: "s"},
			},
			Policy: PolicyConfig{Disabled: true},
		}
		issues := ValidateConfiguration(cfg)
		require.NotEmpty(t, issues)
		assert.Equal(t, "registry.driver", issues[0].Field)
		assert.Equal(t, "error", issues[0].Level)
	})

	t.Run("postgres without database name", func(t *testing.T) {
		cfg := &Config{
			Registry: RegistryConfig{Driver: "postgres"},
			Security: SecurityConfig{
				JWT:  JWTConfig{Algorithm: "HS256", Secret: "s"},
				HMAC: HMACConfig{Secret: "s"},
			},
			Policy: PolicyConfig{Disabled: true},
		}
		issues := ValidateConfiguration(cfg)
		found := false
		for _, i := range issues {
			if i.Field == "registry.database" {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("HS256 without secret", func(t *testing.T) {
		cfg := &Config{
			Registry: RegistryConfig{Driver: "memory"},
			Security: SecurityConfig{
				JWT:  JWTConfig{Algorithm: "HS256"},
				HMAC: HMACConfig{Secret: "s"},
			},
			Policy: PolicyConfig{Disabled: true},
		}
		issues := ValidateConfiguration(cfg)
		found := false
		for _, i := range issues {
			if i.Field == "security.jwt.secret" {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("policy enabled without base url is a warning, not an error", func(t *testing.T) {
		cfg := &Config{
			Registry: RegistryConfig{Driver: "memory"},
			Security: SecurityConfig{
				JWT:  JWTConfig{Algorithm: "HS256", Secret: "s"},
				HMAC: HMACConfig{Secret: "s"},
			},
		}
		issues := ValidateConfiguration(cfg)
		for _, i := range issues {
			if i.Field == "policy.base_url" {
				assert.Equal(t, "warning", i.Level)
			}
		}
	})
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "out.yaml")
	jsonPath := filepath.Join(tmpDir, "out.json")

	cfg := &Config{Environment: "test"}
	setDefaults(cfg)

	require.NoError(t, SaveToFile(cfg, yamlPath))
	require.NoError(t, SaveToFile(cfg, jsonPath))

	reloaded, err := LoadFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "test", reloaded.Environment)
}
