package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  port: 8080
database:
  host: localhost
  user: rentdesk
  database: rentdesk
smtp:
  host: localhost
  port: 1025
jwt:
  secret: test-secret-0123456789abcdef-0123456789
`

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, minimalYAML))
		require.NoError(t, err)

		assert.Equal(t, "development", cfg.Server.Environment)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, "smtp", cfg.Email.Provider)
		assert.Equal(t, 60, cfg.JWT.AccessTokenExpiry)
		assert.Equal(t, "flat_daily", cfg.Penalty.Strategy)
		assert.Equal(t, "50", cfg.Penalty.DailyRate)
		assert.Equal(t, 5, cfg.Penalty.ApplicationDay)
		assert.Equal(t, 600, cfg.Penalty.JobTimeoutSeconds)
		assert.Equal(t, "penalty_events", cfg.RabbitMQ.Queue)
		assert.Equal(t, "0 0 1 5 * *", cfg.Scheduler.ApplyMonthlyPenalties)
		assert.Equal(t, "0 30 2 * * 0", cfg.Scheduler.RecalculateAllPenalties)
		assert.False(t, cfg.IsProduction())
	})

	t.Run("Environment overrides", func(t *testing.T) {
		t.Setenv("PENALTY_RATE", "75.5")
		t.Setenv("PENALTY_APPLICATION_DAY", "10")
		t.Setenv("APP_ENV", "production")
		t.Setenv("REDIS_ADDR", "redis:6379")

		cfg, err := Load(writeConfig(t, minimalYAML))
		require.NoError(t, err)

		assert.Equal(t, "75.5", cfg.Penalty.DailyRate)
		assert.Equal(t, "0 0 1 10 * *", cfg.Scheduler.ApplyMonthlyPenalties)
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
		assert.True(t, cfg.IsProduction())
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Server.Port = 8080
		cfg.Database.Host = "localhost"
		cfg.Database.User = "rentdesk"
		cfg.Database.Database = "rentdesk"
		cfg.SMTP.Host = "localhost"
		cfg.SMTP.Port = 25
		cfg.JWT.Secret = "test-secret-0123456789abcdef-0123456789"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"short jwt secret", func(c *Config) { c.JWT.Secret = "short" }, "at least 32"},
		{"unknown strategy", func(c *Config) { c.Penalty.Strategy = "compound" }, "unsupported penalty strategy"},
		{"negative rate", func(c *Config) { c.Penalty.DailyRate = "-1" }, "must not be negative"},
		{"bad rate", func(c *Config) { c.Penalty.DailyRate = "fifty" }, "invalid penalty daily_rate"},
		{"application day", func(c *Config) { c.Penalty.ApplicationDay = 31 }, "between 1 and 28"},
		{"sendgrid without key", func(c *Config) { c.Email.Provider = "sendgrid" }, "sendgrid api key"},
		{"unknown provider", func(c *Config) { c.Email.Provider = "pigeon" }, "unsupported email provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}

	t.Run("Percentage strategy is case insensitive", func(t *testing.T) {
		cfg := valid()
		cfg.Penalty.Strategy = "PERCENTAGE_CAPPED"
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "percentage_capped", cfg.Penalty.Strategy)
	})
}

func TestGetSecurityLevel(t *testing.T) {
	assert.Equal(t, SecurityPublic, GetSecurityLevel("health"))
	assert.Equal(t, SecurityAccess, GetSecurityLevel("penalty.preview"))
	assert.Equal(t, SecurityManager, GetSecurityLevel("penalty.apply"))
	assert.Equal(t, SecurityManager, GetSecurityLevel("unregistered"))
}
