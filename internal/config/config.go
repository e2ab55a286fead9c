package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Email     EmailConfig     `yaml:"email"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Penalty   PenaltyConfig   `yaml:"penalty"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"` // "development" or "production"
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// SMTPConfig contains email service settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// EmailConfig selects the email provider
type EmailConfig struct {
	Provider       string `yaml:"provider"` // "smtp" or "sendgrid"
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromName       string `yaml:"from_name"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// PenaltyConfig contains late fee settings
type PenaltyConfig struct {
	Strategy          string `yaml:"strategy"`            // "flat_daily" or "percentage_capped"
	DailyRate         string `yaml:"daily_rate"`          // currency units per day overdue
	PercentPerDay     string `yaml:"percent_per_day"`     // percentage_capped only
	PercentCap        string `yaml:"percent_cap"`         // percentage_capped only
	Tolerance         string `yaml:"tolerance"`           // recalculation rewrite threshold
	ApplicationDay    int    `yaml:"application_day"`     // day of month for the monthly sweep
	JobTimeoutSeconds int    `yaml:"job_timeout_seconds"` // per sweep
	LockTTLSeconds    int    `yaml:"lock_ttl_seconds"`
}

// RedisConfig contains the sweep lock connection; empty Addr disables locking
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RabbitMQConfig contains the event broadcaster connection; empty URL logs events instead
type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ApplyMonthlyPenalties   string `yaml:"apply_monthly_penalties"`
	RecalculateAllPenalties string `yaml:"recalculate_all_penalties"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// SMTP
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.SMTP.Password = val
	}
	if val := os.Getenv("SMTP_FROM"); val != "" {
		c.SMTP.From = val
	}

	// Email provider
	if val := os.Getenv("EMAIL_PROVIDER"); val != "" {
		c.Email.Provider = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("APP_ENV"); val != "" {
		c.Server.Environment = val
	}

	// Penalty
	if val := os.Getenv("PENALTY_RATE"); val != "" {
		c.Penalty.DailyRate = val
	}
	if val := os.Getenv("PENALTY_STRATEGY"); val != "" {
		c.Penalty.Strategy = val
	}
	if val := os.Getenv("PENALTY_APPLICATION_DAY"); val != "" {
		fmt.Sscanf(val, "%d", &c.Penalty.ApplicationDay)
	}

	// Redis / RabbitMQ
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}
	if val := os.Getenv("RABBITMQ_URL"); val != "" {
		c.RabbitMQ.URL = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Email.Provider == "" {
		c.Email.Provider = "smtp"
	}
	switch c.Email.Provider {
	case "smtp":
		if c.SMTP.Host == "" {
			return fmt.Errorf("SMTP host is required")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("invalid SMTP port: %d", c.SMTP.Port)
		}
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" {
			return fmt.Errorf("sendgrid api key is required")
		}
	default:
		return fmt.Errorf("unsupported email provider: %s", c.Email.Provider)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry <= 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	if err := c.Penalty.validate(); err != nil {
		return err
	}

	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "penalty_events"
	}

	if c.Scheduler.ApplyMonthlyPenalties == "" {
		// Application day of each month at 1 AM UTC
		c.Scheduler.ApplyMonthlyPenalties = fmt.Sprintf("0 0 1 %d * *", c.Penalty.ApplicationDay)
	}
	if c.Scheduler.RecalculateAllPenalties == "" {
		c.Scheduler.RecalculateAllPenalties = "0 30 2 * * 0" // Sundays at 2:30 AM UTC
	}

	return nil
}

func (p *PenaltyConfig) validate() error {
	if p.Strategy == "" {
		p.Strategy = "flat_daily"
	}
	p.Strategy = strings.ToLower(p.Strategy)
	if p.Strategy != "flat_daily" && p.Strategy != "percentage_capped" {
		return fmt.Errorf("unsupported penalty strategy: %s", p.Strategy)
	}

	if p.DailyRate == "" {
		p.DailyRate = "50"
	}
	if p.PercentPerDay == "" {
		p.PercentPerDay = "1"
	}
	if p.PercentCap == "" {
		p.PercentCap = "25"
	}
	if p.Tolerance == "" {
		p.Tolerance = "1"
	}
	for name, val := range map[string]string{
		"daily_rate":      p.DailyRate,
		"percent_per_day": p.PercentPerDay,
		"percent_cap":     p.PercentCap,
		"tolerance":       p.Tolerance,
	} {
		d, err := decimal.NewFromString(val)
		if err != nil {
			return fmt.Errorf("invalid penalty %s %q: %w", name, val, err)
		}
		if d.IsNegative() {
			return fmt.Errorf("penalty %s must not be negative", name)
		}
	}

	if p.ApplicationDay == 0 {
		p.ApplicationDay = 5
	}
	if p.ApplicationDay < 1 || p.ApplicationDay > 28 {
		return fmt.Errorf("penalty application day must be between 1 and 28: %d", p.ApplicationDay)
	}
	if p.JobTimeoutSeconds <= 0 {
		p.JobTimeoutSeconds = 600
	}
	if p.LockTTLSeconds <= 0 {
		p.LockTTLSeconds = 900
	}
	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether detailed error messages must be hidden
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}
