package service

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type smtpTestConfig struct {
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		To       string `yaml:"to"`
	} `yaml:"smtp"`
}

func loadSMTPTestConfig(t *testing.T) *smtpTestConfig {
	configPath := "../../config/mail_config.test.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Skip("Skipping SMTP integration test: config/mail_config.test.yaml not found")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Skipf("Skipping SMTP integration test: cannot read config: %v", err)
	}

	var cfg smtpTestConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Skipf("Skipping SMTP integration test: cannot parse config: %v", err)
	}
	if cfg.SMTP.Host == "" || cfg.SMTP.User == "" || cfg.SMTP.Password == "" {
		t.Skip("Skipping SMTP integration test: incomplete SMTP configuration")
	}
	return &cfg
}

// Requires config/mail_config.test.yaml with real SMTP credentials
func TestSMTPLateFeeNotification(t *testing.T) {
	cfg := loadSMTPTestConfig(t)

	svc := NewEmailService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	to := cfg.SMTP.To
	if to == "" {
		to = cfg.SMTP.User
	}

	notice := LateFeeNotice{
		BillNumber:       fmt.Sprintf("TEST-%d", time.Now().Unix()),
		Month:            1,
		Year:             2024,
		DueDate:          time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Days:             10,
		LateFee:          decimal.NewFromInt(500),
		TotalOutstanding: decimal.NewFromInt(1500),
	}
	require.NoError(t, svc.SendLateFeeNotification(context.Background(), to, "Integration Tenant", notice))
}
