// Package app assembles the penalty engine and its collaborators from
// configuration. Both the API server and the cron runner start here.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rentdesk-backend/internal/clock"
	"rentdesk-backend/internal/config"
	"rentdesk-backend/internal/event"
	"rentdesk-backend/internal/lock"
	"rentdesk-backend/internal/logger"
	"rentdesk-backend/internal/penalty"
	"rentdesk-backend/internal/repository/postgres"
	"rentdesk-backend/internal/service"
)

// App holds the wired penalty service and the connections it owns
type App struct {
	Config    *config.Config
	Clock     clock.Clock
	Store     *postgres.Store
	Penalties service.PenaltyService

	rabbit *event.RabbitMQConnection
	redis  *redis.Client
}

// New wires the penalty service on top of db. Optional brokers (Redis for
// the sweep lock, RabbitMQ for events) are connected only when configured.
func New(ctx context.Context, cfg *config.Config, db *sql.DB) (*App, error) {
	policy, err := penalty.ParsePolicy(
		cfg.Penalty.Strategy,
		cfg.Penalty.DailyRate,
		cfg.Penalty.PercentPerDay,
		cfg.Penalty.PercentCap,
		cfg.Penalty.Tolerance,
	)
	if err != nil {
		return nil, fmt.Errorf("penalty policy: %w", err)
	}

	a := &App{
		Config: cfg,
		Clock:  clock.Real(),
		Store:  postgres.NewStore(db),
	}

	broadcaster, err := a.broadcaster()
	if err != nil {
		return nil, err
	}

	notifier := service.NewNotifier(
		a.Store.TenantRepository,
		a.Store.NotificationRepository,
		emailService(cfg),
		broadcaster,
	)

	var opts []service.PenaltyOption
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("Sweep lock enabled", "addr", cfg.Redis.Addr)
		ttl := time.Duration(cfg.Penalty.LockTTLSeconds) * time.Second
		opts = append(opts, service.WithSweepLock(lock.NewLocker(a.redis), ttl))
	} else {
		logger.Warn("Redis not configured, sweeps run without a distributed lock")
	}

	a.Penalties = service.NewPenaltyService(a.Store.BillRepository, penalty.NewEngine(policy), notifier, opts...)
	logger.Info("Penalty engine ready", "strategy", cfg.Penalty.Strategy, "dailyRate", cfg.Penalty.DailyRate)
	return a, nil
}

func (a *App) broadcaster() (service.Broadcaster, error) {
	if a.Config.RabbitMQ.URL == "" {
		logger.Info("RabbitMQ not configured, penalty events are logged only")
		return event.LogBroadcaster{}, nil
	}
	conn, err := event.ConnectRabbitMQ(a.Config.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	pub, err := event.NewPublisher(conn.Channel, a.Config.RabbitMQ.Queue)
	if err != nil {
		conn.Close()
		return nil, err
	}
	a.rabbit = conn
	return pub, nil
}

func emailService(cfg *config.Config) service.EmailService {
	if cfg.Email.Provider == "sendgrid" {
		logger.Info("Using SendGrid email provider")
		return service.NewSendGridEmailService(cfg.Email.SendGridAPIKey, cfg.SMTP.From, cfg.Email.FromName)
	}
	logger.Info("Using SMTP email provider", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
	return service.NewEmailService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
}

// Close releases the broker connections. The database is owned by the caller.
func (a *App) Close() {
	if a.rabbit != nil {
		a.rabbit.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}
}
