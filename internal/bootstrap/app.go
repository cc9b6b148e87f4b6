// Package bootstrap assembles the service from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"hospital-queue/internal/adapters/http/handlers"
	"hospital-queue/internal/adapters/http/middleware"
	"hospital-queue/internal/adapters/http/routes"
	"hospital-queue/internal/adapters/notify"
	"hospital-queue/internal/adapters/persistence/memory"
	"hospital-queue/internal/adapters/persistence/repositories"
	"hospital-queue/internal/adapters/triageai"
	"hospital-queue/internal/config"
	"hospital-queue/internal/core/services"
	"hospital-queue/internal/core/triage"
	"hospital-queue/internal/pkg/ratelimit"
)

// App is a fully wired service
type App struct {
	Fiber    *fiber.App
	Queue    *services.QueueService
	OTP      *services.OTPService
	Triage   *triage.Service
	Notifier *services.QueueNotifyService
	Auto     *services.QueueAutoService

	redis *redis.Client
	log   zerolog.Logger
}

// Stores bundles the persistence ports
type Stores struct {
	Queue    services.QueueStore
	Patients services.PatientStore
	OTP      services.OTPStore
	DBCheck  func() error
}

// MySQLStores binds the GORM repositories to db
func MySQLStores(db *gorm.DB) Stores {
	patients := repositories.NewPatientRepository(db)
	return Stores{
		Queue:    repositories.NewQueueRepository(db),
		Patients: patients,
		OTP:      patients,
		DBCheck:  config.HealthCheck,
	}
}

// MemoryStores returns a seeded in-process store
func MemoryStores() Stores {
	store := memory.NewStore()
	config.SeedMemory(store)
	return Stores{Queue: store, Patients: store, OTP: store}
}

// Option overrides a default collaborator
type Option func(*options)

type options struct {
	otpSender services.OTPSender
}

// WithOTPSender replaces the development log sender
func WithOTPSender(sender services.OTPSender) Option {
	return func(o *options) { o.otpSender = sender }
}

// New wires services, handlers and routes. Redis, the triage model and
// Telegram are enabled only when configured.
func New(ctx context.Context, cfg *config.Config, stores Stores, log zerolog.Logger, opts ...Option) (*App, error) {
	o := options{otpSender: services.LogOTPSender{Log: log}}
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{log: log}

	rdb, err := config.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = rdb

	// Rate limiting
	var bookingLimiter, otpLimiter services.Limiter
	var sweepers []services.Sweeper
	if rdb != nil {
		bookingLimiter = ratelimit.NewRedisLimiter(rdb, "rl:book", cfg.RateLimit.Booking, cfg.RateLimit.Window)
		otpLimiter = ratelimit.NewRedisLimiter(rdb, "rl:otp", cfg.RateLimit.OTP, cfg.RateLimit.Window)
	} else {
		bl := ratelimit.NewMemoryLimiter(cfg.RateLimit.Booking, cfg.RateLimit.Window)
		ol := ratelimit.NewMemoryLimiter(cfg.RateLimit.OTP, cfg.RateLimit.Window)
		bookingLimiter, otpLimiter = bl, ol
		sweepers = append(sweepers, bl, ol)
	}

	// Notification channels
	var channels []services.Channel
	if rdb != nil {
		channels = append(channels, notify.NewRedisPublisher(rdb))
	}
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, tg)
	}

	hub := services.NewSSEHub(log)
	a.Notifier = services.NewQueueNotifyService(hub, log, channels...)

	// Triage
	var model triage.ModelClassifier
	if cfg.TriageAI.APIKey != "" {
		client, err := triageai.NewClient(triageai.Config{
			APIKey:  cfg.TriageAI.APIKey,
			Model:   cfg.TriageAI.Model,
			BaseURL: cfg.TriageAI.BaseURL,
			Timeout: cfg.TriageAI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("triage model: %w", err)
		}
		model = client
	}
	a.Triage = triage.NewService(triage.NewDefaultClassifier(), model, cfg.TriageAI.Timeout, log)

	// Core services
	a.Queue = services.NewQueueService(stores.Queue, a.Notifier, bookingLimiter, log)
	a.OTP = services.NewOTPService(stores.OTP, stores.Patients, otpLimiter, o.otpSender, services.OTPConfig{
		JWTSecret:          cfg.JWT.Secret,
		TokenExpiryMinutes: cfg.JWT.AccessTokenMins,
	}, log)
	a.Auto = services.NewQueueAutoService(stores.Queue, a.Notifier, a.OTP, services.AutoConfig{
		NearlyTurnThreshold: int64(cfg.Queue.NearlyTurnThreshold),
	}, log, sweepers...)

	// HTTP
	a.Fiber = fiber.New(fiber.Config{
		AppName:      "Hospital Queue API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
	})
	middleware.Setup(a.Fiber, cfg, log)
	routes.Setup(a.Fiber, &routes.Handlers{
		Health:     handlers.NewHealthHandler(cfg.AppMode, stores.DBCheck, a.Triage, hub),
		Auth:       handlers.NewAuthHandler(a.OTP),
		Queue:      handlers.NewQueueHandler(a.Queue),
		QueueAdmin: handlers.NewQueueAdminHandler(a.Queue),
		Display:    handlers.NewQueueDisplayHandler(a.Queue, hub),
		Triage:     handlers.NewTriageHandler(a.Triage),
	}, cfg.JWT.Secret)

	return a, nil
}

// Close drains outbound notifications and releases connections
func (a *App) Close() {
	a.Notifier.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("redis close failed")
		}
	}
}
