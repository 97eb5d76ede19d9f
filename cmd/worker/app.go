package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/notification-pipeline/internal/broker"
	"github.com/kursadbilgin/notification-pipeline/internal/config"
	"github.com/kursadbilgin/notification-pipeline/internal/delivery"
	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/identity"
	"github.com/kursadbilgin/notification-pipeline/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/notification-pipeline/internal/infra/redis"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"github.com/kursadbilgin/notification-pipeline/internal/service"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// app holds the process-wide connections shared by every worker command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	db      *gorm.DB
	rdb     *goredis.Client
	pool    *broker.Pool

	notifications *repository.GormNotificationRepo
	attempts      *repository.GormAttemptRepo
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres initialization failed: %w", err)
	}

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()
	pool, err := broker.NewPool(cfg.RabbitMQURL,
		broker.WithMaxConnections(cfg.BrokerMaxConnections),
		broker.WithLogger(logger),
		broker.WithMetrics(metrics),
	)
	if err != nil {
		_ = rdb.Close()
		closeDB(db)
		return nil, fmt.Errorf("broker pool initialization failed: %w", err)
	}

	return &app{
		cfg:           cfg,
		logger:        logger,
		metrics:       metrics,
		db:            db,
		rdb:           rdb,
		pool:          pool,
		notifications: repository.NewGormNotificationRepo(db),
		attempts:      repository.NewGormAttemptRepo(db),
	}, nil
}

func (a *app) Close() {
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("broker pool close failed", zap.Error(err))
	}
	if err := a.rdb.Close(); err != nil {
		a.logger.Warn("redis close failed", zap.Error(err))
	}
	closeDB(a.db)
	_ = a.logger.Sync()
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) batchConfig() service.BatchConfig {
	return service.BatchConfig{BatchSize: a.cfg.BatchSize, PollTimeout: a.cfg.PollTimeout}
}

func (a *app) intake() (*service.IntakeService, error) {
	intake, err := service.NewIntakeService(a.notifications, a.pool, a.logger)
	if err != nil {
		return nil, err
	}
	intake.SetMetrics(a.metrics)
	return intake, nil
}

func (a *app) former() (*service.FormerService, error) {
	client, err := identity.NewClient(a.cfg.AuthServiceURL)
	if err != nil {
		return nil, err
	}
	store, err := infraredis.NewRedisStore(a.rdb)
	if err != nil {
		return nil, err
	}
	credentials, err := identity.NewCredentialProvider(client, store, a.cfg.AuthLogin, a.cfg.AuthPassword,
		identity.WithTokenTTL(a.cfg.TokenTTL),
		identity.WithCredentialLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}

	former, err := service.NewFormerService(a.notifications, a.pool, credentials, client, a.batchConfig(), a.logger)
	if err != nil {
		return nil, err
	}
	former.SetMetrics(a.metrics)
	return former, nil
}

func (a *app) sender() (*service.SenderService, error) {
	email, err := delivery.NewEmailChannel(delivery.SMTPConfig{
		Enabled:  a.cfg.SMTPEnabled,
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Login:    a.cfg.SMTPLogin,
		Password: a.cfg.SMTPPassword,
		From:     a.cfg.SMTPFrom,
		FromName: a.cfg.SMTPFromName,
		Security: a.cfg.SMTPSecurity,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	registry := delivery.NewRegistry(delivery.NewArchiveChannel(a.logger))
	registry.Register(domain.ChannelEmail, email)

	limiter, err := infraredis.NewSendRateLimiter(a.rdb, a.cfg.SendLimits())
	if err != nil {
		return nil, err
	}

	sender, err := service.NewSenderService(a.notifications, a.attempts, a.pool, registry, limiter, a.batchConfig(), a.logger)
	if err != nil {
		return nil, err
	}
	sender.SetMetrics(a.metrics)
	return sender, nil
}

// runScheduler serves /metrics and runs jobs until ctx is canceled.
func (a *app) runScheduler(ctx context.Context, jobs ...service.Job) error {
	scheduler, err := service.NewScheduler(a.logger, jobs...)
	if err != nil {
		return err
	}

	metricsApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	metricsApp.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))
	go func() {
		if err := metricsApp.Listen(fmt.Sprintf(":%d", a.cfg.MetricsPort)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	defer func() {
		if err := metricsApp.ShutdownWithTimeout(shutdownTimeout); err != nil {
			a.logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}()

	names := make([]string, 0, len(jobs))
	for _, job := range jobs {
		names = append(names, job.Name)
	}
	a.logger.Info("notification-pipeline worker started",
		zap.Strings("jobs", names),
		zap.Int("metricsPort", a.cfg.MetricsPort),
	)

	return scheduler.Start(ctx)
}
