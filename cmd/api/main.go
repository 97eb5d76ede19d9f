package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/notification-pipeline/internal/broker"
	"github.com/kursadbilgin/notification-pipeline/internal/config"
	"github.com/kursadbilgin/notification-pipeline/internal/handler"
	"github.com/kursadbilgin/notification-pipeline/internal/infra/postgresql"
	"github.com/kursadbilgin/notification-pipeline/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notification-pipeline/internal/infra/redis"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"github.com/kursadbilgin/notification-pipeline/internal/service"
	"github.com/kursadbilgin/notification-pipeline/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	metrics := observability.NewMetrics()

	pool, err := broker.NewPool(cfg.RabbitMQURL,
		broker.WithMaxConnections(cfg.BrokerMaxConnections),
		broker.WithLogger(logger),
		broker.WithMetrics(metrics),
	)
	if err != nil {
		logger.Fatal("broker pool initialization failed", zap.Error(err))
	}
	defer pool.Close()

	intake, err := service.NewIntakeService(repository.NewGormNotificationRepo(db), pool, logger)
	if err != nil {
		logger.Fatal("intake initialization failed", zap.Error(err))
	}
	intake.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "notification-pipeline",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	for _, h := range transport.RequestTrace() {
		app.Use(h)
	}
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, pool)
	if err := handler.RegisterNotificationRoutes(app, intake); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()
	logger.Info("notification-pipeline api started", zap.Int("port", cfg.APIPort))

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("http server shutdown failed", zap.Error(err))
		}
	}
}
