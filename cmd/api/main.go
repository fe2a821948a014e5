package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/config"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/handler"
	"github.com/kursadbilgin/notify-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/notify-engine/internal/infra/redis"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"github.com/kursadbilgin/notify-engine/internal/provider"
	"github.com/kursadbilgin/notify-engine/internal/queue"
	"github.com/kursadbilgin/notify-engine/internal/repository"
	"github.com/kursadbilgin/notify-engine/internal/scheduler"
	"github.com/kursadbilgin/notify-engine/internal/service"
	"github.com/kursadbilgin/notify-engine/internal/transport"
	"github.com/kursadbilgin/notify-engine/internal/webhook"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notify-engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer mq.Close()

	metrics := observability.NewMetrics()

	notificationRepo := repository.NewGormNotificationRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	webhookRepo := repository.NewGormWebhookRepo(db)
	deliveryRepo := repository.NewGormWebhookDeliveryRepo(db)
	taskRepo := repository.NewGormTaskRepo(db)

	dedupIndex, err := infraredis.NewRedisDedupIndex(rdb, cfg.DedupTTL())
	if err != nil {
		return err
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return err
	}

	taskScheduler, err := scheduler.NewTaskScheduler(taskRepo, cfg.SchedulerScanInterval(), 0, logger)
	if err != nil {
		return err
	}

	registry, err := buildProviderRegistry(cfg)
	if err != nil {
		return err
	}

	dispatcher, err := webhook.NewDispatcher(
		webhookRepo,
		deliveryRepo,
		webhook.NewSender(),
		taskScheduler,
		cfg.WebhookConcurrency,
		logger,
	)
	if err != nil {
		return err
	}
	dispatcher.SetMetrics(metrics)

	publisher := queue.NewRabbitMQPublisher(mq)
	consumer := queue.NewRabbitMQConsumer(mq, 1, logger)

	dispatchService, err := service.NewDispatchService(
		notificationRepo, attemptRepo, dedupIndex, publisher, taskScheduler, dispatcher, logger,
	)
	if err != nil {
		return err
	}
	dispatchService.SetMetrics(metrics)

	workerService, err := service.NewWorkerService(
		notificationRepo,
		attemptRepo,
		consumer,
		publisher,
		registry,
		limiter,
		taskScheduler,
		dispatcher,
		cfg.HighLaneConcurrency,
		cfg.DefaultLaneConcurrency,
		cfg.ProviderTimeout(),
		logger,
	)
	if err != nil {
		return err
	}
	workerService.SetMetrics(metrics)

	recoveryService, err := service.NewRecoveryService(
		notificationRepo,
		taskScheduler,
		dispatcher,
		cfg.StaleSendingThreshold(),
		0,
		logger,
	)
	if err != nil {
		return err
	}
	recoveryService.SetMetrics(metrics)

	webhookService, err := service.NewWebhookService(webhookRepo, deliveryRepo, logger)
	if err != nil {
		return err
	}

	if err := taskScheduler.RegisterHandler(scheduler.TaskNotificationRetry, workerService.RetryHandler()); err != nil {
		return err
	}
	if err := taskScheduler.RegisterHandler(scheduler.TaskWebhookRetry, dispatcher.RetryHandler()); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:      "notify-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, mq)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterNotificationRoutes(app, dispatchService); err != nil {
		return err
	}
	if err := handler.RegisterWebhookRoutes(app, webhookService); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return taskScheduler.Start(gCtx) })
	g.Go(func() error { return dispatcher.Start(gCtx) })
	g.Go(func() error { return workerService.Start(gCtx) })
	g.Go(func() error { return recoveryService.Start(gCtx) })
	g.Go(func() error {
		logger.Info("notify-engine api started",
			zap.Int("port", cfg.APIPort),
			zap.Strings("providers", registry.List()),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gCtx.Done()
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("notify-engine stopped")
	return nil
}

func buildProviderRegistry(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	entries := []struct {
		id      string
		url     string
		channel domain.Channel
	}{
		{"sms-primary", cfg.SMSProviderURL, domain.ChannelSMS},
		{"email-primary", cfg.EmailProviderURL, domain.ChannelEmail},
		{"whatsapp-primary", cfg.WhatsAppProviderURL, domain.ChannelWhatsApp},
	}

	for _, e := range entries {
		if strings.TrimSpace(e.url) == "" {
			continue
		}
		p, err := provider.NewHTTPProvider(e.url, cfg.ProviderTimeout())
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", e.id, err)
		}
		if err := registry.Register(provider.Entry{
			ID:       e.id,
			Priority: 1,
			Active:   true,
			Channels: []domain.Channel{e.channel},
			Provider: p,
		}); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
