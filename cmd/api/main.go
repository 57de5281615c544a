package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/identity-service/internal/api/http"
	"github.com/spec-kit/identity-service/internal/api/http/handlers"
	"github.com/spec-kit/identity-service/internal/auth"
	"github.com/spec-kit/identity-service/internal/config"
	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/messaging"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/outbox"
	"github.com/spec-kit/identity-service/internal/persistence"
	"github.com/spec-kit/identity-service/internal/repository"
	"github.com/spec-kit/identity-service/internal/repository/memory"
	"github.com/spec-kit/identity-service/internal/retry"
	"github.com/spec-kit/identity-service/internal/service"
	"github.com/spec-kit/identity-service/internal/uow"
	"github.com/spec-kit/identity-service/internal/worker"
)

const relayLockKey = "identity-service:outbox-relay"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var store repository.Transactor
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPgTransactor(pg.Pool)
	} else {
		logger.Warn("POSTGRES_DSN not set, using in-memory store")
		store = memory.NewStore()
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var locker worker.Locker = worker.NoopLocker{}
	if redis.Enabled() {
		locker = worker.NewRedisLocker(redis.Client, relayLockKey, cfg.Relay.LockTTL())
	}

	policy := retry.NewPolicy(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
	}, retry.WithLogger(logger))
	codec := outbox.NewDomainCodec()
	factory := uow.NewFactory(store, policy, outbox.NewWriter(codec), logger)

	deps := service.Dependencies{
		UnitOfWork:      factory,
		Hasher:          auth.NewHasher(cfg.Auth.BcryptCost),
		Tokens:          auth.NewTokenProvider(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes, nil),
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL(),
		Logger:          logger,
	}
	accountService := service.NewAccountService(deps)
	authService := service.NewAuthService(deps)
	passwordService := service.NewPasswordService(deps)

	bus, closeBus := newMessageBus(cfg.Broker, codec, logger)
	defer closeBus()

	dispatcher := events.NewDispatcher()
	worker.RegisterEventHandlers(dispatcher,
		service.NewSessionRevoker(logger),
		service.NewNotificationService(bus, logger))

	metrics := observability.NewMetrics()
	relay := worker.NewOutboxRelay(worker.RelayDependencies{
		UnitOfWork: factory,
		Codec:      codec,
		Dispatcher: dispatcher,
		Locker:     locker,
		Metrics:    metrics,
		Logger:     logger,
		Interval:   cfg.Relay.Interval(),
		BatchSize:  cfg.Relay.BatchSize,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Accounts:       handlers.NewAccountsHandler(accountService),
		Auth:           handlers.NewAuthHandler(authService),
		Passwords:      handlers.NewPasswordHandler(passwordService),
		AuthMiddleware: auth.NewAuthMiddleware(authService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	cancel()
	wg.Wait()
}

func newMessageBus(cfg config.BrokerConfig, codec *outbox.Codec, logger *zap.Logger) (service.MessageBus, func()) {
	if cfg.URL == "" {
		logger.Warn("BROKER_URL not set, relayed events are only logged")
		return messaging.NewLogPublisher(logger), func() {}
	}
	publisher, err := messaging.Dial(cfg.URL, cfg.Exchange, codec, logger)
	if err != nil {
		logger.Fatal("failed to connect broker", zap.Error(err))
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("broker close", zap.Error(err))
		}
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
