package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/lorrc/backoffice-realtime/internal/adapters/primary/http"
	mw "github.com/lorrc/backoffice-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/backoffice-realtime/internal/adapters/primary/websocket"
	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/kafkabroker"
	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/localcache"
	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/memorybroker"
	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/postgres"
	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/redisbroker"
	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/rediscache"
	"github.com/lorrc/backoffice-realtime/internal/auth"
	"github.com/lorrc/backoffice-realtime/internal/config"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/core/services"
	"github.com/lorrc/backoffice-realtime/internal/core/txsync"
	"github.com/lorrc/backoffice-realtime/internal/infrastructure/logging"
	"github.com/lorrc/backoffice-realtime/internal/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// 3. Initialize Database Pool
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	pool, err := postgres.Connect(ctx, cfg.Database.URL, int32(cfg.Database.MaxConns))
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connection established")

	// 4. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// 5. Message Broker
	broker, err := openBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := broker.Close(); err != nil {
			logger.Error("broker close failed", "error", err)
		}
	}()
	logger.Info("message broker connected", "driver", cfg.Broker.Driver)

	source := cfg.App.Name
	adapter := services.NewBrokerAdapter(broker, cfg.Broker.ChannelPrefix, source, logger, m).
		WithPublishTimeout(cfg.Broker.PublishTimeout)
	router := services.NewMessageRouter(adapter, source, logger, m)

	// 6. Caches
	l1Config := localcache.DefaultConfig()
	l1Config.Capacity = cfg.Cache.Capacity
	l1Config.NumShards = cfg.Cache.Shards
	l1Config.TTL = cfg.Cache.TTL
	l1, err := localcache.New(l1Config, logger)
	if err != nil {
		return err
	}

	backends := []ports.CacheInvalidator{l1}
	if cfg.Cache.RedisEnabled {
		cacheClient, err := rediscache.Connect(ctx, rediscache.Config{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Broker.RedisPassword,
			DB:       cfg.Broker.RedisDB,
		})
		if err != nil {
			return err
		}
		defer cacheClient.Close()
		backends = append(backends, rediscache.NewInvalidator(cacheClient, cfg.Cache.RedisPrefix, logger))
	}
	invalidator := services.NewCompositeInvalidator(backends...)

	// 7. Dependency Injection (Wiring the Hexagon)
	coordinator := services.NewOutboxCoordinator(invalidator, router, source, logger, m)
	txManager := postgres.NewTransactionManager(pool, txsync.NewExecutor(logger))
	catalogRepo := postgres.NewCatalogRepository(pool)
	catalogService := services.NewCatalogService(catalogRepo, txManager, coordinator, l1, logger)

	health := services.NewHealthMonitor(services.HealthConfig{
		SweepInterval:     cfg.Health.SweepInterval,
		BroadcastInterval: cfg.Health.BroadcastInterval,
		StaleThreshold:    cfg.Health.StaleThreshold,
	}, router, source, logger, m)

	var fanout *services.FanoutSubscriber
	recovery := services.NewErrorRecoveryManager(services.RecoveryConfig{
		MaxRetryAttempts: cfg.Recovery.MaxAttempts,
		BaseDelay:        cfg.Recovery.BaseDelay,
		MaxDelay:         cfg.Recovery.MaxDelay,
		Retention:        cfg.Recovery.Retention,
	}, adapter, router, services.TimeScheduler{}, func() bool {
		return fanout != nil && fanout.Running()
	}, source, logger, m)
	defer recovery.Close()
	health.OnSweep(func(now time.Time) { recovery.Cleanup(now) })

	hub := websocket.NewHub(health, recovery, logger)
	fanout = services.NewFanoutSubscriber(adapter, hub, logger, m)

	// 8. Initialize Security & Rate Limiting
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, cfg.JWT.Issuer)

	var rateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		defer rateLimiter.Stop()
	}

	// 9. Handlers (Primary Adapters)
	stats := map[string]httpAdapter.StatsFunc{
		"router": func() any { return router.Stats() },
		"broker": func() any { return adapter.Stats() },
		"fanout": func() any { return fanout.Stats() },
		"hub":    func() any { return map[string]int{"clients": hub.ClientCount()} },
	}
	if kb, ok := broker.(*kafkabroker.Broker); ok {
		stats["kafka"] = func() any { return kb.Stats() }
	}

	errorHandler := httpAdapter.NewErrorHandler(logger)
	handler := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Logger:         logger,
		TokenManager:   tokenManager,
		RateLimiter:    rateLimiter,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		Health: httpAdapter.NewHealthHandler(map[string]httpAdapter.HealthChecker{
			"database": pool,
			"broker":   httpAdapter.HealthCheckerFunc(adapter.Ping),
		}, cfg.App.Version),
		Realtime:  httpAdapter.NewRealtimeHandler(health, recovery, catalogService, stats, errorHandler, logger),
		Catalog:   httpAdapter.NewCatalogHandler(catalogService, errorHandler, logger),
		WebSocket: httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg, logger),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 10. Run until a signal arrives or a component fails
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return fanout.Run(gctx) })
	g.Go(func() error { return health.Start(gctx) })
	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openBroker connects the configured broker driver.
func openBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.Broker, error) {
	switch cfg.Broker.Driver {
	case config.BrokerKafka:
		broker, err := kafkabroker.New(kafkabroker.Config{
			Brokers:      cfg.Broker.KafkaBrokers,
			GroupPrefix:  cfg.Broker.KafkaGroupPrefix,
			InstanceID:   cfg.App.InstanceID,
			MaxWait:      500 * time.Millisecond,
			WriteTimeout: cfg.Broker.PublishTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := broker.Ping(pingCtx); err != nil {
			_ = broker.Close()
			return nil, fmt.Errorf("kafka ping: %w", err)
		}
		return broker, nil

	case config.BrokerMemory:
		logger.Warn("using in-process broker; messages are not shared between replicas")
		return memorybroker.New(cfg.Broker.MemoryBuffer, logger), nil

	default:
		client, err := rediscache.Connect(ctx, rediscache.Config{
			Addr:     cfg.Broker.RedisAddr,
			Password: cfg.Broker.RedisPassword,
			DB:       cfg.Broker.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return redisbroker.New(client, logger), nil
	}
}
