package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prajwalbharadwajbm/adserve/internal/assets"
	"github.com/prajwalbharadwajbm/adserve/internal/cache"
	"github.com/prajwalbharadwajbm/adserve/internal/config"
	"github.com/prajwalbharadwajbm/adserve/internal/database"
	"github.com/prajwalbharadwajbm/adserve/internal/distlock"
	"github.com/prajwalbharadwajbm/adserve/internal/endpoint"
	"github.com/prajwalbharadwajbm/adserve/internal/fraud"
	"github.com/prajwalbharadwajbm/adserve/internal/logger"
	"github.com/prajwalbharadwajbm/adserve/internal/metrics"
	"github.com/prajwalbharadwajbm/adserve/internal/middleware"
	"github.com/prajwalbharadwajbm/adserve/internal/notify"
	"github.com/prajwalbharadwajbm/adserve/internal/repository"
	"github.com/prajwalbharadwajbm/adserve/internal/service"
	"github.com/prajwalbharadwajbm/adserve/internal/transport"
)

const serviceName = "adserve"

func main() {
	config.LoadConfigs()
	cfg := config.AppConfigInstance

	appLogger := logger.New(logger.Config{
		Service: serviceName,
		Version: cfg.GeneralConfig.Version,
		Level:   cfg.GeneralConfig.LogLevel,
	})

	if err := run(cfg, appLogger); err != nil {
		level.Error(appLogger).Log("msg", "server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.AppConfig, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	healthChecks := map[string]transport.HealthCheck{}

	// Campaign store
	var store service.CampaignRepository
	switch cfg.DatabaseConfig.Driver {
	case "postgres":
		db, cleanup, err := database.Initialize(cfg.DatabaseConfig, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer cleanup()
		store = repository.NewPostgresRepository(db)
		healthChecks["database"] = db.HealthCheck
	case "memory":
		mem := repository.NewMemoryRepository()
		repository.Seed(mem, time.Now())
		store = mem
		level.Info(logger).Log("msg", "using in-memory campaign store with seed data")
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", cfg.DatabaseConfig.Driver)
	}
	store = repository.NewInstrumentedRepository(store, m)

	// Redis backs the shared result cache, the click window and the sweep lock.
	redisCfg := config.GetRedisConfig()
	var redisClient redis.UniversalClient
	if redisCfg.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", redisCfg.Addr, err)
		}
	}

	resultCache, err := cache.NewHybridCache(config.GetCacheConfig(), redisClient, logger)
	if err != nil {
		return fmt.Errorf("failed to create result cache: %w", err)
	}
	defer resultCache.Close()
	resultCache.Start(ctx)
	healthChecks["cache"] = func(ctx context.Context) error {
		if status := resultCache.HealthCheck(ctx); status.Overall == "unhealthy" {
			return errors.New("result cache unhealthy")
		}
		return nil
	}

	deps := service.Dependencies{
		Repository:  store,
		ClickWindow: fraud.NewStoreClickWindow(store),
		Notifier:    notify.NewLogNotifier(logger),
		Assets:      assets.NopStore{},
		Metrics:     m,
		Logger:      logger,
	}
	if redisClient != nil {
		if cfg.EngineConfig.UseRedisFraudWindow {
			deps.ClickWindow = fraud.NewRedisClickWindow(redisClient, redisCfg.Prefix)
		}
		deps.SweepLock = distlock.NewRedisLock(redisClient, redisCfg.Prefix+":lifecycle-sweep", cfg.EngineConfig.SweepLockTTL)
	}

	if cfg.AWSConfig.NotifyEnabled || cfg.AWSConfig.AssetsEnabled {
		awsCfg, err := config.LoadAWS(ctx, cfg.AWSConfig)
		if err != nil {
			return fmt.Errorf("failed to load aws config: %w", err)
		}
		if cfg.AWSConfig.NotifyEnabled {
			notifier, err := notify.NewSESNotifier(
				notify.NewSESClient(awsCfg, cfg.AWSConfig.Endpoint), cfg.AWSConfig.NotifySender, nil, logger)
			if err != nil {
				return fmt.Errorf("failed to create notifier: %w", err)
			}
			deps.Notifier = notifier
		}
		if cfg.AWSConfig.AssetsEnabled {
			deps.Assets = assets.NewS3Store(assets.NewS3Client(awsCfg, cfg.AWSConfig.Endpoint), cfg.AWSConfig.AssetBucket)
		}
	}

	opts := service.Options{
		DefaultLimit:        cfg.EngineConfig.DefaultLimit,
		MaxLimit:            cfg.EngineConfig.MaxLimit,
		FraudClickThreshold: cfg.EngineConfig.FraudClickThreshold,
		FraudWindow:         cfg.EngineConfig.FraudWindow,
		EventTimeout:        cfg.EngineConfig.EventTimeout,
		SweepInterval:       cfg.EngineConfig.SweepInterval,
		NotifyTimeout:       cfg.EngineConfig.NotifyTimeout,
		TrackingBaseURL:     cfg.EngineConfig.TrackingBaseURL,
	}

	// Every campaign change that can alter serving invalidates cached results.
	selector := cache.NewCachedSelector(service.NewSelector(deps, opts), resultCache, cfg.EngineConfig.ResultCacheTTL, m, logger)
	deps.Invalidator = selector

	engine := service.NewEngine(deps, opts, selector)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer engine.Stop()

	var svc service.AdEngine = engine
	svc = middleware.NewServiceMetricsMiddleware(m)(svc)
	svc = middleware.NewLoggingMiddleware(logger)(svc)

	handler := transport.NewHTTPHandler(endpoint.MakeEndpoints(svc), transport.Options{
		Service:      serviceName,
		Version:      cfg.GeneralConfig.Version,
		HealthChecks: healthChecks,
		Metrics:      m,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GeneralConfig.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		level.Info(logger).Log("msg", "starting server", "port", cfg.GeneralConfig.Port, "store", cfg.DatabaseConfig.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("failed to serve http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	level.Info(logger).Log("msg", "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
