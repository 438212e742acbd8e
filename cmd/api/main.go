package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/api"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/config"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/database"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/domain"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/events"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/logging"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/metrics"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/policy"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/pricing"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/repository"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/schedule"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/service"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewBus()

	var cache domain.SheetCache
	var invalidator *worker.CacheInvalidator
	if redisClient != nil {
		cacheLogger := logging.Component(&logger, "sheet-cache")
		cache = repository.NewRedisSheetCache(redisClient, cfg.SheetCacheTTL(), &cacheLogger)

		workerLogger := logging.Component(&logger, "invalidator")
		invalidator = worker.NewCacheInvalidator(cache, worker.RetryPolicy{
			MaxRetries:    3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2,
		}, cfg.Engine.InvalidatorQueue, &workerLogger)
		invalidator.Start(bus)
		defer invalidator.Stop()
	}

	engine, err := buildEngine(cfg, db, bus, cache, &logger)
	if err != nil {
		return err
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}
	httpServer := api.NewHTTPServer(cfg.API, engine, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMonitoring(ctx, cfg, db, &logger)

	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "api-main")

	return cfg, logger, closer, nil
}

func buildEngine(
	cfg *config.Config,
	db *database.DB,
	bus *events.Bus,
	cache domain.SheetCache,
	logger *zerolog.Logger,
) (*service.ReservationService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("facility timezone: %w", err)
	}

	templates, err := cfg.GridTemplates()
	if err != nil {
		return nil, fmt.Errorf("grid templates: %w", err)
	}
	grid, err := schedule.NewGrid(loc, templates)
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}

	policies := policy.NewEngine(db, loc, cfg.Caps, cfg.Cutoffs)
	rates, err := pricing.NewEngine(cfg.Rates)
	if err != nil {
		return nil, fmt.Errorf("price rates: %w", err)
	}
	approval := service.BuildApprovalPredicates(cfg.Approval)

	engineLogger := logging.Component(logger, "engine")
	return service.NewReservationService(
		db, grid, policies, rates,
		cfg.Resources, approval,
		bus, cache, domain.RealClock{},
		worker.RetryPolicy{
			MaxRetries:    cfg.Engine.CreateRetries,
			InitialDelay:  50 * time.Millisecond,
			MaxDelay:      time.Second,
			BackoffFactor: 2,
		},
		&engineLogger,
	), nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without sheet cache")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func startMonitoring(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go runMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}
	if cfg.Monitoring.HealthCheckPort > 0 {
		go runHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, logger)
	}
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.Port).Msg("scheduling engine started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("scheduling engine stopped")
	return nil
}

func runMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func runHealthServer(ctx context.Context, port int, db *database.DB, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}
