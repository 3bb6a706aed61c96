package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tasksync/internal/api"
	"tasksync/internal/config"
	"tasksync/internal/database"
	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/export"
	"tasksync/internal/logging"
	"tasksync/internal/metrics"
	"tasksync/internal/queue"
	"tasksync/internal/remote"
	"tasksync/internal/repository"
	"tasksync/internal/scheduler"
	"tasksync/internal/service"
	"tasksync/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const statusTTL = 10 * time.Minute

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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Database initialization failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	statusRepo := initStatusRepo(redisClient, logger)

	eventBus := events.NewEventBus()

	q := queue.New(db, redisClient, queue.RetryPolicy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		InitialDelay:  config.Duration(cfg.Retry.InitialDelay, 2*time.Second),
		MaxDelay:      config.Duration(cfg.Retry.MaxDelay, time.Minute),
		BackoffFactor: cfg.Retry.BackoffFactor,
		Jitter:        cfg.Retry.Jitter,
	}, logger)
	q.SetPublisher(eventBus)

	clients := buildClients(cfg, db, logger)
	logger.Info().Int("remotes", len(clients)).Msg("Sync clients configured")

	resolver := syncer.NewResolver(db, q, eventBus, logger)
	engine := syncer.NewEngine(db, q, clients, resolver, eventBus, false, logger)

	sched := scheduler.New(engine, statusRepo, scheduler.Config{
		Interval:         config.Duration(cfg.Scheduler.Interval, 5*time.Minute),
		MutationDebounce: config.Duration(cfg.Scheduler.MutationDebounce, 2*time.Second),
		CycleTimeout:     config.Duration(cfg.Scheduler.CycleTimeout, time.Minute),
		Backoff:          scheduler.DefaultConfig().Backoff,
	}, logger)

	tasks := service.NewTaskService(db, q, eventBus, cfg.App.Surface, logger)
	tasks.SetNotify(sched.NotifyChange)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go serveMetrics(cfg.Monitoring.PrometheusPort, logger)
	}

	var exporter api.ReportWriter
	if cfg.Exports.Path != "" {
		exporter = export.NewExporter(cfg.Exports.Path, db, q)
	}

	if cfg.API.Enabled {
		apiServer := api.NewHTTPServer(cfg.API, api.Deps{
			Store:    db,
			Queue:    q,
			Tasks:    tasks,
			Resolver: resolver,
			Status:   statusRepo,
			Exporter: exporter,
			Trigger:  sched.TriggerNow,
		}, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
		defer func() {
			_ = apiServer.Shutdown(context.Background())
		}()
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	logger.Info().Str("surface", cfg.App.Surface).Msg("Sync daemon started")
	sched.Start(ctx)

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "syncd").Logger()
	return cfg, &logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Failed to create database directory")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("Failed to create export directory")
			return err
		}
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}
	client := repository.NewRedisClient(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, running with in-memory fallback only")
	}
	return client
}

// initStatusRepo prefers redis so external UI processes can read the sync
// status, with an in-memory fallback when redis is down.
func initStatusRepo(redisClient *redis.Client, logger *zerolog.Logger) domain.StatusRepository {
	fallback := repository.NewMemoryStatusRepository()
	if redisClient == nil {
		return fallback
	}
	primary := repository.NewRedisStatusRepository(redisClient, statusTTL)
	return repository.NewFailoverStatusRepository(primary, fallback, logger)
}

func buildClients(cfg *config.Config, db *database.DB, logger *zerolog.Logger) []domain.SyncClient {
	var clients []domain.SyncClient
	if cfg.Remotes.Backend.Enabled {
		clients = append(clients, remote.NewBackend(
			cfg.Remotes.Backend.BaseURL,
			cfg.App.Surface,
			config.Duration(cfg.Remotes.Backend.Timeout, 10*time.Second),
			cfg.Remotes.Backend.RPS,
			cfg.Remotes.Backend.Burst,
			db,
			logger,
		))
	}
	if cfg.Remotes.Bridge.Enabled {
		clients = append(clients, remote.NewBridge(
			cfg.Remotes.Bridge.Endpoint,
			config.Duration(cfg.Remotes.Bridge.Timeout, 5*time.Second),
			db,
			logger,
		))
	}
	return clients
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("Metrics listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server error")
	}
}
