package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"posync/internal/api"
	"posync/internal/cache"
	"posync/internal/config"
	"posync/internal/connectivity"
	"posync/internal/events"
	"posync/internal/gateway"
	"posync/internal/logging"
	"posync/internal/metrics"
	"posync/internal/products"
	"posync/internal/router"
	"posync/internal/sales"
	"posync/internal/store"
	"posync/internal/syncer"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	metrics.Register()

	st, err := store.Open(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open durable store")
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, snapshots := initSnapshots(ctx, cfg, st, &logger)
	defer func() { _ = cache.Close(redisClient) }()

	monitor := connectivity.NewMonitor(false, &logger)
	prober := connectivity.NewProber(
		monitor,
		cfg.Remote.BaseURL,
		cfg.Remote.ProbePath,
		time.Duration(cfg.Remote.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Remote.ProbeInterval)*time.Second,
		&logger,
	)
	prober.ProbeOnce(ctx)
	go prober.Run(ctx)

	gw := gateway.New(cfg.Remote, &logger)
	bus := events.NewEventBus()
	rt := router.New(monitor, gw, st, snapshots, &logger)

	salesAdapter := sales.New(rt, snapshots, monitor, gw, bus, &logger)
	defer salesAdapter.Close()
	productsAdapter := products.New(rt, snapshots, bus, &logger)
	defer productsAdapter.Close()
	productsAdapter.WarmCache(ctx)

	scheduler := syncer.New(
		st, gw, monitor, bus,
		time.Duration(cfg.Sync.IntervalSeconds)*time.Second,
		cfg.Sync.RetryLimit,
		&logger,
	)
	go scheduler.Run(ctx)

	if cfg.API.Enabled {
		statusServer := api.NewStatusServer(cfg.API, cfg.Monitoring, monitor, st, scheduler, salesAdapter, productsAdapter, &logger)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error().Err(err).Msg("status server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = statusServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info().Msg("posync started")
	<-ctx.Done()
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "posd").Logger()

	return cfg, logger, closer, nil
}

func initSnapshots(ctx context.Context, cfg *config.Config, st *store.Store, logger *zerolog.Logger) (*redis.Client, cache.SnapshotRepository) {
	if cfg.Redis.Address == "" {
		return nil, st
	}

	redisClient := cache.NewRedisClient(cfg.Redis)
	if err := cache.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, snapshots served from sqlite only")
	}

	fast := cache.NewRedisSnapshotRepository(redisClient, time.Duration(cfg.Redis.TTL)*time.Second)
	return redisClient, cache.NewFailoverSnapshotRepository(fast, st, logger)
}
