package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/redis"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when enabled, the Kafka consumers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting textsearch",
		"port", cfg.Server.Port,
		"kafka", cfg.Kafka.Enabled,
		"redis", cfg.Redis.Enabled,
		"postgres", cfg.Postgres.Enabled,
	)
	var wg sync.WaitGroup
	defer wg.Wait()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown, err := m.StartServer(cfg.Metrics.Port)
		if err != nil {
			return err
		}
		defer shutdownWith(cfg, "metrics server", shutdown)
	}
	checker := health.NewChecker()

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	agg := analytics.NewAggregator()
	var store *aggregator.Store
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		store = aggregator.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("preparing analytics schema: %w", err)
		}
		if latest, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not restore analytics snapshot", "error", err)
		} else if latest != nil {
			agg.Restore(*latest)
			slog.Info("analytics restored", "since", latest.Since, "searches", latest.TotalSearches)
		}
		store.StartPeriodicSave(ctx, agg, cfg.Postgres.SnapshotInterval)
		checker.Register("postgres", health.PingCheck(db.Ping, true))
	}

	// With Kafka, analytics events round-trip through the topic and are
	// aggregated by its consumer; without it they are recorded directly.
	var (
		publisher collector.Publisher
		recorder  collector.Recorder = agg
	)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, nil)
		defer producer.Close()
		publisher, recorder = producer, nil
	}
	events := collector.New(publisher, recorder, collector.Options{
		BufferSize: cfg.Kafka.CollectorBuffer,
		Metrics:    m,
	})
	events.Start(ctx)
	defer events.Close()

	registry := searcher.NewRegistry(cfg.Index, cfg.Search, searcher.Deps{
		Cache:   queryCache,
		Tracker: events,
		Metrics: m,
	})
	defer registry.Close()
	registry.StartSweeper(ctx)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d active sessions", len(registry.Sessions())),
		}
	})

	if cfg.Kafka.Enabled {
		ingest := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(registry, m)))
		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := ingest.Start(ctx); err != nil {
				slog.Error("ingest consumer stopped", "error", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := analyticsConsumer.Run(ctx); err != nil {
				slog.Error("analytics consumer stopped", "error", err)
			}
		}()
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitWindow)
		limiter.StartPruning(ctx)
	}
	var history analytics.SnapshotLister
	if store != nil {
		history = store
	}
	router := handler.NewRouter(handler.New(registry, queryCache), cfg.Server, handler.RouterDeps{
		Analytics: analytics.NewHandler(agg, history),
		Health:    checker,
		Metrics:   m,
		Limiter:   limiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("textsearch listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownWith(cfg, "http server", server.Shutdown)
	}
	slog.Info("textsearch stopped")
	return nil
}

func shutdownWith(cfg *config.Config, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Error("shutdown failed", "component", name, "error", err)
	}
}
