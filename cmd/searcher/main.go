package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	eng := engine.FromConfig(cfg, engine.WithMetrics(m))
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"source", cfg.Source.Type,
		"max_results", eng.MaxResults(),
	)

	src, srcCloser, err := source.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening document source: %w", err)
	}
	defer srcCloser.Close()

	aggregator := analytics.NewAggregator()
	var publisher analytics.Publisher = aggregator
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		publisher = producer
		consumer = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.HandleMessage)
		slog.Info("analytics routed through kafka", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}
	collector := analytics.NewCollector(publisher, analytics.CollectorConfig{
		BufferSize:    cfg.Kafka.BufferSize,
		BatchSize:     cfg.Kafka.BatchSize,
		FlushInterval: cfg.Kafka.FlushInterval,
	})
	collector.Start(ctx)
	defer collector.Close()

	rebuild := func(ctx context.Context) (indexer.BuildStats, error) {
		docs, err := src.Load(ctx)
		if err != nil {
			return indexer.BuildStats{}, fmt.Errorf("loading documents: %w", err)
		}
		stats, err := eng.Build(ctx, docs)
		if err != nil {
			return stats, err
		}
		collector.Track(analytics.BuildEvent{
			Type:       analytics.EventIndexBuild,
			Generation: eng.Generation(),
			Accepted:   stats.Accepted,
			Filtered:   stats.Filtered,
			Skipped:    stats.Skipped,
			Terms:      stats.Terms,
			DurationMs: float64(stats.Duration.Microseconds()) / 1000,
			Timestamp:  time.Now().UTC(),
		})
		return stats, nil
	}
	if _, err := rebuild(ctx); err != nil {
		return fmt.Errorf("initial index build: %w", err)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := eng.Stats()
		if !stats.Ready {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index not built"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d documents", stats.Generation, stats.Documents),
		}
	})
	if pinger, ok := srcCloser.(interface{ Ping(context.Context) error }); ok {
		checker.Register("postgres", health.PingCheck(pinger.Ping, false))
	}

	opts := []handler.Option{
		handler.WithCollector(collector),
		handler.WithMetrics(m),
		handler.WithRebuild(rebuild),
	}
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts = append(opts, handler.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, cache.WithMetrics(m))))
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit.Requests > 0 {
		limiter = ratelimit.New(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)
		go limiter.Run(ctx, 5*time.Minute)
	}
	router := newRouter(cfg, routes{
		search:    handler.New(eng, opts...),
		analytics: analytics.NewHandler(aggregator),
		health:    checker,
		metrics:   m,
		limiter:   limiter,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	if consumer != nil {
		// analytics are best effort: a dead consumer must not stop search
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil {
				slog.Error("analytics consumer stopped", "error", err)
			}
			return nil
		})
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, cfg.Server.Port,
			metrics.Link{Name: "Search", Path: "/api/v1/search"},
			metrics.Link{Name: "Index stats", Path: "/api/v1/index/stats"},
			metrics.Link{Name: "Top terms", Path: "/api/v1/index/terms"},
			metrics.Link{Name: "Analytics", Path: "/api/v1/analytics"},
			metrics.Link{Name: "Cache stats", Path: "/api/v1/cache/stats"},
			metrics.Link{Name: "Readiness", Path: "/health/ready"},
		)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
