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

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/blobstore"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/article-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "store", cfg.Indexer.Store, "blob_key", cfg.Indexer.BlobKey)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, "searcher")
		defer shutdownMetrics(context.Background())
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	store, err := blobstore.Open(cfg.Indexer, redisClient)
	if err != nil {
		slog.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}

	var queryCache *cache.QueryCache
	var invalidator reloader.Invalidator
	if redisClient != nil {
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		invalidator = queryCache
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	engine := executor.New(executor.ConfigFromSearch(cfg.Search))
	rl := reloader.New(store, engine, invalidator, cfg.Indexer.BlobKey, cfg.Search.ReloadTimeout, m)
	if _, err := rl.Reload(ctx, ""); err != nil {
		slog.Warn("no index loaded at startup, serving not-ready until a reload succeeds", "error", err)
	}

	if cfg.Kafka.Enabled {
		kafkaCfg := cfg.Kafka
		// Every replica must see every announcement.
		kafkaCfg.ConsumerGroup = fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()[:8])
		consumer := kafka.NewConsumer(kafkaCfg, cfg.Kafka.Topics.IndexPublished, rl.HandleMessage)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index event consumer stopped", "error", err)
			}
		}()
		slog.Info("listening for index announcements", "topic", cfg.Kafka.Topics.IndexPublished, "group", kafkaCfg.ConsumerGroup)
	}

	checker := health.NewChecker()
	checker.Register("index", health.Condition(engine.Ready, "index loaded", "no index loaded"))
	if cfg.Redis.Enabled {
		var ping func(context.Context) error
		if redisClient != nil {
			ping = redisClient.Ping
		}
		checker.Register("redis", health.Optional(ping))
	}

	h := handler.New(engine, queryCache, rl, cfg.Search, m)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
