package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/blobstore"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/postgres"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting indexer",
		"source", cfg.Indexer.Source,
		"store", cfg.Indexer.Store,
		"fields", cfg.Indexer.Fields,
		"locales", cfg.Indexer.Locales,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port, "indexer")
		defer shutdown(context.Background())
	}

	tok, err := tokenizer.New(cfg.Indexer.Locales)
	if err != nil {
		return err
	}
	builder, err := index.NewBuilder(tok, cfg.Indexer.Fields, cfg.Indexer.Workers)
	if err != nil {
		return err
	}

	mapping := source.MappingFromConfig(cfg.Indexer)
	var src source.Source
	switch cfg.Indexer.Source {
	case config.SourcePostgres:
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()
		src = source.NewPostgres(db, cfg.Indexer.PostgresQuery, mapping)
	default:
		src = source.NewJSONFile(cfg.Indexer.SourcePath, mapping)
	}

	var rdb *pkgredis.Client
	if cfg.Redis.Enabled {
		rdb, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}
	store, err := blobstore.Open(cfg.Indexer, rdb)
	if err != nil {
		return err
	}

	var announcer indexer.Announcer
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished)
		defer producer.Close()
		announcer = publisher.New(producer)
	}

	result, err := indexer.NewJob(src, builder, store, announcer, cfg.Indexer.BlobKey, m).Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("indexer finished",
		"key", result.Key,
		"checksum", fmt.Sprintf("%08x", result.Header.Checksum),
		"docs", result.Header.DocCount,
		"terms", result.Header.TermCount,
		"bytes", result.Bytes,
		"announced", result.Announced,
		"duration", result.Duration,
	)
	return nil
}
