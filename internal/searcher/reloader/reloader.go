// Package reloader installs new index blobs into a running search engine,
// either on demand or when the indexer announces a publication on Kafka.
package reloader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/loader"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/resilience"
)

type BlobFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Installer is satisfied by *executor.Engine.
type Installer interface {
	Snapshot() *loader.Snapshot
	Swap(snap *loader.Snapshot) *loader.Snapshot
}

// Invalidator is satisfied by *cache.QueryCache.
type Invalidator interface {
	Invalidate(ctx context.Context) (int64, error)
}

type Outcome struct {
	Key      string       `json:"key"`
	Changed  bool         `json:"changed"`
	Previous string       `json:"previous_checksum,omitempty"`
	Stats    loader.Stats `json:"index"`
}

type Reloader struct {
	blobs      BlobFetcher
	engine     Installer
	cache      Invalidator
	defaultKey string
	timeout    time.Duration
	retry      resilience.RetryConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	mu         sync.Mutex
}

// New creates a Reloader. cache and m may be nil.
func New(blobs BlobFetcher, engine Installer, cache Invalidator, defaultKey string, timeout time.Duration, m *metrics.Metrics) *Reloader {
	r := &Reloader{
		blobs:      blobs,
		engine:     engine,
		cache:      cache,
		defaultKey: defaultKey,
		timeout:    timeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			// A missing or undecodable blob will not fix itself between attempts.
			RetryIf: resilience.StopOn(apperrors.ErrDeserialize, apperrors.ErrBlobNotFound),
		},
		metrics: m,
		logger:  logger.WithComponent("reloader"),
	}
	if m != nil {
		r.retry.OnRetry = func(int, error) {
			m.RetriesTotal.WithLabelValues("fetch-index").Inc()
		}
	}
	return r
}

// Reload fetches the blob under key (the configured key when empty) and
// installs it unless it is the snapshot already being served. Reloads are
// serialized; a failed reload leaves the current snapshot untouched.
func (r *Reloader) Reload(ctx context.Context, key string) (Outcome, error) {
	if key == "" {
		key = r.defaultKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var snap *loader.Snapshot
	err := resilience.WithTimeout(ctx, r.timeout, "index-reload", func(ctx context.Context) error {
		return resilience.Retry(ctx, "fetch-index", r.retry, func() error {
			blob, err := r.blobs.Get(ctx, key)
			if err != nil {
				return err
			}
			snap, err = loader.Load(blob)
			return err
		})
	})
	if err != nil {
		r.record("error")
		r.logger.Error("index reload failed", "key", key, "error", err)
		return Outcome{Key: key}, fmt.Errorf("reloading index %s: %w", key, err)
	}

	outcome := Outcome{Key: key, Stats: snap.Stats()}
	current := r.engine.Snapshot()
	if current != nil {
		outcome.Previous = current.ChecksumHex()
		if current.Checksum() == snap.Checksum() {
			r.record("unchanged")
			r.logger.Info("index unchanged", "key", key, "checksum", snap.ChecksumHex())
			outcome.Stats = current.Stats()
			return outcome, nil
		}
	}

	r.engine.Swap(snap)
	outcome.Changed = true
	r.record("loaded")
	if r.metrics != nil {
		r.metrics.IndexDocuments.Set(float64(snap.DocCount()))
		r.metrics.IndexTerms.Set(float64(snap.TermCount()))
	}
	if r.cache != nil {
		if _, err := r.cache.Invalidate(ctx); err != nil {
			r.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	r.logger.Info("index reloaded",
		"key", key,
		"checksum", snap.ChecksumHex(),
		"previous", outcome.Previous,
		"docs", snap.DocCount(),
		"terms", snap.TermCount(),
	)
	return outcome, nil
}

// HandleMessage is a kafka.MessageHandler for IndexPublished events. Events
// whose checksum matches the served snapshot are acknowledged without
// touching the blob store.
func (r *Reloader) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[publisher.IndexPublished](value)
	if err != nil {
		r.logger.Error("dropping undecodable index event", "key", string(key), "error", err)
		return nil
	}
	if current := r.engine.Snapshot(); current != nil && current.Checksum() == event.Checksum {
		r.record("unchanged")
		r.logger.Debug("index event already applied", "key", event.Key, "checksum", current.ChecksumHex())
		return nil
	}
	_, err = r.Reload(ctx, event.Key)
	return err
}

func (r *Reloader) record(status string) {
	if r.metrics != nil {
		r.metrics.IndexLoadsTotal.WithLabelValues(status).Inc()
	}
}
