// Package indexer runs the batch job that turns the article corpus into one
// serialized index blob: read every document, build, encode, store, announce.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/blobstore"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/tracing"
)

// Announcer is satisfied by *publisher.Publisher.
type Announcer interface {
	Announce(ctx context.Context, key string, header segment.Header, size int) (publisher.IndexPublished, error)
}

// Job wires one build together. announcer and metrics may be nil.
type Job struct {
	source    source.Source
	builder   *index.Builder
	store     blobstore.Store
	announcer Announcer
	blobKey   string
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Result describes the blob a successful run wrote.
type Result struct {
	Key       string
	Header    segment.Header
	Bytes     int
	Announced bool
	Duration  time.Duration
}

func NewJob(src source.Source, builder *index.Builder, store blobstore.Store, announcer Announcer, blobKey string, m *metrics.Metrics) *Job {
	return &Job{
		source:    src,
		builder:   builder,
		store:     store,
		announcer: announcer,
		blobKey:   blobKey,
		metrics:   m,
		logger:    slog.Default().With("component", "index-job"),
	}
}

// Run performs the whole pipeline. Nothing is stored unless the build and
// the encoding both succeed. A failed announcement is logged and reported in
// Result.Announced; the stored blob stays valid.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "index-build", uuid.NewString())
	defer func() {
		span.End()
		span.LogTo(ctx, j.logger, slog.LevelDebug)
	}()

	result, err := j.run(ctx)
	if j.metrics != nil {
		j.metrics.IndexBuildDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		j.recordStatus("failed")
		j.logger.Error("index build failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	result.Duration = time.Since(start)
	j.recordStatus("success")
	j.logger.Info("index build complete",
		"key", result.Key,
		"checksum", fmt.Sprintf("%08x", result.Header.Checksum),
		"docs", result.Header.DocCount,
		"terms", result.Header.TermCount,
		"bytes", result.Bytes,
		"announced", result.Announced,
		"duration", result.Duration,
	)
	return result, nil
}

func (j *Job) run(ctx context.Context) (*Result, error) {
	readCtx, readSpan := tracing.StartChildSpan(ctx, "read-documents")
	docs, err := j.source.Documents(readCtx)
	readSpan.SetAttr("docs", len(docs))
	readSpan.End()
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}

	buildCtx, buildSpan := tracing.StartChildSpan(ctx, "build")
	idx, err := j.builder.Build(buildCtx, docs)
	buildSpan.End()
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	buildSpan.SetAttr("terms", idx.TermCount())

	_, encodeSpan := tracing.StartChildSpan(ctx, "encode")
	blob, err := segment.Encode(idx)
	encodeSpan.SetAttr("bytes", len(blob))
	encodeSpan.End()
	if err != nil {
		return nil, fmt.Errorf("encoding index: %w", err)
	}
	header, err := segment.ReadHeader(blob)
	if err != nil {
		return nil, fmt.Errorf("reading back encoded header: %w", err)
	}

	storeCtx, storeSpan := tracing.StartChildSpan(ctx, "store")
	err = j.store.Put(storeCtx, j.blobKey, blob)
	storeSpan.End()
	if err != nil {
		return nil, fmt.Errorf("storing index blob: %w", err)
	}
	if j.metrics != nil {
		j.metrics.DocsIndexedTotal.Add(float64(idx.DocCount()))
		j.metrics.IndexBlobBytes.Set(float64(len(blob)))
	}

	result := &Result{Key: j.blobKey, Header: header, Bytes: len(blob)}
	if j.announcer != nil {
		announceCtx, announceSpan := tracing.StartChildSpan(ctx, "announce")
		_, err := j.announcer.Announce(announceCtx, j.blobKey, header, len(blob))
		announceSpan.End()
		if err != nil {
			j.logger.Error("blob stored but announcement failed; searchers must reload manually",
				"key", j.blobKey,
				"error", err,
			)
		} else {
			result.Announced = true
		}
	}
	return result, nil
}

func (j *Job) recordStatus(status string) {
	if j.metrics != nil {
		j.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	}
}
