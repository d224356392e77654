package reloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/metrics"
)

type fakeBlobs struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	failures int
	calls    int
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	blob, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", key, apperrors.ErrBlobNotFound)
	}
	return blob, nil
}

type countingCache struct {
	invalidations int
}

func (c *countingCache) Invalidate(context.Context) (int64, error) {
	c.invalidations++
	return 0, nil
}

func blobOf(t *testing.T, titles ...string) []byte {
	t.Helper()
	tok, err := tokenizer.New([]string{"en-SG", "en-US"})
	require.NoError(t, err)
	builder, err := index.NewBuilder(tok, []string{"title"}, 1)
	require.NoError(t, err)
	docs := make([]index.Document, len(titles))
	for i, title := range titles {
		docs[i] = index.Document{ID: title, Fields: map[string]string{"title": title}}
	}
	idx, err := builder.Build(context.Background(), docs)
	require.NoError(t, err)
	blob, err := segment.Encode(idx)
	require.NoError(t, err)
	return blob
}

func newReloader(blobs *fakeBlobs, engine *executor.Engine, cache Invalidator) *Reloader {
	r := New(blobs, engine, cache, "index.bin", time.Second, nil)
	r.retry.InitialDelay = time.Millisecond
	r.retry.MaxDelay = 5 * time.Millisecond
	return r
}

func TestReloadInstallsAndSkipsUnchanged(t *testing.T) {
	assert := require.New(t)
	blobs := &fakeBlobs{blobs: map[string][]byte{"index.bin": blobOf(t, "Search engines", "Databases")}}
	engine := executor.New(executor.DefaultConfig())
	cache := &countingCache{}
	r := newReloader(blobs, engine, cache)

	outcome, err := r.Reload(context.Background(), "")
	assert.NoError(err)
	assert.True(outcome.Changed)
	assert.Empty(outcome.Previous)
	assert.Equal(2, outcome.Stats.Documents)
	assert.True(engine.Ready())
	assert.Equal(1, cache.invalidations)

	outcome, err = r.Reload(context.Background(), "index.bin")
	assert.NoError(err)
	assert.False(outcome.Changed)
	assert.Equal(outcome.Previous, outcome.Stats.Checksum)
	assert.Equal(1, cache.invalidations)

	blobs.blobs["index.bin"] = blobOf(t, "Search engines", "Databases", "Indexing")
	outcome, err = r.Reload(context.Background(), "")
	assert.NoError(err)
	assert.True(outcome.Changed)
	assert.Equal(3, engine.Snapshot().DocCount())
	assert.Equal(2, cache.invalidations)
}

func TestReloadRetriesTransientFailures(t *testing.T) {
	assert := require.New(t)
	blobs := &fakeBlobs{blobs: map[string][]byte{"index.bin": blobOf(t, "Search")}, failures: 2}
	r := newReloader(blobs, executor.New(executor.DefaultConfig()), nil)

	outcome, err := r.Reload(context.Background(), "")
	assert.NoError(err)
	assert.True(outcome.Changed)
	assert.Equal(3, blobs.calls)
}

func TestReloadCountsRetries(t *testing.T) {
	assert := require.New(t)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	blobs := &fakeBlobs{blobs: map[string][]byte{"index.bin": blobOf(t, "Search")}, failures: 2}
	r := New(blobs, executor.New(executor.DefaultConfig()), nil, "index.bin", time.Second, m)
	r.retry.InitialDelay = time.Millisecond
	r.retry.MaxDelay = 5 * time.Millisecond

	_, err := r.Reload(context.Background(), "")
	assert.NoError(err)
	assert.Equal(2.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("fetch-index")))
	assert.Equal(1.0, testutil.ToFloat64(m.IndexLoadsTotal.WithLabelValues("loaded")))
	assert.Equal(1.0, testutil.ToFloat64(m.IndexDocuments))

	_, err = r.Reload(context.Background(), "missing.bin")
	assert.ErrorIs(err, apperrors.ErrBlobNotFound)
	assert.Equal(2.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("fetch-index")), "a missing blob is not retried")
}

func TestReloadKeepsSnapshotOnBadBlob(t *testing.T) {
	assert := require.New(t)
	good := blobOf(t, "Search")
	blobs := &fakeBlobs{blobs: map[string][]byte{"index.bin": good}}
	engine := executor.New(executor.DefaultConfig())
	r := newReloader(blobs, engine, nil)
	_, err := r.Reload(context.Background(), "")
	assert.NoError(err)
	before := engine.Snapshot()

	blobs.blobs["index.bin"] = good[:len(good)-3]
	blobs.calls = 0
	_, err = r.Reload(context.Background(), "")
	assert.ErrorIs(err, apperrors.ErrDeserialize)
	assert.Equal(1, blobs.calls, "a corrupt blob is not retried")
	assert.Same(before, engine.Snapshot())

	blobs.calls = 0
	_, err = r.Reload(context.Background(), "missing.bin")
	assert.ErrorIs(err, apperrors.ErrBlobNotFound)
	assert.Equal(1, blobs.calls)
	assert.Same(before, engine.Snapshot())
}

func TestHandleMessage(t *testing.T) {
	assert := require.New(t)
	blob := blobOf(t, "Search engines")
	header, err := segment.ReadHeader(blob)
	assert.NoError(err)
	blobs := &fakeBlobs{blobs: map[string][]byte{"v2.bin": blob}}
	engine := executor.New(executor.DefaultConfig())
	r := newReloader(blobs, engine, nil)

	event, err := json.Marshal(publisher.IndexPublished{Key: "v2.bin", Checksum: header.Checksum})
	assert.NoError(err)
	assert.NoError(r.HandleMessage(context.Background(), []byte("v2.bin"), event))
	assert.Equal(header.Checksum, engine.Snapshot().Checksum())
	assert.Equal(1, blobs.calls)

	assert.NoError(r.HandleMessage(context.Background(), []byte("v2.bin"), event))
	assert.Equal(1, blobs.calls, "an already served checksum does not refetch")

	assert.NoError(r.HandleMessage(context.Background(), nil, []byte("not json")))

	event, err = json.Marshal(publisher.IndexPublished{Key: "gone.bin", Checksum: 7})
	assert.NoError(err)
	assert.ErrorIs(r.HandleMessage(context.Background(), nil, event), apperrors.ErrBlobNotFound)
}
