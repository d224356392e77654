package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/blobstore"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/metrics"
)

type staticSource struct {
	docs []index.Document
	err  error
}

func (s staticSource) Documents(context.Context) ([]index.Document, error) {
	return s.docs, s.err
}

type recordingAnnouncer struct {
	calls []segment.Header
	err   error
}

func (a *recordingAnnouncer) Announce(_ context.Context, key string, header segment.Header, size int) (publisher.IndexPublished, error) {
	a.calls = append(a.calls, header)
	return publisher.IndexPublished{Key: key, Checksum: header.Checksum, Bytes: size}, a.err
}

func newJob(t *testing.T, src staticSource, announcer Announcer) (*Job, blobstore.Store) {
	t.Helper()
	tok, err := tokenizer.New([]string{"en-SG", "en-US"})
	require.NoError(t, err)
	builder, err := index.NewBuilder(tok, []string{"title", "text"}, 2)
	require.NoError(t, err)
	store, err := blobstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return NewJob(src, builder, store, announcer, "index.bin", m), store
}

func doc(id, title, text string) index.Document {
	return index.Document{ID: id, Fields: map[string]string{"title": title, "text": text}}
}

func TestJobRun(t *testing.T) {
	assert := require.New(t)
	announcer := &recordingAnnouncer{}
	job, store := newJob(t, staticSource{docs: []index.Document{
		doc("a", "Quantum computing", "qubits"),
		doc("b", "Classical computing", "bits"),
	}}, announcer)

	result, err := job.Run(context.Background())
	assert.NoError(err)
	assert.True(result.Announced)
	assert.Equal(uint32(2), result.Header.DocCount)
	assert.Len(announcer.calls, 1)
	assert.Equal(result.Header, announcer.calls[0])

	blob, err := store.Get(context.Background(), "index.bin")
	assert.NoError(err)
	assert.Equal(result.Bytes, len(blob))
	idx, err := segment.Decode(blob)
	assert.NoError(err)
	assert.Equal(2, idx.DocCount())
}

func TestJobBuildErrorStoresNothing(t *testing.T) {
	announcer := &recordingAnnouncer{}
	job, store := newJob(t, staticSource{docs: []index.Document{
		doc("a", "one", ""),
		doc("a", "two", ""),
	}}, announcer)

	result, err := job.Run(context.Background())
	require.Nil(t, result)
	require.ErrorIs(t, err, apperrors.ErrBuild)
	require.Empty(t, announcer.calls)

	_, err = store.Get(context.Background(), "index.bin")
	require.ErrorIs(t, err, apperrors.ErrBlobNotFound)
}

func TestJobSourceError(t *testing.T) {
	cause := errors.New("connection refused")
	job, _ := newJob(t, staticSource{err: cause}, nil)
	_, err := job.Run(context.Background())
	require.ErrorIs(t, err, cause)
}

func TestJobAnnouncementFailureKeepsBlob(t *testing.T) {
	announcer := &recordingAnnouncer{err: errors.New("broker down")}
	job, store := newJob(t, staticSource{docs: []index.Document{doc("a", "t", "x")}}, announcer)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Announced)
	_, err = store.Get(context.Background(), "index.bin")
	require.NoError(t, err)
}

func TestJobWithoutAnnouncer(t *testing.T) {
	job, _ := newJob(t, staticSource{docs: []index.Document{doc("a", "t", "x")}}, nil)
	result, err := job.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Announced)
}
