package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/article-search/pkg/redis"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return value, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memoryStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := int64(len(s.data))
	s.data = make(map[string]string)
	return deleted, nil
}

type stubReloader struct {
	outcome reloader.Outcome
	err     error
	keys    []string
}

func (s *stubReloader) Reload(_ context.Context, key string) (reloader.Outcome, error) {
	s.keys = append(s.keys, key)
	return s.outcome, s.err
}

func loadedEngine(t *testing.T) *executor.Engine {
	t.Helper()
	tok, err := tokenizer.New([]string{"en-SG", "en-US"})
	require.NoError(t, err)
	builder, err := index.NewBuilder(tok, []string{"title", "text"}, 2)
	require.NoError(t, err)
	idx, err := builder.Build(context.Background(), []index.Document{
		{ID: "a", Fields: map[string]string{"title": "Search engines", "text": "how search engines rank documents"}, Payload: json.RawMessage(`{"html":"<b>a</b>"}`)},
		{ID: "b", Fields: map[string]string{"title": "Databases", "text": "indexing structures for search"}},
		{ID: "c", Fields: map[string]string{"title": "Gardening", "text": "growing tomatoes"}},
	})
	require.NoError(t, err)
	blob, err := segment.Encode(idx)
	require.NoError(t, err)
	engine := executor.New(executor.DefaultConfig())
	_, err = engine.Load(blob)
	require.NoError(t, err)
	return engine
}

func do(t *testing.T, h *Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeSearch(t *testing.T, rec *httptest.ResponseRecorder) SearchResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func ids(resp SearchResponse) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.ID
	}
	return out
}

func TestSearch(t *testing.T) {
	assert := require.New(t)
	h := New(loadedEngine(t), nil, nil, config.Default().Search, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/search?q=search")
	assert.Contains(rec.Body.String(), `"payload":{"html":"<b>a</b>"}`, "payloads are written verbatim")
	resp := decodeSearch(t, rec)
	assert.Equal([]string{"a", "b"}, ids(resp))
	assert.Equal(2, resp.Total)
	assert.False(resp.Cached)
	assert.Equal([]string{"title", "text"}, resp.Results[0].Match["search"])

	resp = decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?q=search&order=asc"))
	assert.Equal([]string{"b", "a"}, ids(resp))

	resp = decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?q=garden"))
	assert.Equal([]string{"c"}, ids(resp), "prefix matching is on by default")

	resp = decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?q=garden&prefix=false&fuzzy=false"))
	assert.Empty(resp.Results)
	assert.NotNil(resp.Results)
}

func TestSearchEmptyQuery(t *testing.T) {
	assert := require.New(t)
	h := New(loadedEngine(t), nil, nil, config.Default().Search, nil)

	resp := decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?q="))
	assert.Equal([]string{"a", "b", "c"}, ids(resp))
	for _, r := range resp.Results {
		assert.Equal(1.0, r.Score)
	}

	resp = decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?wildcard=false"))
	assert.Empty(resp.Results)
}

func TestSearchPagination(t *testing.T) {
	assert := require.New(t)
	h := New(loadedEngine(t), nil, nil, config.Default().Search, nil)

	resp := decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?limit=2"))
	assert.Equal(3, resp.Total)
	assert.Equal([]string{"a", "b"}, ids(resp))

	resp = decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?limit=2&offset=2"))
	assert.Equal([]string{"c"}, ids(resp))

	resp = decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?offset=10"))
	assert.Empty(resp.Results)
	assert.Equal(3, resp.Total)
}

func TestSearchBoost(t *testing.T) {
	assert := require.New(t)
	h := New(loadedEngine(t), nil, nil, config.Default().Search, nil)

	resp := decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?q=search&boost=title:0"))
	assert.Equal([]string{"b", "a"}, ids(resp))
	assert.Equal([]string{"text"}, resp.Results[1].Match["search"])
}

func TestSearchRejectsBadOptions(t *testing.T) {
	h := New(loadedEngine(t), nil, nil, config.Default().Search, nil)
	for _, target := range []string{
		"/api/v1/search?q=x&order=random",
		"/api/v1/search?q=x&fuzzy=maybe",
		"/api/v1/search?q=x&boost=title",
		"/api/v1/search?q=x&boost=title:abc",
		"/api/v1/search?q=x&boost=abstract:2",
		"/api/v1/search?q=x&boost=title:-1",
		"/api/v1/search?q=x&limit=0",
		"/api/v1/search?q=x&offset=-1",
	} {
		t.Run(target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, target)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestNotReady(t *testing.T) {
	h := New(executor.New(executor.DefaultConfig()), nil, nil, config.Default().Search, nil)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/search?q=x").Code)
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/index/stats").Code)
}

func TestSearchUsesCache(t *testing.T) {
	assert := require.New(t)
	store := &memoryStore{data: make(map[string]string)}
	h := New(loadedEngine(t), cache.New(store, time.Minute, nil), nil, config.Default().Search, nil)

	first := decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?q=search"))
	assert.False(first.Cached)
	second := decodeSearch(t, do(t, h, http.MethodGet, "/api/v1/search?q=SEARCH"))
	assert.True(second.Cached)
	assert.Equal(ids(first), ids(second))
	assert.JSONEq(string(first.Results[0].Payload), string(second.Results[0].Payload))

	rec := do(t, h, http.MethodGet, "/api/v1/cache/stats")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"hits":1`)

	rec = do(t, h, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"keys_deleted":1`)
}

func TestCacheDisabled(t *testing.T) {
	h := New(loadedEngine(t), nil, nil, config.Default().Search, nil)
	rec := do(t, h, http.MethodGet, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "disabled")
	require.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/v1/cache/invalidate").Code)
}

func TestIndexEndpoints(t *testing.T) {
	assert := require.New(t)
	engine := loadedEngine(t)
	stub := &stubReloader{outcome: reloader.Outcome{Key: "v2.bin", Changed: true}}
	h := New(engine, nil, stub, config.Default().Search, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/index/stats")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"documents":3`)
	assert.Contains(rec.Body.String(), engine.Snapshot().ChecksumHex())

	rec = do(t, h, http.MethodPost, "/api/v1/index/reload?key=v2.bin")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"changed":true`)
	assert.Equal([]string{"v2.bin"}, stub.keys)

	stub.err = apperrors.Malformed("checksum mismatch", nil)
	rec = do(t, h, http.MethodPost, "/api/v1/index/reload")
	assert.Equal(http.StatusUnprocessableEntity, rec.Code)
	assert.True(strings.Contains(rec.Body.String(), "checksum mismatch"))

	h = New(engine, nil, nil, config.Default().Search, nil)
	assert.Equal(http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/v1/index/reload").Code)
	assert.Equal(http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/v1/index/reload").Code)
}
