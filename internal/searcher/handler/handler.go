// Package handler exposes the search engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/loader"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/reloader"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/article-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/tracing"
)

// Searcher is satisfied by *executor.Engine.
type Searcher interface {
	Snapshot() *loader.Snapshot
	SearchSnapshot(ctx context.Context, snap *loader.Snapshot, query string, opts executor.Options) ([]executor.Result, error)
}

// IndexReloader is satisfied by *reloader.Reloader.
type IndexReloader interface {
	Reload(ctx context.Context, key string) (reloader.Outcome, error)
}

type SearchResponse struct {
	Query    string            `json:"query"`
	Total    int               `json:"total"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit,omitempty"`
	Cached   bool              `json:"cached"`
	Checksum string            `json:"index_checksum"`
	TookMs   float64           `json:"took_ms"`
	Results  []executor.Result `json:"results"`
}

type request struct {
	query  string
	opts   executor.Options
	limit  int
	offset int
}

type Handler struct {
	searcher Searcher
	cache    *cache.QueryCache
	reloader IndexReloader
	defaults config.SearchConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds a Handler. queryCache, rl and m may be nil.
func New(searcher Searcher, queryCache *cache.QueryCache, rl IndexReloader, defaults config.SearchConfig, m *metrics.Metrics) *Handler {
	return &Handler{
		searcher: searcher,
		cache:    queryCache,
		reloader: rl,
		defaults: defaults,
		metrics:  m,
		logger:   logger.WithComponent("search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/index/reload", h.IndexReload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	snap := h.searcher.Snapshot()
	if snap == nil {
		h.recordQuery("error", "bypass", start, 0)
		h.writeError(w, &apperrors.NotReadyError{})
		return
	}
	req, err := h.parseRequest(r.URL.Query(), snap)
	if err != nil {
		h.recordQuery("error", "bypass", start, 0)
		h.writeError(w, err)
		return
	}

	traceID := middleware.GetRequestID(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx, span := tracing.StartSpan(ctx, "search", traceID)
	span.SetAttr("checksum", snap.ChecksumHex())
	compute := func() ([]executor.Result, error) {
		searchCtx, searchSpan := tracing.StartChildSpan(ctx, "execute")
		defer searchSpan.End()
		return h.searcher.SearchSnapshot(searchCtx, snap, req.query, req.opts)
	}

	var results []executor.Result
	cacheStatus := "bypass"
	cached := false
	if h.cache != nil {
		cacheCtx, cacheSpan := tracing.StartChildSpan(ctx, "cache")
		results, cached, err = h.cache.GetOrCompute(cacheCtx, cache.Key(snap, req.query, req.opts), compute)
		cacheSpan.SetAttr("hit", cached)
		cacheSpan.End()
		cacheStatus = "miss"
		if cached {
			cacheStatus = "hit"
		}
	} else {
		results, err = compute()
	}
	span.End()
	span.LogTo(ctx, log, slog.LevelDebug)

	if err != nil {
		h.recordQuery("error", cacheStatus, start, 0)
		log.Error("search execution failed", "query", req.query, "error", err)
		h.writeError(w, err)
		return
	}

	resultType := "hit"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	h.recordQuery(resultType, cacheStatus, start, len(results))

	resp := SearchResponse{
		Query:    req.query,
		Total:    len(results),
		Offset:   req.offset,
		Limit:    req.limit,
		Cached:   cached,
		Checksum: snap.ChecksumHex(),
		TookMs:   float64(time.Since(start).Microseconds()) / 1000,
		Results:  paginate(results, req.offset, req.limit),
	}
	log.Info("search completed",
		"query", req.query,
		"total_hits", resp.Total,
		"returned", len(resp.Results),
		"cache", cacheStatus,
		"took_ms", resp.TookMs,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// parseRequest applies the query string over the configured defaults.
// Default boosts for fields the loaded index does not have are dropped;
// boosts named in the request are passed through and validated by the
// engine.
func (h *Handler) parseRequest(values url.Values, snap *loader.Snapshot) (request, error) {
	req := request{
		query: values.Get("q"),
		opts: executor.Options{
			Fuzzy:    h.defaults.Fuzzy,
			Prefix:   h.defaults.Prefix,
			Wildcard: true,
		},
		limit: h.defaults.DefaultLimit,
	}
	var err error
	if req.opts.Fuzzy, err = boolParam(values, "fuzzy", req.opts.Fuzzy); err != nil {
		return req, err
	}
	if req.opts.Prefix, err = boolParam(values, "prefix", req.opts.Prefix); err != nil {
		return req, err
	}
	if req.opts.Wildcard, err = boolParam(values, "wildcard", req.opts.Wildcard); err != nil {
		return req, err
	}

	orderName := h.defaults.Order
	if values.Has("order") {
		orderName = values.Get("order")
	}
	order, ok := ranker.ParseOrder(orderName)
	if !ok {
		return req, &apperrors.QueryConfigError{Option: "order", Reason: fmt.Sprintf("must be asc or desc, got %q", orderName)}
	}
	req.opts.Order = order

	req.opts.FieldBoost = make(map[string]float64, len(h.defaults.Boost))
	for field, weight := range h.defaults.Boost {
		if _, ok := snap.FieldIndex(field); ok {
			req.opts.FieldBoost[field] = weight
		}
	}
	if raw := values.Get("boost"); raw != "" {
		overrides, err := parseBoost(raw)
		if err != nil {
			return req, err
		}
		for field, weight := range overrides {
			req.opts.FieldBoost[field] = weight
		}
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return req, &apperrors.QueryConfigError{Option: "limit", Reason: "must be a positive integer"}
		}
		req.limit = limit
	}
	if h.defaults.MaxResults > 0 && req.limit > h.defaults.MaxResults {
		req.limit = h.defaults.MaxResults
	}
	if raw := values.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return req, &apperrors.QueryConfigError{Option: "offset", Reason: "must be a non-negative integer"}
		}
		req.offset = offset
	}
	return req, nil
}

func boolParam(values url.Values, name string, fallback bool) (bool, error) {
	if !values.Has(name) {
		return fallback, nil
	}
	v, err := strconv.ParseBool(values.Get(name))
	if err != nil {
		return fallback, &apperrors.QueryConfigError{Option: name, Reason: fmt.Sprintf("not a boolean: %q", values.Get(name))}
	}
	return v, nil
}

// parseBoost reads "title:2,text:0.5".
func parseBoost(raw string) (map[string]float64, error) {
	boosts := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		field, weight, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found || field == "" {
			return nil, &apperrors.QueryConfigError{Option: "boost", Reason: fmt.Sprintf("expected field:weight, got %q", pair)}
		}
		w, err := strconv.ParseFloat(weight, 64)
		if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, &apperrors.QueryConfigError{Option: "boost", Reason: fmt.Sprintf("invalid weight for %s: %q", field, weight)}
		}
		boosts[field] = w
	}
	return boosts, nil
}

func paginate(results []executor.Result, offset, limit int) []executor.Result {
	if offset >= len(results) {
		return []executor.Result{}
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	snap := h.searcher.Snapshot()
	if snap == nil {
		h.writeError(w, &apperrors.NotReadyError{})
		return
	}
	h.writeJSON(w, http.StatusOK, snap.Stats())
}

// IndexReload fetches the blob named by ?key=, or the configured one.
func (h *Handler) IndexReload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reloading is disabled"})
		return
	}
	outcome, err := h.reloader.Reload(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		logger.FromContext(r.Context()).Error("index reload failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) recordQuery(resultType, cacheStatus string, start time.Time, results int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	if resultType != "error" {
		h.metrics.SearchResultsCount.Observe(float64(results))
	}
}

// writeJSON leaves HTML in payloads unescaped so they reach the client
// byte for byte.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
