// Package cache keeps search results in Redis. Keys include the checksum of
// the snapshot that produced the results, so a reload can never serve stale
// hits; Invalidate only frees the memory early.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/loader"
	"github.com/Adithya-Monish-Kumar-K/article-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/article-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/article-search/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of *redis.Client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New wraps store. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-query-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
		OnStateChange: func(name string, state resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
			}
		},
	})
	return c
}

// Key derives the cache key for a query against snap. Queries that tokenize
// to the same terms share a key.
func Key(snap *loader.Snapshot, query string, opts executor.Options) string {
	plan := parser.Parse(query, snap.Tokenizer())
	var b strings.Builder
	b.WriteString(snap.ChecksumHex())
	b.WriteString("|q=")
	if plan.IsEmpty() {
		b.WriteString("<empty>")
	} else {
		b.WriteString(strconv.Quote(plan.Normalized()))
	}
	fmt.Fprintf(&b, "|fuzzy=%t|prefix=%t|wildcard=%t|order=%s", opts.Fuzzy, opts.Prefix, opts.Wildcard, opts.Order)
	fields := make([]string, 0, len(opts.FieldBoost))
	for field := range opts.FieldBoost {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(&b, "|boost.%s=%s", field, strconv.FormatFloat(opts.FieldBoost[field], 'g', -1, 64))
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (c *QueryCache) Get(ctx context.Context, key string) ([]executor.Result, bool) {
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	if data == "" {
		c.recordMiss()
		return nil, false
	}
	var results []executor.Result
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.recordMiss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, key string, results []executor.Result) {
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns cached results for key or runs compute once per key,
// however many callers ask concurrently. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func() ([]executor.Result, error),
) ([]executor.Result, bool, error) {
	if results, ok := c.Get(ctx, key); ok {
		return results, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]executor.Result), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports whether Redis is currently being bypassed.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

func (c *QueryCache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
