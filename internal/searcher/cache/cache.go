// Package cache memoises search results in Redis. Keys include the index
// generation, so a rebuild makes every older entry unreachable without an
// explicit flush.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedsearch/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// ComputeFunc produces a result on a cache miss.
type ComputeFunc func(ctx context.Context) (*executor.SearchResult, error)

type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

type Option func(*QueryCache)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *QueryCache) {
		c.metrics = m
	}
}

// WithBreaker replaces the default circuit breaker guarding the store.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *QueryCache) {
		c.breaker = cb
	}
}

func New(store Store, ttl time.Duration, opts ...Option) *QueryCache {
	c := &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
			OnStateChange:    c.observeState,
		})
	}
	return c
}

type keyClause struct {
	Field string `json:"f"`
	Occur string `json:"o"`
	Text  string `json:"t"`
}

type keyMaterial struct {
	Generation uint64      `json:"g"`
	Limit      int         `json:"l"`
	Clauses    []keyClause `json:"c"`
}

// Key is the cache key of q evaluated with limit against index generation.
// Queries differing only in clause order or letter case share a key. Clause
// text is JSON-encoded, so a clause containing spaces or query syntax never
// collides with a query made of several clauses.
func Key(q parser.Query, limit int, generation uint64) string {
	m := keyMaterial{Generation: generation, Limit: limit, Clauses: make([]keyClause, len(q.Clauses))}
	for i, c := range q.Clauses {
		m.Clauses[i] = keyClause{
			Field: c.Field,
			Occur: string(c.Occur),
			Text:  strings.ToLower(strings.TrimSpace(c.Text)),
		}
	}
	sort.Slice(m.Clauses, func(i, j int) bool {
		a, b := m.Clauses[i], m.Clauses[j]
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		if a.Occur != b.Occur {
			return a.Occur < b.Occur
		}
		return a.Text < b.Text
	})
	raw, _ := json.Marshal(m)
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// Get returns a cached result. Store failures are logged and reported as a
// miss.
func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data string
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores result under key. Failures are logged, never returned.
func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
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

// GetOrCompute returns the cached result for (q, limit, generation) or
// computes and stores it. Concurrent misses on one key share a single
// compute. The cache never turns a computable query into an error: only
// compute's own error is returned.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	q parser.Query,
	limit int,
	generation uint64,
	compute ComputeFunc,
) (*executor.SearchResult, bool, error) {
	key := Key(q, limit, generation)
	if result, ok := c.Get(ctx, key); ok {
		c.recordHit(q)
		return result, true, nil
	}
	c.recordMiss(q)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result.
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

// BreakerState reports whether the store is currently being bypassed.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *QueryCache) recordHit(q parser.Query) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "query", q.Canonical())
}

func (c *QueryCache) recordMiss(q parser.Query) {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	c.logger.Debug("cache miss", "query", q.Canonical())
}

func (c *QueryCache) observeState(name string, _, to resilience.State) {
	if c.metrics != nil {
		c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}
