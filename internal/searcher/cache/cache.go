// Package cache memoises search results in Redis. Keys are derived from the
// identity of the index and the tokenized query, so a reloaded index never
// serves results computed against its predecessor.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/resilience"
)

const keyPrefix = "bm25:search:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var _ Backend = (*pkgredis.Client)(nil)

type QueryCache struct {
	client  Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client Backend, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	c := &QueryCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("query-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		OnStateChange: func(name string, _, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	if m != nil {
		m.CircuitBreakerState.WithLabelValues("query-cache").Set(float64(resilience.StateClosed))
	}
	return c
}

// Scope identifies an index for cache keys. The corpus fingerprint is used
// when the index has one; otherwise the shape of the index stands in.
func Scope(st index.Stats) string {
	if st.Fingerprint != "" {
		return st.Fingerprint + "|" + string(st.Mode)
	}
	return fmt.Sprintf("n=%d|v=%d|t=%d|k1=%g|b=%g|%s",
		st.TotalDocs, st.VocabularySize, st.TotalTokens, st.K1, st.B, st.Mode)
}

func (c *QueryCache) Get(ctx context.Context, key string) (*executor.SearchResult, bool) {
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.client.GetBytes(ctx, key)
		if pkgredis.IsNilError(err) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if data == nil {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for plan against the index named
// by scope, computing and storing it on a miss. Concurrent misses for the
// same key share one computation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	scope string,
	plan *parser.QueryPlan,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	key := BuildKey(scope, plan, limit)
	if result, ok := c.Get(ctx, key); ok {
		result.Query = plan.RawQuery
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
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

func (c *QueryCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.client.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the scope, the tokenized terms and the limit. Term order
// is kept because it fixes the order scores are summed in.
func BuildKey(scope string, plan *parser.QueryPlan, limit int) string {
	var b strings.Builder
	b.WriteString(scope)
	b.WriteByte(0)
	b.WriteString(string(plan.Mode))
	for _, t := range plan.Terms {
		b.WriteByte(0x1f)
		b.WriteString(t)
	}
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(limit))
	sum := blake3.Sum256([]byte(b.String()))
	return keyPrefix + hex.EncodeToString(sum[:16])
}
