// Package cache stores search results in Redis. Keys embed the session, the
// epoch of the index instance and the generation the result was computed
// at, so any committed write, and any recreation of a session's index,
// makes older entries unreachable without explicit invalidation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/textsearch/pkg/resilience"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

const (
	keyPrefix = "search:"
	opTimeout = 250 * time.Millisecond
)

// Backend is the key-value store behind the cache; *pkgredis.Client
// satisfies it. Get must return an error for which pkgredis.IsNil reports
// true when the key is absent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Key identifies one cached result. Epoch is unique per index instance;
// generations restart when a session's index is recreated.
type Key struct {
	Session    string
	Epoch      string
	Generation uint64
	Query      string
	Limit      int
}

func (k Key) String() string {
	sum := sha256.Sum256([]byte(k.Query + "\x00" + strconv.Itoa(k.Limit)))
	return sessionPrefix(k.Session) + k.Epoch + ":" + strconv.FormatUint(k.Generation, 10) + ":" + hex.EncodeToString(sum[:16])
}

func sessionPrefix(session string) string {
	return keyPrefix + session + ":"
}

type Stats struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Errors  int64  `json:"errors"`
	Breaker string `json:"breaker"`
}

type QueryCache struct {
	backend Backend
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

func New(backend Backend, cfg config.RedisConfig, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     cfg.CacheTTL,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.BreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     cfg.BreakerResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		}),
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get looks k up. Backend failures and undecodable entries count as misses.
func (c *QueryCache) Get(ctx context.Context, k Key) (*executor.SearchResult, bool) {
	key := k.String()
	var data []byte
	err := c.call(ctx, "cache get", func(ctx context.Context) error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsNil(err) {
			data, err = nil, nil
		}
		return err
	})
	if err != nil || data == nil {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := msgpack.Unmarshal(data, &result); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.ObserveCache(true)
	return &result, true
}

// Set stores result under k with the generation the result was computed at.
func (c *QueryCache) Set(ctx context.Context, k Key, result *executor.SearchResult) {
	k.Generation = result.Generation
	data, err := msgpack.Marshal(result)
	if err != nil {
		c.logger.Error("cache encode failed", "query", k.Query, "error", err)
		return
	}
	key := k.String()
	c.call(ctx, "cache set", func(ctx context.Context) error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
}

// GetOrCompute returns the cached result for k or runs compute once for all
// concurrent callers asking for the same key. The boolean reports a hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	k Key,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, k); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(k.String(), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, k, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every entry of session, or of all sessions when session
// is empty.
func (c *QueryCache) Invalidate(ctx context.Context, session string) (int64, error) {
	prefix := keyPrefix
	if session != "" {
		prefix = sessionPrefix(session)
	}
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.backend.DeletePrefix(ctx, prefix)
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "session", session, "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.errors.Load(),
		Breaker: c.breaker.State().String(),
	}
}

// call runs fn through the breaker with a bounded deadline. Errors are
// counted and logged, never surfaced to searches.
func (c *QueryCache) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, opTimeout, op, fn)
	})
	if err != nil {
		c.errors.Add(1)
		c.logger.Debug(op+" failed", "error", err)
	}
	return err
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.ObserveCache(false)
}
