// Package cache is a read-through cache layer over Redis for arbitrary
// entities.
//
// Two lookup strategies are offered. QueryWithPassThrough caches negative
// results so lookups for ids that do not exist stop reaching the backing
// store (penetration defense). QueryWithLogicExpire stores an
// application-level expiry next to the payload and never blocks a reader:
// when an entry goes stale, one caller wins a short per-key lock and rebuilds
// asynchronously while everyone is served the stale payload (stampede
// defense).
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Tardigrade97/dianping/internal/clock"
	"github.com/Tardigrade97/dianping/internal/lock"
)

const (
	defaultNullTTL        = 2 * time.Minute
	defaultRebuildLease   = 10 * time.Second
	defaultRebuildTimeout = 5 * time.Second
	defaultRebuildWorkers = 10
	rebuildLockPrefix     = "cache:rebuild:"
)

// envelope wraps a payload with a logical expiry. The Redis key carrying an
// envelope has no store-level TTL; staleness is decided by ExpireAt alone.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt time.Time       `json:"expireTime"`
}

// Client is the cache-aside engine. Construct one per process and share it.
type Client struct {
	rdb   *redis.Client
	clock clock.Clock
	log   zerolog.Logger

	// rebuilds bounds how many async rebuilds run at once.
	rebuilds       *semaphore.Weighted
	rebuildLease   time.Duration
	rebuildTimeout time.Duration
	nullTTL        time.Duration

	wg sync.WaitGroup
}

type Option func(*Client)

// WithNullTTL overrides how long negative results are cached.
func WithNullTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.nullTTL = d
		}
	}
}

// WithRebuildWorkers overrides the size of the async rebuild pool.
func WithRebuildWorkers(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.rebuilds = semaphore.NewWeighted(n)
		}
	}
}

// WithRebuildLease overrides the per-key rebuild lock lease.
func WithRebuildLease(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rebuildLease = d
		}
	}
}

func NewClient(rdb *redis.Client, clk clock.Clock, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		rdb:            rdb,
		clock:          clk,
		log:            log,
		rebuilds:       semaphore.NewWeighted(defaultRebuildWorkers),
		rebuildLease:   defaultRebuildLease,
		rebuildTimeout: defaultRebuildTimeout,
		nullTTL:        defaultNullTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set writes an entity with a store-level TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// SetWithLogicExpire writes an entity wrapped in a logical-expiry envelope and
// no store-level TTL. This is also the pre-warm entry point for the
// logical-expiration lookup, which never falls back to the store on a cold
// miss.
func (c *Client) SetWithLogicExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	env := envelope{Data: raw, ExpireAt: c.clock.Now().Add(ttl)}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, payload, 0).Err()
}

// Invalidate deletes a cache key. Entity writers call this after the backing
// store commit; store write first, cache delete second.
func (c *Client) Invalidate(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// QueryWithPassThrough reads prefix+id from the cache, falling back to fetch
// on a miss. A fetch that finds nothing writes a short-lived empty marker so
// repeated lookups for the same absent id do not reach the store again.
// Both an absent entity and a cached negative result return (nil, nil).
func QueryWithPassThrough[T any](
	ctx context.Context,
	c *Client,
	prefix, id string,
	ttl time.Duration,
	fetch func(ctx context.Context, id string) (*T, error),
) (*T, error) {
	key := prefix + id

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == redis.Nil:
		// miss, fall through to fetch
	case err != nil:
		return nil, err
	case raw == "":
		// negative hit: the store was already asked and had nothing
		return nil, nil
	default:
		var v T
		if uerr := json.Unmarshal([]byte(raw), &v); uerr == nil {
			return &v, nil
		}
		c.log.Warn().Str("key", key).Msg("undecodable cache entry, refetching")
	}

	v, err := fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if serr := c.rdb.Set(ctx, key, "", c.nullTTL).Err(); serr != nil {
			return nil, serr
		}
		return nil, nil
	}
	if serr := c.Set(ctx, key, v, ttl); serr != nil {
		return nil, serr
	}
	return v, nil
}

// QueryWithLogicExpire reads prefix+id assuming the key was pre-warmed with
// SetWithLogicExpire. A fresh entry is returned as-is. A stale entry is
// returned as-is too, and the first caller to win the per-key rebuild lock
// refreshes it in the background; nobody waits. An absent key means not
// found; this path deliberately skips synchronous store access.
func QueryWithLogicExpire[T any](
	ctx context.Context,
	c *Client,
	prefix, id string,
	ttl time.Duration,
	fetch func(ctx context.Context, id string) (*T, error),
) (*T, error) {
	key := prefix + id

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var env envelope
	if uerr := json.Unmarshal([]byte(raw), &env); uerr != nil {
		c.log.Warn().Str("key", key).Msg("undecodable cache envelope")
		return nil, nil
	}
	var v T
	if uerr := json.Unmarshal(env.Data, &v); uerr != nil {
		c.log.Warn().Str("key", key).Msg("undecodable cache payload")
		return nil, nil
	}

	if env.ExpireAt.After(c.clock.Now()) {
		return &v, nil
	}

	tryRebuild(ctx, c, key, id, ttl, fetch)
	return &v, nil
}

// tryRebuild starts one async rebuild for a stale key if no other caller or
// process is already rebuilding it.
func tryRebuild[T any](ctx context.Context, c *Client, key, id string, ttl time.Duration, fetch func(ctx context.Context, id string) (*T, error)) {
	mutex := lock.New(c.rdb, rebuildLockPrefix+key, key)
	ok, err := mutex.TryLock(ctx, c.rebuildLease)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("rebuild lock attempt failed")
		return
	}
	if !ok {
		return
	}
	if !c.rebuilds.TryAcquire(1) {
		// Pool is saturated; give the lock back so a later reader can retry.
		if uerr := mutex.Unlock(ctx); uerr != nil {
			c.log.Warn().Err(uerr).Str("key", key).Msg("rebuild lock release failed")
		}
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.rebuilds.Release(1)

		// Detached from the reader's context: the reader already got its
		// (stale) answer.
		rctx, cancel := context.WithTimeout(context.Background(), c.rebuildTimeout)
		defer cancel()
		defer func() {
			if uerr := mutex.Unlock(rctx); uerr != nil {
				c.log.Warn().Err(uerr).Str("key", key).Msg("rebuild lock release failed")
			}
		}()

		v, ferr := fetch(rctx, id)
		if ferr != nil {
			c.log.Error().Err(ferr).Str("key", key).Msg("cache rebuild fetch failed")
			return
		}
		if v == nil {
			if derr := c.Invalidate(rctx, key); derr != nil {
				c.log.Error().Err(derr).Str("key", key).Msg("cache rebuild delete failed")
			}
			return
		}
		if serr := c.SetWithLogicExpire(rctx, key, v, ttl); serr != nil {
			c.log.Error().Err(serr).Str("key", key).Msg("cache rebuild write failed")
		}
	}()
}
