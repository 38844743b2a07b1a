// Package cache implements the two-tier TTL cache used in front of the
// catalog and exchange-rate APIs: a fast in-process map backed by an
// optional durable store. Durable failures are logged and swallowed; the
// in-process tier stays authoritative for the session.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"finflow/core/logger"
)

// Delimiter joins semantic key dimensions. Every call site formatting a
// composite key must use Key; two sites building exchange-rate keys by hand
// would silently miss each other's entries.
const Delimiter = ":"

// Key builds a composite cache key from its dimensions.
func Key(parts ...string) string {
	return strings.Join(parts, Delimiter)
}

// Store is a durable second tier. Implementations persist opaque JSON
// payloads together with the time they were stored.
type Store interface {
	Get(ctx context.Context, key string) (payload []byte, storedAt time.Time, err error)
	Set(ctx context.Context, key string, payload []byte, storedAt time.Time) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// ErrNotFound is returned by stores for missing keys.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "cache: entry not found" }

type memEntry[T any] struct {
	value    T
	storedAt time.Time
}

// Cache is one TTL-scoped cache instance. TTL is fixed per instance, not
// global: accounts, categories, rates and balances each get their own.
type Cache[T any] struct {
	name    string
	ttl     time.Duration
	durable Store
	now     func() time.Time

	mu  sync.RWMutex
	mem map[string]memEntry[T]
}

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithDurable attaches a durable second tier.
func WithDurable[T any](store Store) Option[T] {
	return func(c *Cache[T]) { c.durable = store }
}

// WithClock overrides the time source (tests).
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a cache named for logging, with a fixed TTL.
func New[T any](name string, ttl time.Duration, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		name: name,
		ttl:  ttl,
		now:  time.Now,
		mem:  make(map[string]memEntry[T]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key if it is still within TTL. The fast
// tier is consulted first; on miss the durable tier is read. Entries past
// TTL are purged from both tiers, not just skipped.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T
	now := c.now()

	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()
	if ok {
		if now.Sub(entry.storedAt) < c.ttl {
			c.log(ctx, key, "hit", "memory")
			return entry.value, true
		}
		c.purge(ctx, key)
		c.log(ctx, key, "expired", "memory")
		return zero, false
	}

	if c.durable == nil {
		c.log(ctx, key, "miss", "memory")
		return zero, false
	}

	payload, storedAt, err := c.durable.Get(ctx, key)
	if err != nil {
		if err != ErrNotFound {
			logger.Warn(ctx, "cache", "durable.read_failed",
				slog.String("key", key),
				slog.String("err", err.Error()),
			)
		}
		c.log(ctx, key, "miss", "durable")
		return zero, false
	}
	if now.Sub(storedAt) >= c.ttl {
		c.purge(ctx, key)
		c.log(ctx, key, "expired", "durable")
		return zero, false
	}

	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		c.purge(ctx, key)
		logger.Warn(ctx, "cache", "durable.decode_failed",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
		return zero, false
	}

	// Promote so the next read stays in process.
	c.mu.Lock()
	c.mem[key] = memEntry[T]{value: value, storedAt: storedAt}
	c.mu.Unlock()
	c.log(ctx, key, "hit", "durable")
	return value, true
}

// Set writes to both tiers before returning; the next Get always observes
// the write. Durable failures are non-fatal.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) {
	storedAt := c.now()
	c.mu.Lock()
	c.mem[key] = memEntry[T]{value: value, storedAt: storedAt}
	c.mu.Unlock()

	if c.durable == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		logger.Warn(ctx, "cache", "durable.encode_failed",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
		return
	}
	if err := c.durable.Set(ctx, key, payload, storedAt); err != nil {
		logger.Warn(ctx, "cache", "durable.write_failed",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
	}
}

// Delete removes key from both tiers.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	c.purge(ctx, key)
}

// Clear drops every entry from both tiers.
func (c *Cache[T]) Clear(ctx context.Context) {
	c.mu.Lock()
	c.mem = make(map[string]memEntry[T])
	c.mu.Unlock()
	if c.durable == nil {
		return
	}
	if err := c.durable.Clear(ctx); err != nil {
		logger.Warn(ctx, "cache", "durable.clear_failed",
			slog.String("err", err.Error()),
		)
	}
}

// GetOrFill returns the cached value or invokes fill once and stores the
// result. This is what makes rapid duplicate fetches coalesce into one
// upstream call inside the TTL window.
func (c *Cache[T]) GetOrFill(ctx context.Context, key string, fill func(context.Context) (T, error)) (T, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}
	value, err := fill(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(ctx, key, value)
	return value, nil
}

func (c *Cache[T]) purge(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()
	if c.durable == nil {
		return
	}
	if err := c.durable.Delete(ctx, key); err != nil {
		logger.Warn(ctx, "cache", "durable.delete_failed",
			slog.String("key", key),
			slog.String("err", err.Error()),
		)
	}
}

func (c *Cache[T]) log(ctx context.Context, key, outcome, tier string) {
	if !logger.ShouldSampleDebug() {
		return
	}
	logger.Debug(ctx, "cache", c.name+".get",
		slog.String("key", key),
		slog.String("cache", outcome),
		slog.String("tier", tier),
	)
}
