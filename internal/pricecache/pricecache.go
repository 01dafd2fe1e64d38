package pricecache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RefreshFunc pulls a fresh value from upstream.
type RefreshFunc[T any] func(ctx context.Context) (T, error)

// Cache holds the most recent upstream pull and serves it until the
// freshness window lapses. A failed refresh never discards the previous
// value; stale data beats no data for every consumer here.
//
// The mutex is held across the refresh call, so a concurrent caller waits
// for the in-flight pull instead of issuing a duplicate upstream request.
type Cache[T any] struct {
	name    string
	ttl     time.Duration
	refresh RefreshFunc[T]
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	value     T
	primed    bool
	fetchedAt time.Time
}

// New constructs a cache around a refresh function.
func New[T any](name string, ttl time.Duration, refresh RefreshFunc[T], logger zerolog.Logger) *Cache[T] {
	return &Cache[T]{
		name:    name,
		ttl:     ttl,
		refresh: refresh,
		logger:  logger.With().Str("component", "pricecache").Str("source", name).Logger(),
		now:     time.Now,
	}
}

// Seed installs an initial value served until the first successful refresh.
// The seed does not count as fresh, so the first Get still hits upstream.
func (c *Cache[T]) Seed(value T) *Cache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.primed = true
	return c
}

// WithClock overrides the time source.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

// Get returns the cached value, refreshing it first when the freshness
// window has lapsed. Refresh failures are logged and the prior value is
// returned as-is.
func (c *Cache[T]) Get(ctx context.Context) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.value
	}

	fresh, err := c.refresh(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Bool("stale_available", c.primed).Msg("refresh failed, serving previous value")
		return c.value
	}

	c.value = fresh
	c.primed = true
	c.fetchedAt = c.now()
	return c.value
}

// Age reports how long ago the last successful refresh happened. Zero time
// means no successful refresh yet.
func (c *Cache[T]) Age() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchedAt, !c.fetchedAt.IsZero()
}
