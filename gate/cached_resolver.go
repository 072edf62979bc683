package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Resolver resolves a subject (e.g. a user id) to its role.
type Resolver[U comparable, R any] interface {
	Resolve(ctx context.Context, subject U) (R, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc[U comparable, R any] func(ctx context.Context, subject U) (R, error)

func (f ResolverFunc[U, R]) Resolve(ctx context.Context, subject U) (R, error) {
	return f(ctx, subject)
}

// CachedResolver wraps a Resolver with TTL-based caching so authorization
// checks do not hit the database on every request. Concurrent misses for the
// same subject share one inner lookup.
type CachedResolver[U comparable, R any] struct {
	inner Resolver[U, R]
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	cache map[U]cacheEntry[R]
	group singleflight.Group
}

type cacheEntry[R any] struct {
	value     R
	expiresAt time.Time
}

// NewCachedResolver wraps inner; ttl is how long a role stays cached.
func NewCachedResolver[U comparable, R any](inner Resolver[U, R], ttl time.Duration) *CachedResolver[U, R] {
	return &CachedResolver[U, R]{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[U]cacheEntry[R]),
	}
}

// Resolve returns the cached role for subject, fetching it when missing or expired.
// Errors are not cached.
func (r *CachedResolver[U, R]) Resolve(ctx context.Context, subject U) (R, error) {
	r.mu.RLock()
	entry, ok := r.cache[subject]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	v, err, _ := r.group.Do(fmt.Sprint(subject), func() (any, error) {
		value, err := r.inner.Resolve(ctx, subject)
		if err != nil {
			return value, err
		}
		r.mu.Lock()
		r.cache[subject] = cacheEntry[R]{value: value, expiresAt: r.now().Add(r.ttl)}
		r.mu.Unlock()
		return value, nil
	})
	if err != nil {
		var zero R
		return zero, err
	}
	value, _ := v.(R)
	return value, nil
}

// Invalidate removes a subject from the cache.
// Call this when a user's role changes.
func (r *CachedResolver[U, R]) Invalidate(subject U) {
	r.mu.Lock()
	delete(r.cache, subject)
	r.mu.Unlock()
}

// InvalidateAll clears the entire cache.
func (r *CachedResolver[U, R]) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[U]cacheEntry[R])
	r.mu.Unlock()
}
