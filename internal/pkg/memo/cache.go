// Package memo provides a bounded, time-limited LRU cache that memoizes the
// result of an expensive computation per key. Concurrent callers asking for
// the same key share one in-flight computation; a failed computation is
// evicted so the next caller retries it.
//
// The shared computation runs detached from any caller's cancellation, and
// each caller stops waiting only when its own context ends. Eviction
// callbacks run after the cache lock is released.
package memo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/ignite/campaign-dashboard/internal/metrics"
)

// Options bounds a Cache.
type Options[V any] struct {
	// Name labels the cache in metrics.
	Name string
	// Max is the maximum number of entries. Zero means unbounded.
	Max int
	// TTL is how long an entry lives after insertion. Zero means forever.
	TTL time.Duration
	// OnEvict is called with successfully computed values when they leave
	// the cache, e.g. to close a client handle. It never runs while the
	// cache is locked, so it may block. Entries dropped by the background
	// expiry sweep are delivered on the next cache operation.
	OnEvict func(key string, value V)
}

// Cache memoizes values of type V keyed by any JSON-serializable key.
// It is safe for concurrent use.
type Cache[V any] struct {
	name    string
	mu      sync.Mutex
	lru     *expirable.LRU[string, *entry[V]]
	onEvict func(key string, value V)

	evictMu sync.Mutex
	pending []eviction[V]
}

type eviction[V any] struct {
	key   string
	value V
}

type entry[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func (e *entry[V]) wait(ctx context.Context) (V, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// completed reports whether the computation finished without error.
func (e *entry[V]) completed() bool {
	select {
	case <-e.done:
		return e.err == nil
	default:
		return false
	}
}

// New creates a cache bounded by opts.
func New[V any](opts Options[V]) *Cache[V] {
	c := &Cache[V]{name: opts.Name, onEvict: opts.OnEvict}
	if c.name == "" {
		c.name = "memo"
	}
	c.lru = expirable.NewLRU[string, *entry[V]](opts.Max, c.evicted, opts.TTL)
	return c
}

// evicted runs inside the LRU with c.mu held, so it only queues the value.
func (c *Cache[V]) evicted(key string, e *entry[V]) {
	if c.onEvict != nil && e.completed() {
		c.evictMu.Lock()
		c.pending = append(c.pending, eviction[V]{key: key, value: e.value})
		c.evictMu.Unlock()
	}
}

// flush delivers queued evictions. Callers must not hold c.mu.
func (c *Cache[V]) flush() {
	c.evictMu.Lock()
	pending := c.pending
	c.pending = nil
	c.evictMu.Unlock()
	for _, ev := range pending {
		c.onEvict(ev.key, ev.value)
	}
}

// Key serializes a composite key the same way Get does.
func Key(key any) (string, error) {
	if s, ok := key.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("memo: serialize key: %w", err)
	}
	return string(b), nil
}

// Get returns the value cached for key, computing it with getter on a miss.
// The entry is stored before getter runs, so concurrent callers for the same
// key wait on the same computation instead of starting their own. getter
// receives ctx without its cancellation; ctx only bounds how long this
// caller waits.
func (c *Cache[V]) Get(ctx context.Context, key any, getter func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	k, err := Key(key)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	if e, ok := c.lru.Get(k); ok {
		c.mu.Unlock()
		c.flush()
		metrics.RecordCacheLookup(c.name, true)
		return e.wait(ctx)
	}
	e := &entry[V]{done: make(chan struct{})}
	c.lru.Add(k, e)
	c.mu.Unlock()
	c.flush()
	metrics.RecordCacheLookup(c.name, false)

	go c.compute(context.WithoutCancel(ctx), k, e, getter)
	return e.wait(ctx)
}

func (c *Cache[V]) compute(ctx context.Context, k string, e *entry[V], getter func(ctx context.Context) (V, error)) {
	e.value, e.err = call(ctx, getter)
	if e.err != nil {
		c.mu.Lock()
		if cur, ok := c.lru.Peek(k); ok && cur == e {
			c.lru.Remove(k)
		}
		c.mu.Unlock()
	}
	close(e.done)
}

func call[V any](ctx context.Context, getter func(ctx context.Context) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("memo: getter panicked: %v", r)
		}
	}()
	return getter(ctx)
}

// Set stores an already computed value under key.
func (c *Cache[V]) Set(key any, value V) error {
	k, err := Key(key)
	if err != nil {
		return err
	}
	e := &entry[V]{done: make(chan struct{}), value: value}
	close(e.done)
	c.mu.Lock()
	c.lru.Add(k, e)
	c.mu.Unlock()
	c.flush()
	return nil
}

// Del removes key from the cache.
func (c *Cache[V]) Del(key any) {
	k, err := Key(key)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.lru.Remove(k)
	c.mu.Unlock()
	c.flush()
}

// Reset empties the cache.
func (c *Cache[V]) Reset() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
	c.flush()
}

// Len returns the number of entries, including in-flight ones.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
