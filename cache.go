package blogconsole

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Collection names a family of cache entries.
type Collection string

const (
	CollectionPosts    Collection = "producer-blog-posts"
	CollectionInsights Collection = "producer-blog-insights"
)

type entryID struct {
	collection Collection
	producerID string
}

func (id entryID) String() string {
	return string(id.collection) + "/" + id.producerID
}

// Key addresses one cache entry holding a value of type T. Keys can only be
// built with PostsKey and InsightsKey, so two collections never share an
// entry.
type Key[T any] struct {
	id    entryID
	clone func(T) T
}

// PostsKey addresses the post list of a producer.
func PostsKey(producerID string) Key[[]BlogPost] {
	return Key[[]BlogPost]{id: entryID{CollectionPosts, producerID}, clone: ClonePosts}
}

// InsightsKey addresses the insights summary of a producer.
func InsightsKey(producerID string) Key[BlogInsightsSummary] {
	return Key[BlogInsightsSummary]{id: entryID{CollectionInsights, producerID}, clone: cloneInsights}
}

func (k Key[T]) Collection() Collection { return k.id.collection }
func (k Key[T]) ProducerID() string     { return k.id.producerID }
func (k Key[T]) String() string         { return k.id.String() }

func (k Key[T]) entry() entryID { return k.id }

// AnyKey is satisfied by every Key regardless of its value type.
type AnyKey interface {
	entry() entryID
}

// EntryMeta describes the lifecycle state of a cache entry.
type EntryMeta struct {
	FetchedAt time.Time
	Stale     bool
	InFlight  bool
}

// CacheEventKind tells subscribers what happened to an entry.
type CacheEventKind string

const (
	EventSet        CacheEventKind = "set"
	EventMutate     CacheEventKind = "mutate"
	EventInvalidate CacheEventKind = "invalidate"
	EventRemove     CacheEventKind = "remove"
)

// CacheEvent is delivered to subscribers after every write.
type CacheEvent struct {
	Kind       CacheEventKind
	Collection Collection
	ProducerID string
}

type cacheEntry struct {
	value     any
	hasValue  bool
	fetchedAt time.Time
	stale     bool
	inFlight  bool
	version   uint64
}

type subscriber struct {
	id int
	fn func(CacheEvent)
}

// Cache is the in-memory store of query results the console reads from.
// All writes go through Set, Mutate, Invalidate and Remove.
type Cache struct {
	mu      sync.Mutex
	entries map[entryID]*cacheEntry
	group   singleflight.Group

	staleTime time.Duration
	now       func() time.Time
	log       *slog.Logger
	metrics   *Metrics

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int

	wg sync.WaitGroup
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithStaleTime sets how long a fetched value counts as fresh. Zero or a
// negative duration disables time-based staleness.
func WithStaleTime(d time.Duration) CacheOption {
	return func(c *Cache) { c.staleTime = d }
}

// WithCacheLogger sets the logger used for background refetch failures.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.log = l }
}

// WithCacheMetrics records cache hits and misses.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// WithCacheClock replaces time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:   make(map[entryID]*cacheEntry),
		staleTime: 30 * time.Second,
		now:       time.Now,
		log:       discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) ensure(id entryID) *cacheEntry {
	e, ok := c.entries[id]
	if !ok {
		e = &cacheEntry{}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) isStale(e *cacheEntry) bool {
	if e.stale {
		return true
	}
	return c.staleTime > 0 && c.now().Sub(e.fetchedAt) >= c.staleTime
}

// Get returns a copy of the cached value. It never fetches.
func Get[T any](c *Cache, k Key[T]) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k.id]
	if !ok || !e.hasValue {
		var zero T
		return zero, false
	}
	return k.clone(e.value.(T)), true
}

// Set overwrites the entry and marks it fresh.
func Set[T any](c *Cache, k Key[T], v T) {
	c.mu.Lock()
	e := c.ensure(k.id)
	e.value = k.clone(v)
	e.hasValue = true
	e.fetchedAt = c.now()
	e.stale = false
	e.version++
	c.mu.Unlock()
	c.notify(EventSet, k.id)
}

// Mutate replaces the entry with fn applied to a copy of the current value.
// A missing entry is passed to fn as the zero value. fn runs under the cache
// lock and must not call back into the cache.
func Mutate[T any](c *Cache, k Key[T], fn func(T) T) {
	c.mu.Lock()
	e := c.ensure(k.id)
	var cur T
	if e.hasValue {
		cur = k.clone(e.value.(T))
	}
	e.value = k.clone(fn(cur))
	e.hasValue = true
	e.version++
	c.mu.Unlock()
	c.notify(EventMutate, k.id)
}

// Invalidate marks the entry stale and keeps its value, so readers keep
// seeing the old data until a refetch lands.
func (c *Cache) Invalidate(k AnyKey) {
	c.mu.Lock()
	e, ok := c.entries[k.entry()]
	if ok {
		e.stale = true
	}
	c.mu.Unlock()
	if ok {
		c.notify(EventInvalidate, k.entry())
	}
}

// Remove drops the entry.
func (c *Cache) Remove(k AnyKey) {
	c.mu.Lock()
	_, ok := c.entries[k.entry()]
	delete(c.entries, k.entry())
	c.mu.Unlock()
	if ok {
		c.notify(EventRemove, k.entry())
	}
}

// Meta returns the lifecycle metadata of an entry.
func (c *Cache) Meta(k AnyKey) (EntryMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k.entry()]
	if !ok {
		return EntryMeta{}, false
	}
	return EntryMeta{
		FetchedAt: e.fetchedAt,
		Stale:     c.isStale(e),
		InFlight:  e.inFlight,
	}, true
}

// Fetch returns the cached value when it is fresh and otherwise loads it
// with fn, blocking until the load completes.
func Fetch[T any](ctx context.Context, c *Cache, k Key[T], fn func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	e, ok := c.entries[k.id]
	if ok && e.hasValue && !c.isStale(e) {
		v := k.clone(e.value.(T))
		c.mu.Unlock()
		c.metrics.observeCache(k.id.collection, "hit")
		return v, nil
	}
	c.mu.Unlock()
	c.metrics.observeCache(k.id.collection, "miss")
	return Revalidate(ctx, c, k, fn)
}

// Load is the stale-while-revalidate read: a cached value is returned right
// away, and if it is stale a background refetch is started. Only a missing
// value blocks on fn.
func Load[T any](ctx context.Context, c *Cache, k Key[T], fn func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	e, ok := c.entries[k.id]
	if !ok || !e.hasValue {
		c.mu.Unlock()
		c.metrics.observeCache(k.id.collection, "miss")
		return Revalidate(ctx, c, k, fn)
	}
	v := k.clone(e.value.(T))
	refetch := c.isStale(e) && !e.inFlight
	c.mu.Unlock()

	if !refetch {
		c.metrics.observeCache(k.id.collection, "hit")
		return v, nil
	}
	c.metrics.observeCache(k.id.collection, "stale")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := Revalidate(context.WithoutCancel(ctx), c, k, fn); err != nil {
			c.log.Warn("background refetch failed", slog.String("key", k.String()), slog.Any("err", err))
		}
	}()
	return v, nil
}

// Revalidate loads the entry with fn regardless of its state. Concurrent
// callers for the same key share one call of fn. A result is not stored if
// the entry was written locally while fn was running.
func Revalidate[T any](ctx context.Context, c *Cache, k Key[T], fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ch := c.group.DoChan(k.id.String(), func() (any, error) {
		c.mu.Lock()
		e := c.ensure(k.id)
		e.inFlight = true
		started := e.version
		c.mu.Unlock()

		v, err := fn(context.WithoutCancel(ctx))

		applied := false
		c.mu.Lock()
		if e, ok := c.entries[k.id]; ok {
			e.inFlight = false
			if err == nil && e.version == started {
				e.value = k.clone(v)
				e.hasValue = true
				e.fetchedAt = c.now()
				e.stale = false
				e.version++
				applied = true
			}
		}
		c.mu.Unlock()
		if applied {
			c.notify(EventSet, k.id)
		}
		return v, err
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		if r.Shared {
			c.metrics.observeCache(k.id.collection, "shared")
		}
		return k.clone(r.Val.(T)), nil
	}
}

// Subscribe registers fn for every cache event. Events are delivered after
// the write completes, outside the cache lock, in subscription order.
func (c *Cache) Subscribe(fn func(CacheEvent)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Cache) notify(kind CacheEventKind, id entryID) {
	c.subMu.Lock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	ev := CacheEvent{Kind: kind, Collection: id.collection, ProducerID: id.producerID}
	for _, s := range subs {
		s.fn(ev)
	}
}

// Wait blocks until background refetches started by Load have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}
