package geocache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/location-picker/internal/domain"
	"github.com/couchcryptid/location-picker/internal/observability"
)

// lookupTimeout bounds a shared upstream call, which no single caller's
// cancellation can stop.
const lookupTimeout = 10 * time.Second

// CachedGeocoder wraps a Geocoder with in-memory LRU caches for reverse
// lookups and suggestions. Concurrent identical lookups share one upstream call.
type CachedGeocoder struct {
	inner       domain.Geocoder
	reverse     *lruCache[domain.GeocodingResult]
	suggestions *lruCache[[]domain.Candidate]
	group       singleflight.Group
	metrics     *observability.Metrics
}

// New creates a cache decorator around a geocoder. Each cache holds at most
// maxEntries entries.
func New(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:       inner,
		reverse:     newLRUCache[domain.GeocodingResult](maxEntries),
		suggestions: newLRUCache[[]domain.Candidate](maxEntries),
		metrics:     metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := fmt.Sprintf("rev:%.6f,%.6f", lat, lon)
	if result, ok := c.reverse.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("reverse", "hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("reverse", "miss").Inc()

	return shared(ctx, &c.group, key, func(ctx context.Context) (domain.GeocodingResult, error) {
		result, err := c.inner.ReverseGeocode(ctx, lat, lon)
		if err != nil {
			return result, err
		}
		// Only cache non-empty results so transient "not found" responses can be retried.
		if strings.TrimSpace(result.FormattedAddress) != "" {
			c.reverse.put(key, result)
		}
		return result, nil
	})
}

func (c *CachedGeocoder) Suggest(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	key := fmt.Sprintf("sug:%d:%s", limit, strings.ToLower(strings.TrimSpace(query)))
	if result, ok := c.suggestions.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("suggest", "hit").Inc()
		return clone(result), nil
	}
	c.metrics.GeocodeCache.WithLabelValues("suggest", "miss").Inc()

	result, err := shared(ctx, &c.group, key, func(ctx context.Context) ([]domain.Candidate, error) {
		result, err := c.inner.Suggest(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if len(result) > 0 {
			c.suggestions.put(key, clone(result))
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(result), nil
}

// shared runs fn once for all concurrent callers of key. The call runs on a
// context detached from the caller's cancellation and bounded by
// lookupTimeout; each caller stops waiting when its own ctx is done.
func shared[V any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (V, error)) (V, error) {
	ch := g.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		v, err := fn(callCtx)
		return v, err
	})

	var zero V
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func clone(in []domain.Candidate) []domain.Candidate {
	if in == nil {
		return nil
	}
	out := make([]domain.Candidate, len(in))
	copy(out, in)
	return out
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries <= 0 {
		return
	}

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
