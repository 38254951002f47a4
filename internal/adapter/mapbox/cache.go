package mapbox

import (
	"container/list"
	"context"
	"sync"

	"github.com/civicsignal/report-pipeline/internal/domain"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-process LRU cache. Geocoding
// queries repeat heavily for popular locations, and Mapbox bills per request.
type CachedGeocoder struct {
	inner   domain.Geocoder
	metrics *observability.Metrics

	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key    string
	result domain.GeocodingResult
}

// NewCachedGeocoder creates an LRU-caching decorator around inner.
func NewCachedGeocoder(inner domain.Geocoder, capacity int, metrics *observability.Metrics) *CachedGeocoder {
	if capacity <= 0 {
		capacity = 1000
	}
	return &CachedGeocoder{
		inner:    inner,
		metrics:  metrics,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *CachedGeocoder) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	if result, ok := c.get(query); ok {
		if c.metrics != nil {
			c.metrics.GeocodeCache.WithLabelValues("lru", "hit").Inc()
		}
		return result, nil
	}
	if c.metrics != nil {
		c.metrics.GeocodeCache.WithLabelValues("lru", "miss").Inc()
	}

	result, err := c.inner.ForwardGeocode(ctx, query)
	if err != nil {
		return domain.GeocodingResult{}, err
	}
	// Empty results are not cached so transient upstream misses can heal.
	if result.Country != "" || result.City != "" || result.Lat != 0 || result.Lon != 0 {
		c.put(query, result)
	}
	return result, nil
}

func (c *CachedGeocoder) get(key string) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).result, true
}

func (c *CachedGeocoder) put(key string, result domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*cacheEntry).result = result
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, result: result})
	c.entries[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len reports the number of cached queries.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
