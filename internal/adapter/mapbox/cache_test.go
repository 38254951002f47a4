package mapbox

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/report-pipeline/internal/domain"
)

type countingGeocoder struct {
	calls   int
	results map[string]domain.GeocodingResult
}

func (g *countingGeocoder) ForwardGeocode(_ context.Context, query string) (domain.GeocodingResult, error) {
	g.calls++
	return g.results[query], nil
}

func TestCachedGeocoderHit(t *testing.T) {
	inner := &countingGeocoder{results: map[string]domain.GeocodingResult{
		"San Jose, CA": {City: "San Jose", State: "California", Country: "US", Lat: 37.3382, Lon: -121.8863},
	}}
	cached := NewCachedGeocoder(inner, 10, nil)

	first, err := cached.ForwardGeocode(context.Background(), "San Jose, CA")
	require.NoError(t, err)
	second, err := cached.ForwardGeocode(context.Background(), "San Jose, CA")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoderDoesNotCacheEmptyResults(t *testing.T) {
	inner := &countingGeocoder{results: map[string]domain.GeocodingResult{}}
	cached := NewCachedGeocoder(inner, 10, nil)

	_, err := cached.ForwardGeocode(context.Background(), "xyzzy")
	require.NoError(t, err)
	_, err = cached.ForwardGeocode(context.Background(), "xyzzy")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, cached.Len())
}

func TestCachedGeocoderEvictsOldest(t *testing.T) {
	inner := &countingGeocoder{results: map[string]domain.GeocodingResult{}}
	for i := 0; i < 5; i++ {
		query := fmt.Sprintf("city-%d", i)
		inner.results[query] = domain.GeocodingResult{City: query, Country: "US"}
	}
	cached := NewCachedGeocoder(inner, 3, nil)

	for i := 0; i < 5; i++ {
		_, err := cached.ForwardGeocode(context.Background(), fmt.Sprintf("city-%d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, cached.Len())
	assert.Equal(t, 5, inner.calls)

	// city-0 was evicted; city-4 is still resident.
	_, err := cached.ForwardGeocode(context.Background(), "city-0")
	require.NoError(t, err)
	assert.Equal(t, 6, inner.calls)

	_, err = cached.ForwardGeocode(context.Background(), "city-4")
	require.NoError(t, err)
	assert.Equal(t, 6, inner.calls)
}

func TestRedisGeocoder(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	inner := &countingGeocoder{results: map[string]domain.GeocodingResult{
		"Oakland, CA": {City: "Oakland", State: "California", Country: "US", Lat: 37.8044, Lon: -122.2712},
	}}
	cached := NewRedisGeocoder(inner, client, discardLogger(), nil)

	first, err := cached.ForwardGeocode(context.Background(), "Oakland, CA")
	require.NoError(t, err)
	second, err := cached.ForwardGeocode(context.Background(), "Oakland, CA")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.True(t, srv.Exists(redisKeyPrefix+"Oakland, CA"))
}

func TestRedisGeocoderFailsOpen(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	srv.Close()

	inner := &countingGeocoder{results: map[string]domain.GeocodingResult{
		"Oakland, CA": {City: "Oakland", Country: "US"},
	}}
	cached := NewRedisGeocoder(inner, client, discardLogger(), nil)

	result, err := cached.ForwardGeocode(context.Background(), "Oakland, CA")
	require.NoError(t, err)
	assert.Equal(t, "Oakland", result.City)
	assert.Equal(t, 1, inner.calls)
}
