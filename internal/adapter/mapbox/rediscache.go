package mapbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicsignal/report-pipeline/internal/domain"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

const (
	redisKeyPrefix = "geocode:fwd:"
	redisEntryTTL  = 7 * 24 * time.Hour
)

// RedisGeocoder wraps a Geocoder with a shared Redis cache so that producer
// replicas share one lookup pool. Redis failures degrade to the inner
// geocoder rather than failing the request.
type RedisGeocoder struct {
	inner   domain.Geocoder
	client  *redis.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRedisGeocoder creates a Redis-backed caching decorator around inner.
func NewRedisGeocoder(inner domain.Geocoder, client *redis.Client, logger *slog.Logger, metrics *observability.Metrics) *RedisGeocoder {
	return &RedisGeocoder{
		inner:   inner,
		client:  client,
		logger:  logger,
		metrics: metrics,
	}
}

func (g *RedisGeocoder) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	key := redisKeyPrefix + query

	data, err := g.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached domain.GeocodingResult
		if err := json.Unmarshal(data, &cached); err == nil {
			if g.metrics != nil {
				g.metrics.GeocodeCache.WithLabelValues("redis", "hit").Inc()
			}
			return cached, nil
		}
		g.logger.Warn("discarding corrupt geocode cache entry", "key", key)
	} else if err != redis.Nil {
		g.logger.Warn("geocode cache read failed", "error", err)
	}
	if g.metrics != nil {
		g.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()
	}

	result, err := g.inner.ForwardGeocode(ctx, query)
	if err != nil {
		return domain.GeocodingResult{}, err
	}

	if result.Country != "" || result.City != "" || result.Lat != 0 || result.Lon != 0 {
		if data, err := json.Marshal(result); err == nil {
			if err := g.client.Set(ctx, key, data, redisEntryTTL).Err(); err != nil {
				g.logger.Warn("geocode cache write failed", "error", err)
			}
		}
	}
	return result, nil
}
