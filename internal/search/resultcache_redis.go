package search

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/metrics"
)

const redisResultCachePrefix = "placesearch:details:"

// RedisResultCache stores detailed place records in Redis with JSON serialization.
// A zero ttl keeps records until they are overwritten.
type RedisResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisResultCache(client *redis.Client, ttl time.Duration) *RedisResultCache {
	return &RedisResultCache{client: client, ttl: ttl}
}

func (r *RedisResultCache) Lookup(ctx context.Context, placeID string) (domain.Place, bool, error) {
	data, err := r.client.Get(ctx, redisResultCachePrefix+placeID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.ResultCacheMissesTotal.WithLabelValues("redis").Inc()
			return domain.Place{}, false, nil
		}
		return domain.Place{}, false, err
	}
	var place domain.Place
	if err := json.Unmarshal(data, &place); err != nil {
		return domain.Place{}, false, err
	}
	metrics.ResultCacheHitsTotal.WithLabelValues("redis").Inc()
	return place, true, nil
}

func (r *RedisResultCache) Store(ctx context.Context, placeID string, place domain.Place) error {
	data, err := json.Marshal(place)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisResultCachePrefix+placeID, data, r.ttl).Err()
}

func (r *RedisResultCache) Get(ctx context.Context, placeID string) (domain.Place, bool) {
	place, ok, err := r.Lookup(ctx, placeID)
	if err != nil {
		slog.Warn("redis result cache lookup failed", slog.String("placeId", placeID), slog.String("error", err.Error()))
		return domain.Place{}, false
	}
	return place, ok
}

func (r *RedisResultCache) Put(ctx context.Context, placeID string, place domain.Place) {
	if err := r.Store(ctx, placeID, place); err != nil {
		slog.Warn("redis result cache store failed", slog.String("placeId", placeID), slog.String("error", err.Error()))
	}
}
