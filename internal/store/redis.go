package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fitspot/placesearch/internal/domain"
)

const defaultRedisPrefix = "placesearch:store:"

// RedisStore keeps each owner's records under its own key prefix: favorites as
// a hash plus an insertion-ordered sorted set, recents and history as capped lists.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	recentsMax int
	historyMax int
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		recentsMax: DefaultRecentsMax,
		historyMax: DefaultHistoryMax,
	}
}

func (r *RedisStore) key(owner, kind string) string {
	return r.prefix + NormalizeOwner(owner) + ":" + kind
}

func (r *RedisStore) ListFavorites(ctx context.Context, owner string) ([]domain.Place, error) {
	ids, err := r.client.ZRevRange(ctx, r.key(owner, "favorites:order"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Place{}, nil
	}
	values, err := r.client.HMGet(ctx, r.key(owner, "favorites"), ids...).Result()
	if err != nil {
		return nil, err
	}
	items := make([]domain.Place, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var place domain.Place
		if err := json.Unmarshal([]byte(raw), &place); err != nil {
			return nil, fmt.Errorf("decode favorite: %w", err)
		}
		items = append(items, place)
	}
	return items, nil
}

func (r *RedisStore) SaveFavorite(ctx context.Context, owner string, place domain.Place) error {
	if strings.TrimSpace(place.ID) == "" {
		return ErrInvalidPlace
	}
	data, err := json.Marshal(storedPlace(place))
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key(owner, "favorites"), place.ID, data)
		pipe.ZAddNX(ctx, r.key(owner, "favorites:order"), redis.Z{
			Score:  float64(time.Now().UnixNano()),
			Member: place.ID,
		})
		return nil
	})
	return err
}

func (r *RedisStore) RemoveFavorite(ctx context.Context, owner, placeID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.key(owner, "favorites"), placeID)
		pipe.ZRem(ctx, r.key(owner, "favorites:order"), placeID)
		return nil
	})
	return err
}

func (r *RedisStore) IsFavorite(ctx context.Context, owner, placeID string) (bool, error) {
	return r.client.HExists(ctx, r.key(owner, "favorites"), placeID).Result()
}

func (r *RedisStore) ListRecents(ctx context.Context, owner string, limit int) ([]domain.Place, error) {
	limit = clampLimit(limit, r.recentsMax)
	values, err := r.client.LRange(ctx, r.key(owner, "recents"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	items := make([]domain.Place, 0, len(values))
	for _, raw := range values {
		var place domain.Place
		if err := json.Unmarshal([]byte(raw), &place); err != nil {
			return nil, fmt.Errorf("decode recent: %w", err)
		}
		items = append(items, place)
	}
	return items, nil
}

// AddRecent rewrites the capped list with place in front. The read-modify-write
// runs under WATCH and is retried once on a concurrent change.
func (r *RedisStore) AddRecent(ctx context.Context, owner string, place domain.Place) error {
	if strings.TrimSpace(place.ID) == "" {
		return ErrInvalidPlace
	}
	data, err := json.Marshal(storedPlace(place))
	if err != nil {
		return err
	}
	key := r.key(owner, "recents")

	update := func(tx *redis.Tx) error {
		existing, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		kept := make([]any, 0, len(existing)+1)
		kept = append(kept, string(data))
		for _, raw := range existing {
			var item domain.Place
			if json.Unmarshal([]byte(raw), &item) == nil && item.ID == place.ID {
				continue
			}
			if len(kept) >= r.recentsMax {
				break
			}
			kept = append(kept, raw)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.RPush(ctx, key, kept...)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		err = r.client.Watch(ctx, update, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (r *RedisStore) ListHistory(ctx context.Context, owner string, limit int) ([]domain.HistoryEntry, error) {
	limit = clampLimit(limit, r.historyMax)
	values, err := r.client.LRange(ctx, r.key(owner, "history"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	items := make([]domain.HistoryEntry, 0, len(values))
	for _, raw := range values {
		var entry domain.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		items = append(items, entry)
	}
	return items, nil
}

func (r *RedisStore) AddHistory(ctx context.Context, owner string, entry domain.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := r.key(owner, "history")
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(r.historyMax-1))
		return nil
	})
	return err
}
