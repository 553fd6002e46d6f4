package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"newsreel/discoveryservice/internal/domain"
)

const redisCachePrefix = "discovery:cache:"

// RedisCacheBackend shares per-query clip lists across instances with
// JSON serialization.
type RedisCacheBackend struct {
	client *redis.Client
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) ([]domain.Clip, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}
	var clips []domain.Clip
	if err := json.Unmarshal(data, &clips); err != nil {
		return nil, false, err
	}
	return clips, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, clips []domain.Clip, ttl time.Duration) error {
	data, err := json.Marshal(clips)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisCachePrefix+key).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
