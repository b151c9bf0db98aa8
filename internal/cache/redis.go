package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errStaleGeneration = errors.New("cache generation moved")

type RedisCache struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key, field string, dst any) (bool, error) {
	data, err := c.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s/%s: %w", key, field, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("cache decode %s/%s: %w", key, field, err)
	}
	return true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, field string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s/%s: %w", key, field, err)
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, field, data)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set %s/%s: %w", key, field, err)
	}
	return nil
}

func (c *RedisCache) SetIfGeneration(ctx context.Context, key, field string, gen int64, value any, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache encode %s/%s: %w", key, field, err)
	}
	gk := generationKey(key)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, data)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}, gk)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("cache set %s/%s: %w", key, field, err)
	}
}

// Generation creates the counter at zero when missing so a later
// InvalidatePrefix scan finds and moves it.
func (c *RedisCache) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := c.client.IncrBy(ctx, generationKey(key), 0).Result()
	if err != nil {
		return 0, fmt.Errorf("cache generation %s: %w", key, err)
	}
	return gen, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.Incr(ctx, generationKey(key))
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) InvalidatePrefix(ctx context.Context, prefix string) error {
	keys, err := c.scan(ctx, prefix+"*")
	if err != nil {
		return err
	}
	gens, err := c.scan(ctx, generationKey(prefix)+"*")
	if err != nil {
		return err
	}
	if len(keys) == 0 && len(gens) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	for _, gk := range gens {
		pipe.Incr(ctx, gk)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) scan(ctx context.Context, match string) ([]string, error) {
	iter := c.client.Scan(ctx, 0, match, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func generationKey(key string) string {
	return "gen:" + key
}
