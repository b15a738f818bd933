package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "myamara:reports:"
	generationKey = keyPrefix + "generation"
)

// redisClient is the part of *redis.Client the report cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisReportCache namespaces keys by a generation counter. Bumping the
// counter orphans old entries, which then expire on their own TTL.
type RedisReportCache struct {
	client redisClient
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

// Scope reads the generation counter once and returns the key for key
// within it.
func (c *RedisReportCache) Scope(ctx context.Context, key string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		gen = 0
	} else if err != nil {
		return "", err
	}
	return keyPrefix + strconv.FormatInt(gen, 10) + ":" + key, nil
}

func (c *RedisReportCache) Get(ctx context.Context, scopedKey string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, scopedKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, scopedKey string, value any, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, scopedKey, payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}
