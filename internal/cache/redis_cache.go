package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"rinkdesk/backend/internal/domain"
)

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

// Client exposes the underlying connection so the ticket counter can share it.
func (c *RedisReportCache) Client() *redis.Client {
	return c.client
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) Get(ctx context.Context, key string) (*domain.Summary, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.Summary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value *domain.Summary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisReportCache) Generation(ctx context.Context, branchID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(branchID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// Invalidate moves the branch to a new generation and drops its cached summaries.
func (c *RedisReportCache) Invalidate(ctx context.Context, branchID string) error {
	if err := c.client.Incr(ctx, generationKey(branchID)).Err(); err != nil {
		return err
	}
	iter := c.client.Scan(ctx, 0, "report:"+branchID+":*", 100).Iterator()
	keys := make([]string, 0, 16)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
