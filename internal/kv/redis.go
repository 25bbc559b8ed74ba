package kv

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nopeoplecar/uvdispatch/internal/config"
)

// RedisCache is the production Cache, backed by go-redis. Idle connections
// older than 120s are reaped and a health ping runs at construction.
type RedisCache struct {
	rdb *redis.Client
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(ctx context.Context, cfg *config.KVConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr(),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		ConnMaxIdleTime: 120 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisCache{rdb: rdb}, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) HSet(ctx context.Context, key, field, value string) error {
	return c.rdb.HSet(ctx, key, field, value).Err()
}

func (c *RedisCache) HMSet(ctx context.Context, key string, fields map[string]string) error {
	vals := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		vals[k] = v
	}
	return c.rdb.HSet(ctx, key, vals).Err()
}

func (c *RedisCache) HMSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if err := c.HMSet(ctx, key, fields); err != nil {
		return err
	}
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *RedisCache) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *RedisCache) HDel(ctx context.Context, key string, fields ...string) error {
	return c.rdb.HDel(ctx, key, fields...).Err()
}

func (c *RedisCache) LPush(ctx context.Context, key string, values ...string) error {
	return c.rdb.LPush(ctx, key, toAny(values)...).Err()
}

func (c *RedisCache) RPush(ctx context.Context, key string, values ...string) error {
	return c.rdb.RPush(ctx, key, toAny(values)...).Err()
}

func (c *RedisCache) LPop(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.LPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	return v, err == nil, err
}

func (c *RedisCache) RPop(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.RPop(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	return v, err == nil, err
}

func (c *RedisCache) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.LRange(ctx, key, start, stop).Result()
}

func (c *RedisCache) SAdd(ctx context.Context, key string, members ...string) error {
	return c.rdb.SAdd(ctx, key, toAny(members)...).Err()
}

func (c *RedisCache) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return c.rdb.SIsMember(ctx, key, member).Result()
}

func (c *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, key).Result()
}

func (c *RedisCache) SRem(ctx context.Context, key string, members ...string) error {
	return c.rdb.SRem(ctx, key, toAny(members)...).Err()
}

func (c *RedisCache) ZAdd(ctx context.Context, key, member string, score float64) error {
	return c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (c *RedisCache) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.ZRange(ctx, key, start, stop).Result()
}

func (c *RedisCache) ZRem(ctx context.Context, key string, members ...string) error {
	return c.rdb.ZRem(ctx, key, toAny(members)...).Err()
}

func (c *RedisCache) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return c.rdb.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Keys scans rather than blocking on KEYS
func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

func (c *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, key).Result()
}

func (c *RedisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *RedisCache) AtomicIncr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *RedisCache) AtomicCAS(ctx context.Context, key, oldValue, newValue string) (bool, error) {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[2])
  return 1
end
return 0
`
	res, err := c.rdb.Eval(ctx, script, []string{key}, oldValue, newValue).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// SetNX is the atomic SET NX PX the Lock is built on.
func (c *RedisCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// DeleteIfMatch is a token-compare release, implemented as a Lua script so
// the compare-then-delete is atomic.
func (c *RedisCache) DeleteIfMatch(ctx context.Context, key, expected string) (bool, error) {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`
	res, err := c.rdb.Eval(ctx, script, []string{key}, expected).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func toAny(vs []string) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
