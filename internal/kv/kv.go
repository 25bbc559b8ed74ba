// Package kv is the thin, connection-pooled KV client: string/hash/list/
// set/zset operations plus TTL and a distributed lock, used for per-vehicle
// candidate caches, geocode caches, and the dead-letter store. Grounded on
// Orderdeadletter.h's
// RedisUtils::HSet/HGet/HGetAll/HMSetWithTTL/Keys/GetTTL/Del call shapes.
package kv

import (
	"context"
	"time"
)

// Cache is the full contract the core depends on. RedisCache implements it
// over go-redis; MemCache implements it in-process for tests.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)

	HSet(ctx context.Context, key, field, value string) error
	HMSet(ctx context.Context, key string, fields map[string]string) error
	HMSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	LPush(ctx context.Context, key string, values ...string) error
	RPush(ctx context.Context, key string, values ...string) error
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error

	ZAdd(ctx context.Context, key string, member string, score float64) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error

	Del(ctx context.Context, keys ...string) error
	// Keys lists keys matching pattern. MUST scan rather than block with
	// KEYS on a live Redis.
	Keys(ctx context.Context, pattern string) ([]string, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	AtomicIncr(ctx context.Context, key string) (int64, error)
	AtomicCAS(ctx context.Context, key, oldValue, newValue string) (bool, error)

	// SetNX and DeleteIfMatch are the primitives the distributed Lock is
	// built on: atomic SET NX PX, and a token-compare delete.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DeleteIfMatch(ctx context.Context, key, expected string) (bool, error)

	Close() error
}
