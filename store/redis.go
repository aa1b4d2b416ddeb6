package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpire atomically increments a key and sets its TTL only when the
// key has no expiry yet. A single Lua round-trip closes the race between the
// increment and the expiry: without it a crash between INCRBYFLOAT and EXPIRE
// would leave an immortal counter.
var incrWithExpire = redis.NewScript(`
	local newval = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
	if tonumber(ARGV[2]) > 0 and redis.call('TTL', KEYS[1]) == -1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return newval
`)

// Redis is the production KV implementation. Increments are serialized by
// the Redis server, so concurrent spend recording never loses updates.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis at addr ("host:port") and verifies connectivity.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connect to redis at %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client (shared pools, sentinel, etc.).
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Read implements KV.
func (r *Redis) Read(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %q: %w", key, err)
	}
	return val, true, nil
}

// Write implements KV.
func (r *Redis) Write(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// Exists implements KV.
func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("store: exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Increment implements KV using the Lua script above.
func (r *Redis) Increment(ctx context.Context, key string, amount float64, ttl time.Duration) (float64, error) {
	ttlSeconds := int(ttl / time.Second)
	result, err := incrWithExpire.Run(ctx, r.client, []string{key},
		strconv.FormatFloat(amount, 'f', 10, 64), ttlSeconds).Result()
	if err != nil {
		return 0, fmt.Errorf("store: incr %q: %w", key, err)
	}

	// INCRBYFLOAT returns its result as a bulk string.
	switch v := result.(type) {
	case string:
		newVal, parseErr := strconv.ParseFloat(v, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("store: parse incr result %q: %w", v, parseErr)
		}
		return newVal, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("store: unexpected incr result type %T", result)
	}
}

// SetNX implements KV.
func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("store: setnx %q: %w", key, err)
	}
	return ok, nil
}

// Delete implements KV.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

// Close shuts down the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
