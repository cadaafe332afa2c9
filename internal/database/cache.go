package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Cache key prefixes
	CacheKeyRouterStatus = "ispanel:router:status"
	LockKeyQuotaPass     = "ispanel:lock:quota-pass"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent or redis is disabled.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a JSON cache and lock helper over redis. A nil client turns every
// Get into a miss, every Set into a no-op and every TryLock into a success,
// so callers work the same with redis disabled.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Enabled reports whether a redis client is attached.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get retrieves a value and unmarshals it into dest
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if !c.Enabled() {
		return ErrCacheMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Set stores a value with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes keys
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// TryLock takes a short-lived lock shared by every process using the same
// redis. The returned release func is safe to call once the lock expired.
func (c *Cache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, func(), error) {
	if !c.Enabled() {
		return true, func() {}, nil
	}
	token := time.Now().UTC().Format(time.RFC3339Nano)
	ok, err := c.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return false, func() {}, err
	}
	release := func() {
		// only delete our own token
		if v, err := c.client.Get(context.Background(), key).Result(); err == nil && v == token {
			c.client.Del(context.Background(), key)
		}
	}
	return true, release, nil
}
