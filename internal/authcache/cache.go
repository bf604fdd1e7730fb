// Package authcache caches validated API keys in Redis so repeated AUTH
// attempts with the same credentials skip the Auth service round trip.
// Cache keys are a SHA-256 digest of the credential pair; neither usernames
// nor passwords are stored.
package authcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "smtpgw:authkey:"

// Cache is a best-effort Redis cache. All operations swallow Redis errors;
// a broken cache degrades to validating every attempt upstream.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis at addr. Entries expire after ttl.
func New(addr string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached API key for the credential pair.
func (c *Cache) Get(ctx context.Context, username, password string) (string, bool) {
	key, err := c.rdb.Get(ctx, cacheKey(username, password)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("auth cache read failed", "error", err)
		return "", false
	}
	return key, true
}

// Set stores the API key for the credential pair.
func (c *Cache) Set(ctx context.Context, username, password, apiKey string) {
	if err := c.rdb.Set(ctx, cacheKey(username, password), apiKey, c.ttl).Err(); err != nil {
		c.logger.Warn("auth cache write failed", "error", err)
	}
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

func cacheKey(username, password string) string {
	sum := sha256.Sum256([]byte(username + "\x00" + password))
	return keyPrefix + hex.EncodeToString(sum[:])
}
