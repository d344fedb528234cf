package livedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Entry is a cached fetch result
type Entry struct {
	Data      map[string]interface{} `json:"data"`
	FetchedAt time.Time              `json:"fetched_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Cache stores fetch results for a bounded time
type Cache interface {
	Name() string
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
	Close() error
}

// NormalizeQuery lowercases and trims a query so equivalent requests share cache entries
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Key builds the cache key for a source and query
func Key(source, query string) string {
	return "livedata:" + source + ":" + NormalizeQuery(query)
}

// MemoryCache is a process-local cache
type MemoryCache struct {
	c *cache.Cache
}

// NewMemoryCache creates an in-process cache with the given default TTL
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{c: cache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Name() string { return "memory" }

func (m *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*Entry)
	copied := *entry
	return &copied, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	copied := *entry
	m.c.Set(key, &copied, ttl)
	return nil
}

func (m *MemoryCache) Close() error {
	m.c.Flush()
	return nil
}

// RedisCache stores JSON-encoded entries in Redis with per-key expiry
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache parses redisURL, configures the connection pool and verifies
// the server is reachable
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Name() string { return "redis" }

func (r *RedisCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("redis entry %s: %w", key, err)
	}
	return &entry, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
