package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig configures the Redis client and adapter
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	Namespace  string
	TTL        time.Duration
}

// NewRedisClient creates a Redis client and checks connectivity
func NewRedisClient(ctx context.Context, config RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisAdapter stores JSON encoded values in Redis under a namespace
type RedisAdapter struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisAdapter wraps an existing client
func NewRedisAdapter(client *redis.Client, namespace string, ttl time.Duration) *RedisAdapter {
	if namespace == "" {
		namespace = "grantor"
	}
	return &RedisAdapter{client: client, namespace: namespace, ttl: ttl}
}

func (r *RedisAdapter) key(key string) string {
	return r.namespace + Separator + key
}

// Get returns a cached value
func (r *RedisAdapter) Get(ctx context.Context, key string) ([]string, bool, error) {
	if key == "" {
		return nil, false, ErrInvalidKey
	}

	data, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var value []string
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		// If unmarshal fails, delete corrupt data
		r.client.Del(ctx, r.key(key))
		return nil, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, true, nil
}

// Set stores a value
func (r *RedisAdapter) Set(ctx context.Context, key string, value []string) error {
	if key == "" {
		return ErrInvalidKey
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return r.client.Set(ctx, r.key(key), data, r.ttl).Err()
}

// Clear drops every key of the namespace
func (r *RedisAdapter) Clear(ctx context.Context) error {
	return r.deletePattern(ctx, r.namespace+Separator+"*")
}

// ClearByPrefixes drops the keys of the given scopes
func (r *RedisAdapter) ClearByPrefixes(ctx context.Context, prefixes ...string) error {
	for _, prefix := range prefixes {
		if err := r.deletePattern(ctx, r.key(prefix)+Separator+"*"); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisAdapter) deletePattern(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}
