// Package cache stores recognized OCR text in Redis so re-verifying the same
// image does not run the engine again.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/taxfiler/kyc-ocr-service/internal/ocr"
)

const defaultTTL = 24 * time.Hour

// entry is the stored form of an ocr.Result
type entry struct {
	Text       string    `msgpack:"t"`
	Engine     string    `msgpack:"e"`
	Confidence float64   `msgpack:"c"`
	StoredAt   time.Time `msgpack:"s"`
}

// RedisTextCache implements ocr.TextCache
type RedisTextCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTextCache connects to addr and pings it.
// ttl <= 0 uses a 24h expiry.
func NewRedisTextCache(ctx context.Context, addr string, ttl time.Duration) (*RedisTextCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	slog.Info("[Cache] Redis initialized", "addr", addr)
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, ttl time.Duration) *RedisTextCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisTextCache{client: client, ttl: ttl}
}

// Get returns the cached result for key. A miss is (zero, false, nil).
func (c *RedisTextCache) Get(ctx context.Context, key string) (ocr.Result, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ocr.Result{}, false, nil
	}
	if err != nil {
		return ocr.Result{}, false, fmt.Errorf("redis get: %w", err)
	}

	res, err := decode(raw)
	if err != nil {
		return ocr.Result{}, false, err
	}
	return res, true, nil
}

// Set stores res under key with the cache TTL
func (c *RedisTextCache) Set(ctx context.Context, key string, res ocr.Result) error {
	raw, err := encode(res)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable
func (c *RedisTextCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (c *RedisTextCache) Close() error {
	return c.client.Close()
}

func encode(res ocr.Result) ([]byte, error) {
	raw, err := msgpack.Marshal(entry{
		Text:       res.Text,
		Engine:     res.Engine,
		Confidence: res.Confidence,
		StoredAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (ocr.Result, error) {
	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return ocr.Result{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return ocr.Result{Text: e.Text, Engine: e.Engine, Confidence: e.Confidence}, nil
}
