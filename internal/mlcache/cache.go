// Package mlcache provides the ephemeral, per-type-TTL cache for C3/C4's ML
// outputs (predictions, sentiment, anomaly flags, pattern matches, training
// metadata). It is deliberately a separate store from internal/persistence:
// that one is durable and has no expiry, this one is a cache and always has
// one (§6.6, I7, P6).
package mlcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind identifies which TTL bucket a cached value belongs to.
type Kind string

const (
	KindPrediction Kind = "prediction"
	KindSentiment  Kind = "sentiment"
	KindAnomaly    Kind = "anomaly"
	KindPattern    Kind = "pattern"
	KindTraining   Kind = "training"
)

// ttlFor returns the fixed TTL for each result kind, per §6.6.
func ttlFor(kind Kind) time.Duration {
	switch kind {
	case KindPrediction:
		return time.Hour
	case KindSentiment:
		return 30 * time.Minute
	case KindAnomaly:
		return 15 * time.Minute
	case KindPattern:
		return time.Hour
	case KindTraining:
		return 2 * time.Hour
	default:
		return 15 * time.Minute
	}
}

// Cache wraps a redis client with the fingerprint-keyed, typed-TTL API the
// rest of the system uses.
type Cache struct {
	client *redis.Client
}

// New connects to the redis instance at rawURL (e.g. "redis://localhost:6379/0").
func New(rawURL string) (*Cache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Cache{client: redis.NewClient(opts)}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping verifies connectivity, used by the ambient /health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func cacheKey(kind Kind, fingerprint string) string {
	return fmt.Sprintf("nova:ml:%s:%s", kind, fingerprint)
}

// Set stores value under (kind, fingerprint) with kind's fixed TTL.
func (c *Cache) Set(ctx context.Context, kind Kind, fingerprint string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling cache value: %w", err)
	}
	return c.client.Set(ctx, cacheKey(kind, fingerprint), data, ttlFor(kind)).Err()
}

// Get decodes the cached value for (kind, fingerprint) into dest. Returns
// redis.Nil (via errors.Is) when the key is absent or has expired — callers
// treat that as "recompute".
func (c *Cache) Get(ctx context.Context, kind Kind, fingerprint string, dest any) error {
	raw, err := c.client.Get(ctx, cacheKey(kind, fingerprint)).Result()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decoding cache value: %w", err)
	}
	return nil
}

// IsMiss reports whether err is the "key not found" sentinel from Get.
func IsMiss(err error) bool {
	return err == redis.Nil
}

// Invalidate removes a single cached value ahead of its TTL, used when a
// strategy change makes a cached prediction stale.
func (c *Cache) Invalidate(ctx context.Context, kind Kind, fingerprint string) error {
	return c.client.Del(ctx, cacheKey(kind, fingerprint)).Err()
}
