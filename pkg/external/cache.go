package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cnv-acmg-classifier/internal/domain"
)

const catalogKeyPrefix = "cnv-acmg:catalog:"

// CatalogCache stores evidence catalogs in Redis so several API replicas share
// one download per variant kind.
type CatalogCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCatalogCache creates a new Redis-backed catalog cache
func NewCatalogCache(config domain.CacheConfig) (*CatalogCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCatalogCacheWithClient(client, config.CatalogTTL), nil
}

// NewCatalogCacheWithClient wraps an existing Redis client
func NewCatalogCacheWithClient(client *redis.Client, ttl time.Duration) *CatalogCache {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &CatalogCache{redis: client, defaultTTL: ttl}
}

// CachedCatalog represents a cached catalog with metadata
type CachedCatalog struct {
	Kind      domain.VariantKind     `json:"kind"`
	Catalog   domain.EvidenceCatalog `json:"catalog"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Get retrieves a cached catalog. A miss is reported as found=false with no error.
func (c *CatalogCache) Get(ctx context.Context, kind domain.VariantKind) (domain.EvidenceCatalog, bool, error) {
	key := catalogKey(kind)

	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get catalog cache: %w", err)
	}

	var cached CachedCatalog
	if err := json.Unmarshal(val, &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Catalog, true, nil
}

// Set caches a catalog; ttl 0 uses the default
func (c *CatalogCache) Set(ctx context.Context, kind domain.VariantKind, catalog domain.EvidenceCatalog, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	data, err := json.Marshal(CachedCatalog{
		Kind:      kind,
		Catalog:   catalog,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal catalog cache data: %w", err)
	}

	return c.redis.Set(ctx, catalogKey(kind), data, ttl).Err()
}

// Invalidate drops the cached catalog of a kind
func (c *CatalogCache) Invalidate(ctx context.Context, kind domain.VariantKind) error {
	return c.redis.Del(ctx, catalogKey(kind)).Err()
}

// Close releases the Redis connection pool
func (c *CatalogCache) Close() error {
	return c.redis.Close()
}

func catalogKey(kind domain.VariantKind) string {
	return catalogKeyPrefix + string(kind)
}
