package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const mappingCacheTTL = 10 * time.Minute

// MappingCache is a redis-backed lookaside cache for resolved product
// mappings. Lookups degrade to the database on any cache error; the cache is
// never authoritative, so it stores only positive resolutions.
type MappingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMappingCache creates a mapping cache around an existing redis client.
func NewMappingCache(client *redis.Client) *MappingCache {
	return &MappingCache{client: client, ttl: mappingCacheTTL}
}

func mappingKey(provider, externalRef string) string {
	return fmt.Sprintf("product_mapping:%s:%s", strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(externalRef))
}

// GetProductID returns the cached internal product id for an external ref.
func (c *MappingCache) GetProductID(ctx context.Context, provider, externalRef string) (uint, bool) {
	val, err := c.client.Get(ctx, mappingKey(provider, externalRef)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// SetProductID caches a resolved mapping for a bounded time.
func (c *MappingCache) SetProductID(ctx context.Context, provider, externalRef string, productID uint) {
	_ = c.client.Set(ctx, mappingKey(provider, externalRef), strconv.FormatUint(uint64(productID), 10), c.ttl).Err()
}
