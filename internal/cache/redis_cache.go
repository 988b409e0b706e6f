package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"tiendapos/backend/internal/domain"
)

const lowStockKey = "inventory:low-stock"

// RedisLowStockCache stores the low-stock listing as a JSON blob under a
// single key. Cache faults are logged and treated as misses.
type RedisLowStockCache struct {
	client *redis.Client
}

func NewRedisLowStockCache(ctx context.Context, addr, password string, db int) (*RedisLowStockCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisLowStockCache{client: client}, nil
}

func (c *RedisLowStockCache) Get(ctx context.Context) ([]domain.Product, bool) {
	raw, err := c.client.Get(ctx, lowStockKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("[cache] get %s: %v", lowStockKey, err)
		return nil, false
	}
	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		log.Printf("[cache] decode %s: %v", lowStockKey, err)
		return nil, false
	}
	return products, true
}

func (c *RedisLowStockCache) Set(ctx context.Context, products []domain.Product, ttl time.Duration) {
	raw, err := json.Marshal(products)
	if err != nil {
		log.Printf("[cache] encode %s: %v", lowStockKey, err)
		return
	}
	if err := c.client.Set(ctx, lowStockKey, raw, ttl).Err(); err != nil {
		log.Printf("[cache] set %s: %v", lowStockKey, err)
	}
}

func (c *RedisLowStockCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, lowStockKey).Err(); err != nil {
		log.Printf("[cache] invalidate %s: %v", lowStockKey, err)
	}
}

func (c *RedisLowStockCache) Close() error { return c.client.Close() }
