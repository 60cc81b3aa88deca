package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Cache is the read-side order status cache plus event dedup bookkeeping.
// Every operation is best-effort; Postgres stays the source of truth.
type Cache struct {
	rdb *redis.Client
}

func NewCache(rdb *redis.Client) *Cache { return &Cache{rdb: rdb} }

func (c *Cache) SetStatus(ctx context.Context, orderID, status string) error {
	b, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return err
	}
	key := fmt.Sprintf(KeyOrderStatus, orderID)
	return c.rdb.Set(ctx, key, b, TTLStatusCache).Err()
}

// GetStatus returns the cached status document as raw JSON, or an error on
// a cache miss.
func (c *Cache) GetStatus(ctx context.Context, orderID string) (string, error) {
	key := fmt.Sprintf(KeyOrderStatus, orderID)
	return c.rdb.Get(ctx, key).Result()
}

// MarkSeen records an event id for dedup and reports whether this was its
// first delivery.
func (c *Cache) MarkSeen(ctx context.Context, service, eventID string) (bool, error) {
	key := fmt.Sprintf(KeyDedup, service, eventID)
	return c.rdb.SetNX(ctx, key, "1", TTLDedup).Result()
}
