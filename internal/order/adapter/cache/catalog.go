package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"restaurant-system/internal/order/app/core"
	"restaurant-system/internal/order/domain/models"
	"restaurant-system/internal/xpkg/config"
	"restaurant-system/internal/xpkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	ProductKeyPrefix = "catalog:product:"
	DefaultTTL       = 5 * time.Minute
)

// Store is the part of *redis.Client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Catalog is a read-through cache in front of another catalog. Redis
// failures are logged and the lookup falls through to the backing
// catalog; the cache never decides an answer on its own.
type Catalog struct {
	next  core.ICatalog
	rdb   Store
	ttl   time.Duration
	mylog logger.Logger
}

func NewCatalog(next core.ICatalog, rdb Store, ttl time.Duration, mylog logger.Logger) *Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{next: next, rdb: rdb, ttl: ttl, mylog: mylog.Action("catalog_cache")}
}

// Connect opens a redis client and pings it.
func Connect(ctx context.Context, cfg *config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func ProductKey(id uuid.UUID) string {
	return ProductKeyPrefix + id.String()
}

func (c *Catalog) GetProduct(ctx context.Context, id uuid.UUID) (models.Product, error) {
	key := ProductKey(id)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p models.Product
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		c.mylog.Warn("dropping undecodable cache entry", "key", key)
		c.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.mylog.Warn("redis get failed, reading through", "key", key, "error", err.Error())
	}

	p, err := c.next.GetProduct(ctx, id)
	if err != nil {
		return models.Product{}, err
	}

	if body, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil {
			c.mylog.Warn("redis set failed", "key", key, "error", err.Error())
		}
	}
	return p, nil
}

// Invalidate drops cached products, e.g. after a price change.
func (c *Catalog) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	return Invalidate(ctx, c.rdb, ids...)
}

// Invalidate drops the cached entries of ids from rdb. Writers that change
// products outside the order service call it so readers do not serve the
// old price or availability until the TTL runs out.
func Invalidate(ctx context.Context, rdb Store, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, ProductKey(id))
	}
	if err := rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("drop cached products: %w", err)
	}
	return nil
}
