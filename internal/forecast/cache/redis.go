// Package cache keeps a hot copy of each tenant's forecast snapshot in
// redis so read-heavy tenants skip the database on most lookups. The redis
// layer is optional: with no client configured every call degrades to a
// miss and the database row remains the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ordercast/internal/config"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "ordercast:forecast:"
	defaultTTL = 24 * time.Hour
)

// NewRedisClient returns nil when no redis address is configured; every
// consumer treats a nil client as "redis disabled".
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

type HotCache struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

func NewHotCache(client *redis.Client, log *zap.Logger) *HotCache {
	return &HotCache{
		client: client,
		log:    log.Named("forecast.cache"),
		ttl:    defaultTTL,
	}
}

// Get returns the cached snapshot, or nil on a miss. Redis errors count as
// misses: the read path falls through to the database.
func (c *HotCache) Get(ctx context.Context, tenantID snowflake.ID) *forecastdomain.Snapshot {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, keyPrefix+tenantID.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("redis get failed", zap.Error(err))
		}
		return nil
	}
	var snapshot forecastdomain.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.log.Warn("corrupt cached snapshot discarded", zap.Error(err))
		return nil
	}
	return &snapshot
}

// Set stores the snapshot best-effort; failures are logged and ignored.
func (c *HotCache) Set(ctx context.Context, snapshot *forecastdomain.Snapshot) {
	if c == nil || c.client == nil || snapshot == nil {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		c.log.Warn("snapshot marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, keyPrefix+snapshot.TenantID.String(), raw, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", zap.Error(err))
	}
}
