package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"school-game-platform/models"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// StatsCache holds computed school dashboards for a short time.
// Implementations swallow their own failures: a cache miss is always safe.
type StatsCache interface {
	Get(ctx context.Context, schoolID string) (*models.SchoolStats, bool)
	Set(ctx context.Context, stats *models.SchoolStats)
	Invalidate(ctx context.Context, schoolID string)
}

// NoopStatsCache is used when no Redis address is configured.
type NoopStatsCache struct{}

func (NoopStatsCache) Get(context.Context, string) (*models.SchoolStats, bool) { return nil, false }
func (NoopStatsCache) Set(context.Context, *models.SchoolStats)                 {}
func (NoopStatsCache) Invalidate(context.Context, string)                       {}

var (
	_ StatsCache = NoopStatsCache{}
	_ StatsCache = (*RedisStatsCache)(nil)
)

type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}
	return client, nil
}

func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{client: client, ttl: ttl}
}

func statsKey(schoolID string) string {
	return "school-stats:" + schoolID
}

func (c *RedisStatsCache) Get(ctx context.Context, schoolID string) (*models.SchoolStats, bool) {
	raw, err := c.client.Get(ctx, statsKey(schoolID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("⚠️ [STATS_CACHE] get %s failed: %v", schoolID, err)
		}
		return nil, false
	}

	var stats models.SchoolStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		log.Printf("⚠️ [STATS_CACHE] dropping unreadable entry for %s: %v", schoolID, err)
		c.Invalidate(ctx, schoolID)
		return nil, false
	}
	return &stats, true
}

func (c *RedisStatsCache) Set(ctx context.Context, stats *models.SchoolStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		log.Printf("⚠️ [STATS_CACHE] encode %s failed: %v", stats.SchoolID, err)
		return
	}
	if err := c.client.Set(ctx, statsKey(stats.SchoolID), raw, c.ttl).Err(); err != nil {
		log.Printf("⚠️ [STATS_CACHE] set %s failed: %v", stats.SchoolID, err)
	}
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, schoolID string) {
	if err := c.client.Del(ctx, statsKey(schoolID)).Err(); err != nil {
		log.Printf("⚠️ [STATS_CACHE] invalidate %s failed: %v", schoolID, err)
	}
}
