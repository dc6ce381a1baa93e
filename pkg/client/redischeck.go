package client

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisReachabilityCache is a ReachabilityCache backed by Redis, keyed
// by host:port and storing the reachability bool last observed for
// that address. It caches pre-check outcomes for TTL so that many
// concurrent clients restarting against the same flapping host:port
// don't each re-dial within the same short window.
type RedisReachabilityCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      zerolog.Logger
}

// RedisReachabilityCacheConfig configures the underlying redis.Client.
type RedisReachabilityCacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

const defaultReachabilityCacheTTL = 5 * time.Second

// NewRedisReachabilityCache connects and pings Redis before returning.
func NewRedisReachabilityCache(ctx context.Context, cfg RedisReachabilityCacheConfig, logger zerolog.Logger) (*RedisReachabilityCache, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultReachabilityCacheTTL
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis for reachability cache: %w", err)
	}

	return &RedisReachabilityCache{
		redisClient: rdb,
		ttl:         ttl,
		logger:      logger.With().Str("component", "RedisReachabilityCache").Logger(),
	}, nil
}

// Get reports the last-observed reachability of hostPort, if cached
// and not yet expired. A miss or a flaky Redis are indistinguishable
// here, and either way the real pre-check must still run.
func (c *RedisReachabilityCache) Get(ctx context.Context, hostPort string) (reachable bool, ok bool) {
	val, err := c.redisClient.Get(ctx, reachabilityKey(hostPort)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Put records the pre-check outcome for hostPort, expiring after TTL.
func (c *RedisReachabilityCache) Put(ctx context.Context, hostPort string, reachable bool) {
	val := "0"
	if reachable {
		val = "1"
	}
	if err := c.redisClient.Set(ctx, reachabilityKey(hostPort), val, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("host_port", hostPort).Msg("Failed to cache reachability outcome.")
	}
}

func reachabilityKey(hostPort string) string {
	return "connectivity:reachability:" + hostPort
}

// Close closes the underlying Redis client.
func (c *RedisReachabilityCache) Close() error {
	return c.redisClient.Close()
}
