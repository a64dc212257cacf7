package experts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ziadkadry99/expertroute/internal/config"
)

// Cache holds candidate pools keyed by their query under a generation
// number. Invalidate starts a new generation; stores call it after any write
// that could change a pool. Readers fetch the generation before querying the
// database and write back under it, so a pool computed before an
// invalidation is never served after it.
type Cache interface {
	Generation(ctx context.Context) (int64, error)
	GetCandidates(ctx context.Context, gen int64, key string) ([]Profile, bool, error)
	SetCandidates(ctx context.Context, gen int64, key string, profiles []Profile) error
	Invalidate(ctx context.Context) error
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Generation(context.Context) (int64, error) { return 0, nil }
func (NopCache) GetCandidates(context.Context, int64, string) ([]Profile, bool, error) {
	return nil, false, nil
}
func (NopCache) SetCandidates(context.Context, int64, string, []Profile) error { return nil }
func (NopCache) Invalidate(context.Context) error { return nil }

const (
	cacheKeyPrefix  = "expertroute:candidates:"
	cacheVersionKey = cacheKeyPrefix + "version"
)

// RedisCache stores candidate pools in Redis. The generation lives in its own
// key; entries from older generations are never read again and age out
// through their TTL.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache creates a cache over an existing client.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// connectionTimeout bounds the startup ping.
const connectionTimeout = 5 * time.Second

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg config.CacheConfig) (*redis.Client, error) {
	if cfg.RedisAddress == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Generation(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, cacheVersionKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cache generation: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing cache generation %q: %w", v, err)
	}
	return n, nil
}

func (c *RedisCache) entryKey(gen int64, key string) string {
	return fmt.Sprintf("%sg%d:%s", cacheKeyPrefix, gen, key)
}

func (c *RedisCache) GetCandidates(ctx context.Context, gen int64, key string) ([]Profile, bool, error) {
	raw, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached candidates: %w", err)
	}
	var out []Profile
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("decoding cached candidates: %w", err)
	}
	return out, true, nil
}

func (c *RedisCache) SetCandidates(ctx context.Context, gen int64, key string, profiles []Profile) error {
	raw, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("encoding candidates: %w", err)
	}
	if err := c.client.Set(ctx, c.entryKey(gen, key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing cached candidates: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return fmt.Errorf("bumping cache generation: %w", err)
	}
	return nil
}
