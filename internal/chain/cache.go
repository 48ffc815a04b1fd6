package chain

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

type memoryEntry struct {
	snapshot  *models.ChainSnapshot
	expiresAt time.Time
}

// MemoryCache keeps snapshots in process
type MemoryCache struct {
	entries map[string]memoryEntry
	mu      sync.RWMutex
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, underlying string) (*models.ChainSnapshot, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[underlying]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.snapshot, true, nil
}

func (c *MemoryCache) Set(_ context.Context, underlying string, snapshot *models.ChainSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[underlying] = memoryEntry{snapshot: snapshot, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, underlying string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, underlying)
	return nil
}

const redisKeyPrefix = "optrisk:chain:"

// RedisCache shares snapshots between API and worker processes
type RedisCache struct {
	rdb *redis.Client
}

// RedisConfig holds the connection settings of a RedisCache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache connects to redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Network(err, "failed to connect to redis at "+cfg.Addr)
	}
	return &RedisCache{rdb: rdb}, nil
}

func (c *RedisCache) Get(ctx context.Context, underlying string) (*models.ChainSnapshot, bool, error) {
	data, err := c.rdb.Get(ctx, redisKeyPrefix+underlying).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Network(err, "redis get failed")
	}

	var snap models.ChainSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, errors.Internal(err, "failed to decode cached chain")
	}
	return &snap, true, nil
}

func (c *RedisCache) Set(ctx context.Context, underlying string, snapshot *models.ChainSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Internal(err, "failed to encode chain")
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+underlying, data, ttl).Err(); err != nil {
		return errors.Network(err, "redis set failed")
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, underlying string) error {
	if err := c.rdb.Del(ctx, redisKeyPrefix+underlying).Err(); err != nil {
		return errors.Network(err, "redis delete failed")
	}
	return nil
}

// Close closes the redis connection
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
