package checkpoint

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string `yaml:"address"`

	// Password for Redis authentication (optional)
	Password string `yaml:"password"`

	// Database number to use (default: 0)
	Database int `yaml:"database"`

	// Prefix is prepended to all checkpoint keys (e.g., "rawgate:runs:")
	Prefix string `yaml:"prefix"`

	// TTL is the time-to-live for checkpoint keys (0 = no expiration)
	TTL time.Duration `yaml:"ttl"`

	// Timeout for Redis operations
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Prefix:  "rawgate:runs:",
		TTL:     7 * 24 * time.Hour,
		Timeout: 5 * time.Second,
	}
}

// RedisBackend stores checkpoints in Redis. Runs are indexed in a sorted
// set scored by start time so List does not scan the keyspace.
type RedisBackend struct {
	cfg    RedisConfig
	client redis.UniversalClient
}

// NewRedisBackend creates a new Redis checkpoint backend.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisBackendWithClient(cfg, client), nil
}

// NewRedisBackendWithClient uses an existing client.
func NewRedisBackendWithClient(cfg RedisConfig, client redis.UniversalClient) *RedisBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &RedisBackend{cfg: cfg, client: client}
}

// key returns the Redis key for a checkpoint ID.
func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + id
}

// indexKey returns the sorted set of run IDs.
func (b *RedisBackend) indexKey() string {
	return b.cfg.Prefix + "index"
}

// Save persists a checkpoint to Redis.
func (b *RedisBackend) Save(ctx context.Context, cp *Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := cp.marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.key(cp.ID), data, b.cfg.TTL)
	pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: float64(cp.StartedAt.UnixNano()), Member: cp.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to Redis: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint from Redis.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to load checkpoint from Redis: %w", err)
	}

	cp, err := unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// Delete removes a checkpoint from Redis.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.key(id))
	pipe.ZRem(ctx, b.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns all indexed checkpoints, newest first. Index entries whose
// key has expired are pruned.
func (b *RedisBackend) List(ctx context.Context) ([]*Checkpoint, error) {
	ids, err := b.client.ZRevRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index: %w", err)
	}

	var cps []*Checkpoint
	for _, id := range ids {
		cp, err := b.Load(ctx, id)
		if err == os.ErrNotExist {
			b.client.ZRem(ctx, b.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// Name returns "redis".
func (b *RedisBackend) Name() string {
	return "redis"
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
