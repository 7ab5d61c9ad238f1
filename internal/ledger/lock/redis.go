package lock

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by someone else is never released by us.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisConfig configures a Redis Locker.
type RedisConfig struct {
	// Prefix is prepended to the owner id to form the key.
	Prefix string
	// TTL bounds how long a crashed holder blocks others.
	TTL time.Duration
	// Token generates the per-acquire value. Defaults to uuid.NewString.
	Token func() string
}

// DefaultRedisConfig returns sensible defaults for a sync lock.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix: "batabung:sync:",
		TTL:    10 * time.Minute,
		Token:  uuid.NewString,
	}
}

// Redis is a Locker backed by SET NX with expiry.
type Redis struct {
	client redis.Cmdable
	config RedisConfig
}

// NewRedis creates a Redis Locker. Zero config fields take defaults.
func NewRedis(client redis.Cmdable, config RedisConfig) *Redis {
	def := DefaultRedisConfig()
	if config.Prefix == "" {
		config.Prefix = def.Prefix
	}
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.Token == nil {
		config.Token = def.Token
	}
	return &Redis{client: client, config: config}
}

// Key returns the Redis key used for owner.
func (r *Redis) Key(owner string) string {
	return r.config.Prefix + owner
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, owner string) (Release, error) {
	key := r.Key(owner)
	token := r.config.Token()

	ok, err := r.client.SetNX(ctx, key, token, r.config.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	var once gosync.Once
	var releaseErr error
	return func(ctx context.Context) error {
		once.Do(func() {
			if err := r.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
				releaseErr = fmt.Errorf("failed to release lock %s: %w", key, err)
			}
		})
		return releaseErr
	}, nil
}

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
