package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings. Zero timeouts take defaults.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize    int
	IOTimeout   time.Duration
	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.PoolSize <= 0 {
		c.PoolSize = 20
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = 2 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	return c
}

// OpenRedis builds a client and checks it with PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis: addr is required")
	}
	cfg = cfg.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.IOTimeout,
		ReadTimeout:     cfg.IOTimeout,
		WriteTimeout:    cfg.IOTimeout,
		PoolSize:        cfg.PoolSize,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// acquire sets KEYS[1] to ARGV[1] with a PX of ARGV[2] unless another token
// holds it. Re-acquiring with the same token refreshes the expiry.
var acquireScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false or cur == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
return 0
`)

// release deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var ErrLockBusy = errors.New("redis: lock held by another holder")

// Lock is a single-holder lease on a key. The TTL bounds how long a crashed
// holder can block others.
type Lock struct {
	TTL      time.Duration
	Attempts int
	Delay    time.Duration
}

// Acquire polls for key until it is free, the attempts run out (ErrLockBusy)
// or ctx ends. release is safe to call after the request context is gone.
func (l Lock) Acquire(ctx context.Context, rdb redis.Scripter, key, token string) (release func(), err error) {
	if rdb == nil {
		return nil, errors.New("redis: nil client")
	}
	if key == "" || token == "" || l.TTL <= 0 {
		return nil, errors.New("redis: lock needs key, token and ttl")
	}
	attempts := max(l.Attempts, 1)

	for i := 0; i < attempts; i++ {
		ok, err := acquireScript.Run(ctx, rdb, []string{key}, token, l.TTL.Milliseconds()).Bool()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(relCtx, rdb, []string{key}, token).Err()
			}, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Delay):
		}
	}
	return nil, ErrLockBusy
}
