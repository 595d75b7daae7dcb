package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callflow-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "callflow:editor:session:"

// RedisSessionStore keeps sessions as JSON values with a sliding TTL. Each
// Put refreshes the expiry, so idle sessions disappear on their own.
type RedisSessionStore struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisSessionStore(rdb redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }
func lockKey(id string) string    { return sessionKeyPrefix + id + ":lock" }

func (r *RedisSessionStore) Get(ctx context.Context, id string) (Session, bool, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("editor: load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, false, fmt.Errorf("editor: decode session: %w", err)
	}
	return s, true, nil
}

func (r *RedisSessionStore) Put(ctx context.Context, s Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("editor: encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKey(s.ID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("editor: store session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, sessionKey(id), lockKey(id)).Err(); err != nil {
		return fmt.Errorf("editor: delete session: %w", err)
	}
	return nil
}

var sessionLock = utils.Lock{TTL: 10 * time.Second, Attempts: 40, Delay: 50 * time.Millisecond}

// Lock takes the per-session lease, giving up with ErrSessionBusy.
func (r *RedisSessionStore) Lock(ctx context.Context, id string) (func(), error) {
	release, err := sessionLock.Acquire(ctx, r.rdb, lockKey(id), uuid.NewString())
	switch {
	case errors.Is(err, utils.ErrLockBusy):
		return nil, ErrSessionBusy
	case err != nil:
		return nil, fmt.Errorf("editor: lock session: %w", err)
	}
	return release, nil
}
