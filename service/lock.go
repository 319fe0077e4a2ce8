package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockTTL       = 5 * time.Second
	lockRetries   = 30
	lockRetryWait = 100 * time.Millisecond
)

// withLock runs fn while holding a Redis SetNX lock on key.
// Without a Redis client fn runs unguarded.
func withLock(ctx context.Context, rdb *redis.Client, key string, fn func() error) error {
	if rdb == nil {
		return fn()
	}

	acquired := false
	for i := 0; i < lockRetries; i++ {
		ok, err := rdb.SetNX(ctx, key, "1", lockTTL).Result()
		if err == nil && ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryWait):
		}
	}
	if !acquired {
		return &Error{Kind: ErrConflict, Message: fmt.Sprintf("failed to acquire lock %s", key)}
	}
	defer rdb.Del(context.Background(), key)

	return fn()
}
