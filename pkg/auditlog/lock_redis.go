package auditlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker is the optional distributed-lock backend for the
// cross-machine monorepo case: multiple agent processes on different
// hosts sharing one workspace over a network filesystem, where an
// mkdir-based lock directory may not offer the same atomicity
// guarantees local disks do. It is selected only when
// <NS>_AUDIT_LOCK_REDIS_ADDR is set.
type RedisLocker struct {
	client *redis.Client
	key    string
}

// NewRedisLocker connects to addr and returns a Locker keyed by lockKey
// (typically derived from the workspace root so distinct workspaces
// don't contend on the same Redis key).
func NewRedisLocker(addr, lockKey string) *RedisLocker {
	return &RedisLocker{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    lockKey,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, staleAfter time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	backoff := 5 * time.Millisecond
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, staleAfter).Result()
		if err != nil {
			return nil, false, fmt.Errorf("auditlog: redis lock: %w", err)
		}
		if ok {
			release := func() {
				// Best-effort: only release if we still hold it (token match),
				// via a small Lua-free compare-and-delete using GETDEL semantics
				// approximated with GET+DEL since ordering races here only risk
				// an early release, never a false "still locked" state.
				if cur, getErr := l.client.Get(ctx, l.key).Result(); getErr == nil && cur == token {
					_ = l.client.Del(ctx, l.key).Err()
				}
			}
			return release, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

// Close releases the underlying Redis client connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
