package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// DefaultBatchLockKey is the Redis key guarding dispatcher invocations.
const DefaultBatchLockKey = "outbox:sync:lock"

// renewDivisor sets how often a held lease is extended, as a fraction of its ttl.
const renewDivisor = 3

// releaseScript deletes the lock only if it still holds the caller's token.
var releaseScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only if it still holds the caller's token.
var renewScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// BatchLockImpl implements BatchLock with a Redis SET NX PX lease that is
// renewed until released.
type BatchLockImpl struct {
	redisClient rueidis.Client
	key         string
}

// NewBatchLockImpl creates a new BatchLock implementation.
func NewBatchLockImpl(redisClient rueidis.Client, key string) BatchLock {
	if key == "" {
		key = DefaultBatchLockKey
	}

	return &BatchLockImpl{redisClient: redisClient, key: key}
}

// TryAcquire sets the lock key if it is absent and keeps extending it while held.
func (l *BatchLockImpl) TryAcquire(ctx context.Context, ttl time.Duration) (func(context.Context), bool, error) {
	token := uuid.NewString()

	cmd := l.redisClient.B().Set().Key(l.key).Value(token).Nx().PxMilliseconds(ttl.Milliseconds()).Build()
	if err := l.redisClient.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to acquire batch lock: %w", err)
	}

	stop := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		l.keepAlive(token, ttl, stop)
	}()

	var once sync.Once

	release := func(ctx context.Context) {
		once.Do(func() {
			close(stop)
			wg.Wait()

			if err := releaseScript.Exec(ctx, l.redisClient, []string{l.key}, []string{token}).Error(); err != nil {
				slog.Error("failed to release batch lock",
					slog.String("key", l.key),
					slog.String("error", err.Error()),
				)
			}
		})
	}

	return release, true, nil
}

func (l *BatchLockImpl) keepAlive(token string, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(ttl / renewDivisor)
	defer ticker.Stop()

	ttlMillis := strconv.FormatInt(ttl.Milliseconds(), 10)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			renewed, err := renewScript.Exec(context.Background(), l.redisClient,
				[]string{l.key}, []string{token, ttlMillis}).AsInt64()
			if err != nil {
				slog.Warn("failed to renew batch lock", slog.String("key", l.key), slog.String("error", err.Error()))
				continue
			}

			if renewed == 0 {
				slog.Warn("batch lock lost", slog.String("key", l.key))
				return
			}
		}
	}
}
