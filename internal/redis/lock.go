package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	huntcall_errors "huntcall/pkg/errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lock:"

// RoomLockKey serializes room routing for one call.
func RoomLockKey(call string) string {
	return "room:" + call
}

// releaseScript deletes the lock only if the caller still holds it, so a
// holder whose lock expired never releases someone else's.
var releaseScript = goredis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

type LockConfig struct {
	TTL        time.Duration // Max hold time before the lock lapses
	Wait       time.Duration // Max time spent trying to acquire
	RetryDelay time.Duration // Pause between acquisition attempts
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		TTL:        10 * time.Second,
		Wait:       5 * time.Second,
		RetryDelay: 50 * time.Millisecond,
	}
}

// Locker is a fleet-wide named mutex backed by SET NX PX.
type Locker struct {
	client *goredis.Client
	owner  string
	config LockConfig
}

func NewLocker(client *goredis.Client, owner string, config LockConfig) *Locker {
	def := DefaultLockConfig()
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.Wait <= 0 {
		config.Wait = def.Wait
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = def.RetryDelay
	}
	return &Locker{client: client, owner: owner, config: config}
}

// WithLock runs fn while holding key. The context handed to fn is cancelled
// when the hold time lapses. Acquisition that exceeds the wait bound returns
// ErrLockTimeout. The lock is released on every exit path, panics included.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	redisKey := lockKeyPrefix + key
	token := l.owner + ":" + uuid.NewString()

	if err := l.acquire(ctx, redisKey, token); err != nil {
		return err
	}
	defer l.release(redisKey, token)

	held, cancel := context.WithTimeout(ctx, l.config.TTL)
	defer cancel()
	return fn(held)
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.config.Wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.config.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Add(l.config.RetryDelay).Before(deadline) {
			return fmt.Errorf("%s: %w", key, huntcall_errors.ErrLockTimeout)
		}

		timer := time.NewTimer(l.config.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) release(key, token string) {
	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}

// Holder returns the token of the current holder of key, or "" if free.
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	token, err := l.client.Get(ctx, lockKeyPrefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return token, err
}
