package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	huntcall_errors "huntcall/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// TestWithLockMutualExclusion verifies that holders never overlap.
func TestWithLockMutualExclusion(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	cfg := LockConfig{TTL: 5 * time.Second, Wait: 5 * time.Second, RetryDelay: 2 * time.Millisecond}

	var inside, maxInside, runs int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locker := NewLocker(client, "server", cfg)
			err := locker.WithLock(ctx, "room:c1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				atomic.AddInt32(&runs, 1)
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, int32(8), runs)
}

// TestWithLockTimeout returns LockTimeout while someone else holds the key.
func TestWithLockTimeout(t *testing.T) {
	mr, client := newTestClient(t)
	require.NoError(t, mr.Set("lock:room:c1", "other:token"))

	locker := NewLocker(client, "me", LockConfig{TTL: time.Second, Wait: 20 * time.Millisecond, RetryDelay: 5 * time.Millisecond})
	called := false
	err := locker.WithLock(context.Background(), "room:c1", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, huntcall_errors.ErrLockTimeout)
	assert.False(t, called)
}

// TestWithLockReleasesOnError and on panic.
func TestWithLockReleasesOnError(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	locker := NewLocker(client, "me", DefaultLockConfig())

	boom := errors.New("boom")
	err := locker.WithLock(ctx, "k", func(ctx context.Context) error {
		holder, err := locker.Holder(ctx, "k")
		require.NoError(t, err)
		assert.Contains(t, holder, "me:")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	holder, err := locker.Holder(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, holder)

	assert.Panics(t, func() {
		_ = locker.WithLock(ctx, "k", func(ctx context.Context) error { panic("x") })
	})
	holder, err = locker.Holder(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, holder)
}

// TestReleaseKeepsForeignLock checks that an expired holder does not delete its successor's lock.
func TestReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	locker := NewLocker(client, "me", DefaultLockConfig())

	err := locker.WithLock(ctx, "k", func(ctx context.Context) error {
		mr.FastForward(time.Minute)
		return mr.Set("lock:k", "successor:token")
	})
	require.NoError(t, err)

	holder, err := locker.Holder(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "successor:token", holder)
}

// TestWithLockAfterCrashedHolder acquires a lock whose holder died without
// releasing it once the hold time has passed.
func TestWithLockAfterCrashedHolder(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	cfg := LockConfig{TTL: 10 * time.Second, Wait: 20 * time.Millisecond, RetryDelay: 2 * time.Millisecond}

	require.NoError(t, mr.Set("lock:room:c1", "crashed:token"))
	mr.SetTTL("lock:room:c1", cfg.TTL)

	survivor := NewLocker(client, "survivor", cfg)
	ran := false
	err := survivor.WithLock(ctx, "room:c1", func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, huntcall_errors.ErrLockTimeout)
	assert.False(t, ran)

	mr.FastForward(cfg.TTL)
	err = survivor.WithLock(ctx, "room:c1", func(ctx context.Context) error {
		holder, err := survivor.Holder(ctx, "room:c1")
		require.NoError(t, err)
		assert.Contains(t, holder, "survivor:")
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

// TestRegistryLiveness classifies servers by heartbeat age.
func TestRegistryLiveness(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	old := NewRegistry(client, "old")
	old.SetClock(func() time.Time { return now.Add(-time.Minute) })
	id, err := old.Register(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old", id)

	fresh := NewRegistry(client, "fresh")
	fresh.SetClock(func() time.Time { return now })
	_, err = fresh.Register(ctx)
	require.NoError(t, err)

	dead, err := fresh.ListDeadServers(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, dead)

	alive, err := fresh.IsServerAlive(ctx, "fresh", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, alive)

	alive, err = fresh.IsServerAlive(ctx, "old", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, alive)

	alive, err = fresh.IsServerAlive(ctx, "never-seen", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, fresh.Forget(ctx, "old"))
	servers, err := fresh.List(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "fresh", servers[0].ID)
}

// TestRateLimiterAllowJoin enforces the per-window quota.
func TestRateLimiterAllowJoin(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	limiter := NewRateLimiter(client, RateLimitConfig{JoinLimit: 2, JoinWindow: time.Minute})

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowJoin(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := limiter.AllowJoin(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = limiter.AllowJoin(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, limiter.ResetUser(ctx, "u1"))
	res, err = limiter.AllowJoin(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

// TestFlagStore toggles a flag on and off.
func TestFlagStore(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	flags := NewFlagStore(client)

	on, err := flags.Active(ctx, FlagDisableWebRTC)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, flags.Set(ctx, FlagDisableWebRTC, true))
	on, err = flags.Active(ctx, FlagDisableWebRTC)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, flags.Set(ctx, FlagDisableWebRTC, false))
	on, err = flags.Active(ctx, FlagDisableWebRTC)
	require.NoError(t, err)
	assert.False(t, on)
}

// TestPubSubRoundTrip delivers a published payload to a pattern subscriber.
func TestPubSubRoundTrip(t *testing.T) {
	_, client := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	got := make(chan string, 1)
	go func() {
		_ = NewSubscriber(client).Subscribe(ctx, []string{"channel:*"}, func() { close(ready) }, func(channel string, payload []byte) {
			got <- channel + "=" + string(payload)
		})
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not confirmed")
	}
	require.NoError(t, NewPublisher(client).Publish(ctx, "channel:call:c1", []byte("x")))

	select {
	case msg := <-got:
		assert.Equal(t, "channel:call:c1=x", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
