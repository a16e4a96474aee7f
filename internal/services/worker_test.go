package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPeriodicRunsOnWake runs immediately, again on every wake-up, and not after Stop.
func TestPeriodicRunsOnWake(t *testing.T) {
	var runs atomic.Int32
	p := newPeriodic(time.Hour, func(context.Context) { runs.Add(1) })
	wake := make(chan struct{}, 1)

	p.Start(context.Background(), wake)
	p.Start(context.Background(), wake)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	wake <- struct{}{}
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	wake <- struct{}{}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
}

// TestHeartbeaterKeepsServerAlive writes a heartbeat as soon as it starts.
func TestHeartbeaterKeepsServerAlive(t *testing.T) {
	f := newFleet(t)
	a := f.node("server-a")
	ctx := context.Background()
	require.NoError(t, a.registry.Forget(ctx, a.id))

	h := NewHeartbeater(a.registry, time.Hour, nil)
	h.Start(ctx)
	defer h.Stop()

	require.Eventually(t, func() bool {
		alive, err := a.registry.IsServerAlive(ctx, a.id, testDeadAfter)
		return err == nil && alive
	}, time.Second, 5*time.Millisecond)
}
