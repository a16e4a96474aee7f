package proxy

import (
	"context"
	"testing"
	"time"

	"huntcall/internal/commands"
	"huntcall/internal/redis"
	"huntcall/internal/services"
	huntcall_errors "huntcall/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// TestAccessControlHonorsWebRTCFlag blocks join, transport and produce only.
func TestAccessControlHonorsWebRTCFlag(t *testing.T) {
	ctx := context.Background()
	flags := redis.NewFlagStore(newRedis(t))
	ac := NewAccessControl(flags)

	join := commands.JoinCallCommand{UserID: "u", Hunt: "h", Call: "c", Tab: "t"}
	leave := commands.LeaveCallCommand{UserID: "u", PeerID: "p"}
	assert.NoError(t, ac.Authorize(ctx, join))

	require.NoError(t, flags.Set(ctx, redis.FlagDisableWebRTC, true))
	err := ac.Authorize(ctx, join)
	assert.ErrorIs(t, err, huntcall_errors.ErrWebRTCDisabled)
	assert.ErrorIs(t, err, huntcall_errors.ErrForbidden)
	assert.ErrorIs(t, ac.Authorize(ctx, commands.RequestTransportCommand{UserID: "u", PeerID: "p"}), huntcall_errors.ErrWebRTCDisabled)
	assert.ErrorIs(t, ac.Authorize(ctx, commands.ProduceCommand{UserID: "u"}), huntcall_errors.ErrWebRTCDisabled)
	assert.NoError(t, ac.Authorize(ctx, leave))

	require.NoError(t, flags.Set(ctx, redis.FlagDisableWebRTC, false))
	assert.NoError(t, ac.Authorize(ctx, join))
}

// TestJoinRateLimit rejects joins above the configured quota.
func TestJoinRateLimit(t *testing.T) {
	ctx := context.Background()
	limiter := redis.NewRateLimiter(newRedis(t), redis.RateLimitConfig{JoinLimit: 2, JoinWindow: time.Minute})
	rl := NewJoinRateLimit(limiter)

	join := commands.JoinCallCommand{UserID: "u", Hunt: "h", Call: "c", Tab: "t"}
	require.NoError(t, rl.Authorize(ctx, join))
	require.NoError(t, rl.Authorize(ctx, join))
	assert.ErrorIs(t, rl.Authorize(ctx, join), huntcall_errors.ErrRateLimited)

	assert.NoError(t, rl.Authorize(ctx, commands.LeaveCallCommand{UserID: "u", PeerID: "p"}))
	other := join
	other.UserID = "v"
	assert.NoError(t, rl.Authorize(ctx, other))
}

// TestClaimsAuthorizer reads hunt membership from the request identity.
func TestClaimsAuthorizer(t *testing.T) {
	auth := NewClaimsAuthorizer()
	ctx := services.WithIdentity(context.Background(), services.Identity{UserID: "alice", Hunts: []string{"h1"}})

	ok, err := auth.UserMayJoinCall(ctx, "alice", "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = auth.UserMayJoinCall(ctx, "alice", "h2")
	assert.False(t, ok)
	ok, _ = auth.UserMayJoinCall(ctx, "bob", "h1")
	assert.False(t, ok)
	ok, _ = auth.UserMayJoinCall(context.Background(), "alice", "h1")
	assert.False(t, ok)

	admin := services.WithIdentity(context.Background(), services.Identity{UserID: "root", Admin: true})
	ok, _ = auth.UserMayJoinCall(admin, "root", "anything")
	assert.True(t, ok)
}

// TestHuntMembershipRunsBeforeJoinRateLimit keeps outsiders from spending join quota.
func TestHuntMembershipRunsBeforeJoinRateLimit(t *testing.T) {
	limiter := redis.NewRateLimiter(newRedis(t), redis.RateLimitConfig{JoinLimit: 1, JoinWindow: time.Minute})
	chain := commands.NewProxyChain(NewHuntMembership(NewClaimsAuthorizer()), NewJoinRateLimit(limiter))

	outsider := services.WithIdentity(context.Background(), services.Identity{UserID: "u", Hunts: []string{"other"}})
	join := commands.JoinCallCommand{UserID: "u", Hunt: "h", Call: "c", Tab: "t"}
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, chain.Authorize(outsider, join), huntcall_errors.ErrUnauthorized)
	}

	member := services.WithIdentity(context.Background(), services.Identity{UserID: "u", Hunts: []string{"h"}})
	require.NoError(t, chain.Authorize(member, join))
	assert.ErrorIs(t, chain.Authorize(member, join), huntcall_errors.ErrRateLimited)
	assert.NoError(t, chain.Authorize(member, commands.LeaveCallCommand{UserID: "u", PeerID: "p"}))
}
