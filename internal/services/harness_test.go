package services

import (
	"context"
	"testing"
	"time"

	"huntcall/internal/commands"
	"huntcall/internal/events"
	"huntcall/internal/media/mediatest"
	"huntcall/internal/redis"
	"huntcall/internal/repository/memory"
	"huntcall/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testDeadAfter = 30 * time.Second

// fleet is a set of servers sharing one record store and one Redis.
type fleet struct {
	t      *testing.T
	store  *memory.Store
	mr     *miniredis.Miniredis
	client *goredis.Client
	fanout *events.Fanout
}

// node is one server of a fleet.
type node struct {
	id          string
	registry    *redis.Registry
	locker      *redis.Locker
	engine      *mediatest.Engine
	bus         *commands.Bus
	rooms       *RoomService
	negotiation *NegotiationService
	peers       *PeerService
	worker      *RouterWorker
	gc          *GarbageCollector
}

func newFleet(t *testing.T) *fleet {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &fleet{
		t:      t,
		store:  memory.New(),
		mr:     mr,
		client: client,
		fanout: events.NewFanout(nil, logger.NewNop()),
	}
}

type nodeOption func(*PeerConfig)

func withCrowdSize(n int) nodeOption {
	return func(c *PeerConfig) { c.CrowdSize = n }
}

func (f *fleet) node(id string, opts ...nodeOption) *node {
	f.t.Helper()
	log := logger.NewNop()
	repos := f.store.Repositories()

	registry := redis.NewRegistry(f.client, id)
	_, err := registry.Register(context.Background())
	require.NoError(f.t, err)

	locker := redis.NewLocker(f.client, id, redis.LockConfig{
		TTL:        5 * time.Second,
		Wait:       5 * time.Second,
		RetryDelay: 2 * time.Millisecond,
	})
	config := PeerConfig{ServerID: id, CrowdSize: 3}
	for _, opt := range opts {
		opt(&config)
	}

	n := &node{id: id, registry: registry, locker: locker, engine: mediatest.New(), bus: commands.NewBus()}
	n.rooms = NewRoomService(repos, locker, registry, f.fanout, testDeadAfter, log)
	n.negotiation = NewNegotiationService(repos, f.fanout, id, n.bus, log)
	n.peers = NewPeerService(repos, n.rooms, n.negotiation, locker, nil, f.fanout, config, n.bus, log)
	n.worker = NewRouterWorker(repos, n.engine, f.fanout, id, time.Hour, log)
	n.gc = NewGarbageCollector(repos, n.rooms, locker, registry, f.fanout, testDeadAfter, time.Hour, log)
	return n
}

// outlive moves n's clock past the dead threshold so every other server
// looks dead to it, then heartbeats n at the new time.
func (n *node) outlive(t *testing.T) {
	t.Helper()
	later := time.Now().Add(2 * testDeadAfter)
	n.registry.SetClock(func() time.Time { return later })
	require.NoError(t, n.registry.Heartbeat(context.Background()))
}

func (n *node) join(t *testing.T, user, call, tab string) JoinResult {
	t.Helper()
	res, err := n.peers.Join(context.Background(), JoinInput{UserID: user, Hunt: "hunt-1", Call: call, Tab: tab})
	require.NoError(t, err)
	return res
}

type huntList map[string]bool

func (h huntList) UserMayJoinCall(_ context.Context, _ string, hunt string) (bool, error) {
	return h[hunt], nil
}
