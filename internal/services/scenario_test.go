package services

import (
	"context"
	"testing"

	"huntcall/internal/domain/call"
	huntcall_errors "huntcall/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCallSurvivesRouterCrash walks a call through a crash of the server
// that created the room: the crashed server's peer goes away, the room moves
// to the survivor, and the room lives until the last peer leaves.
func TestCallSurvivesRouterCrash(t *testing.T) {
	f := newFleet(t)
	a := f.node("server-a", withCrowdSize(3))
	b := f.node("server-b", withCrowdSize(3))
	ctx := context.Background()
	repos := f.store.Repositories()

	p1 := a.join(t, "u1", "call-c", "t1")
	p2 := b.join(t, "u2", "call-c", "t2")
	p3 := b.join(t, "u3", "call-c", "t3")
	assert.Equal(t, call.PeerStateActive, p1.InitialState)
	assert.Equal(t, call.PeerStateActive, p2.InitialState)
	assert.Equal(t, call.PeerStateMuted, p3.InitialState)

	room, err := repos.Rooms.GetByCall(ctx, "call-c")
	require.NoError(t, err)
	assert.Equal(t, a.id, room.RoutedServer)

	// server-a stops heartbeating.
	b.outlive(t)
	report, err := b.gc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.id}, report.DeadServers)
	assert.Equal(t, 1, report.PeersRemoved)
	assert.Equal(t, 1, report.RoomsReassigned)

	_, err = repos.Peers.GetByID(ctx, p1.Peer.ID)
	assert.ErrorIs(t, err, huntcall_errors.ErrNotFound)
	room, err = repos.Rooms.GetByCall(ctx, "call-c")
	require.NoError(t, err)
	assert.Equal(t, b.id, room.RoutedServer)
	assert.Equal(t, "u1", room.CreatedBy)

	rooms, err := repos.Rooms.ListRoutedTo(ctx, []string{a.id})
	require.NoError(t, err)
	assert.Empty(t, rooms)

	require.NoError(t, b.peers.Leave(ctx, "u2", p2.Peer.ID))
	_, err = repos.Rooms.GetByCall(ctx, "call-c")
	require.NoError(t, err, "room stays while p3 remains")

	require.NoError(t, b.peers.Leave(ctx, "u3", p3.Peer.ID))
	_, err = repos.Rooms.GetByCall(ctx, "call-c")
	assert.ErrorIs(t, err, huntcall_errors.ErrNotFound)
}

// TestReconnectOnOtherServerKeepsState rejoins the same tab through a
// different server: the newer peer survives and inherits the mute state
// instead of the crowd default.
func TestReconnectOnOtherServerKeepsState(t *testing.T) {
	f := newFleet(t)
	a := f.node("server-a", withCrowdSize(2))
	b := f.node("server-b", withCrowdSize(2))
	ctx := context.Background()

	first := a.join(t, "alice", "call-1", "tab-1")
	assert.Equal(t, call.PeerStateActive, first.InitialState)
	a.join(t, "bob", "call-1", "tab-9")

	again := b.join(t, "alice", "call-1", "tab-1")
	assert.Equal(t, call.PeerStateActive, again.InitialState, "carried over, not crowd muted")
	assert.Equal(t, []string{first.Peer.ID}, again.Superseded)

	peers, err := f.store.Repositories().Peers.ListByTab(ctx, "hunt-1", "call-1", "tab-1")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, b.id, peers[0].CreatedServer)
}
