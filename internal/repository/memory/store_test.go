package memory

import (
	"context"
	"errors"
	"testing"

	"huntcall/internal/domain/call"
	"huntcall/internal/domain/negotiation"
	huntcall_errors "huntcall/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoomUniquePerCall mirrors the UNIQUE(call) constraint.
func TestRoomUniquePerCall(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Rooms.Create(ctx, &call.Room{ID: "r1", Call: "c", RoutedServer: "s1"}))
	err := repos.Rooms.Create(ctx, &call.Room{ID: "r2", Call: "c", RoutedServer: "s2"})
	assert.ErrorIs(t, err, huntcall_errors.ErrAlreadyExists)

	room, err := repos.Rooms.GetByCall(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "s1", room.RoutedServer)
}

// TestPeersShareTab mirrors the non-unique (hunt, call, tab) index: only the
// id is unique.
func TestPeersShareTab(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()

	require.NoError(t, repos.Peers.Create(ctx, &call.Peer{ID: "p1", Hunt: "h", Call: "c", Tab: "t"}))
	require.NoError(t, repos.Peers.Create(ctx, &call.Peer{ID: "p2", Hunt: "h", Call: "c", Tab: "t"}))
	err := repos.Peers.Create(ctx, &call.Peer{ID: "p1", Hunt: "h", Call: "c", Tab: "other"})
	assert.ErrorIs(t, err, huntcall_errors.ErrAlreadyExists)

	peers, err := repos.Peers.ListByTab(ctx, "h", "c", "t")
	require.NoError(t, err)
	assert.Len(t, peers, 2)
}

// TestDeleteIfRoutedTo only removes rooms owned by the given servers.
func TestDeleteIfRoutedTo(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	require.NoError(t, repos.Rooms.Create(ctx, &call.Room{ID: "r1", Call: "c", RoutedServer: "live"}))

	ok, err := repos.Rooms.DeleteIfRoutedTo(ctx, "r1", []string{"dead"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repos.Rooms.DeleteIfRoutedTo(ctx, "r1", []string{"live"})
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestDeleteGroupCascades removes the group and consumers of its producers in other groups.
func TestDeleteGroupCascades(t *testing.T) {
	repos := New().Repositories()
	ctx := context.Background()
	n := repos.Negotiation

	require.NoError(t, n.CreateTransportRequest(ctx, &negotiation.TransportRequest{ID: "tr-a", Call: "c", Peer: "a", RoutedServer: "s"}))
	require.NoError(t, n.CreateTransportRequest(ctx, &negotiation.TransportRequest{ID: "tr-b", Call: "c", Peer: "b", RoutedServer: "s"}))
	require.NoError(t, n.CreateTransport(ctx, &negotiation.Transport{ID: "ts-a", TransportRequest: "tr-a", Direction: negotiation.DirectionSend}))
	require.NoError(t, n.CreateTransport(ctx, &negotiation.Transport{ID: "tr-b-recv", TransportRequest: "tr-b", Direction: negotiation.DirectionRecv}))
	require.NoError(t, n.CreateProducerClient(ctx, &negotiation.ProducerClient{ID: "pc", TransportRequest: "tr-a", Transport: "ts-a", TrackID: "t"}))
	require.NoError(t, n.CreateProducerServer(ctx, &negotiation.ProducerServer{ID: "ps", TransportRequest: "tr-a", ProducerClient: "pc", Call: "c"}))
	require.NoError(t, n.CreateConsumer(ctx, &negotiation.Consumer{ID: "cons", TransportRequest: "tr-b", Transport: "tr-b-recv", ProducerServer: "ps"}))
	require.NoError(t, n.CreateConsumerAck(ctx, &negotiation.ConsumerAck{ID: "ack", TransportRequest: "tr-b", Consumer: "cons"}))

	require.NoError(t, n.DeleteGroup(ctx, "tr-a"))

	_, err := n.LoadGroup(ctx, "tr-a")
	assert.ErrorIs(t, err, huntcall_errors.ErrNotFound)

	g, err := n.LoadGroup(ctx, "tr-b")
	require.NoError(t, err)
	assert.Len(t, g.Transports, 1)
	assert.Empty(t, g.Consumers)
	assert.Empty(t, g.ConsumerAcks)
}

// TestNegotiationUniqueness covers the per-transport and per-consumer unique keys.
func TestNegotiationUniqueness(t *testing.T) {
	n := New().Repositories().Negotiation
	ctx := context.Background()

	require.NoError(t, n.CreateTransport(ctx, &negotiation.Transport{ID: "t1", TransportRequest: "tr", Direction: negotiation.DirectionSend}))
	assert.ErrorIs(t, n.CreateTransport(ctx, &negotiation.Transport{ID: "t2", TransportRequest: "tr", Direction: negotiation.DirectionSend}), huntcall_errors.ErrAlreadyExists)

	require.NoError(t, n.CreateConnectAck(ctx, &negotiation.ConnectAck{ID: "a1", Transport: "t1"}))
	assert.ErrorIs(t, n.CreateConnectAck(ctx, &negotiation.ConnectAck{ID: "a2", Transport: "t1"}), huntcall_errors.ErrAlreadyExists)

	require.NoError(t, n.CreateConsumerAck(ctx, &negotiation.ConsumerAck{ID: "c1", Consumer: "x"}))
	assert.ErrorIs(t, n.CreateConsumerAck(ctx, &negotiation.ConsumerAck{ID: "c2", Consumer: "x"}), huntcall_errors.ErrAlreadyExists)
}

// TestInjectErrorFiresOnce verifies fault injection is one-shot.
func TestInjectErrorFiresOnce(t *testing.T) {
	s := New()
	repos := s.Repositories()
	boom := errors.New("boom")
	s.InjectError("peers.DeleteByServers", boom)

	_, err := repos.Peers.DeleteByServers(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
	_, err = repos.Peers.DeleteByServers(context.Background(), []string{"x"})
	assert.NoError(t, err)
}
