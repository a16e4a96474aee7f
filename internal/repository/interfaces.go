package repository

import (
	"context"

	"huntcall/internal/domain/call"
	"huntcall/internal/domain/negotiation"
)

// Inserts return huntcall_errors.ErrAlreadyExists on a uniqueness race and
// lookups return huntcall_errors.ErrNotFound when the row is gone.

type RoomRepository interface {
	Create(ctx context.Context, r *call.Room) error
	GetByCall(ctx context.Context, callID string) (call.Room, error)
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteIfRoutedTo removes the room only while it is still routed to one of servers.
	DeleteIfRoutedTo(ctx context.Context, id string, servers []string) (bool, error)
	ListRoutedTo(ctx context.Context, servers []string) ([]call.Room, error)
	ListAll(ctx context.Context) ([]call.Room, error)
}

type RouterRepository interface {
	Create(ctx context.Context, r *call.Router) error
	GetByCall(ctx context.Context, callID string) (call.Router, error)
	ListByServer(ctx context.Context, serverID string) ([]call.Router, error)
	Delete(ctx context.Context, id string) error
	DeleteByCall(ctx context.Context, callID string) error
	DeleteByServers(ctx context.Context, servers []string) (int64, error)
	ListAll(ctx context.Context) ([]call.Router, error)
}

type PeerRepository interface {
	Create(ctx context.Context, p *call.Peer) error
	GetByID(ctx context.Context, id string) (call.Peer, error)
	ListByCall(ctx context.Context, callID string) ([]call.Peer, error)
	ListByTab(ctx context.Context, hunt, callID, tab string) ([]call.Peer, error)
	CountByCall(ctx context.Context, callID string) (int, error)
	UpdateState(ctx context.Context, id string, muted, deafened bool) error
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteByServers removes every peer created by one of servers and returns them.
	DeleteByServers(ctx context.Context, servers []string) ([]call.Peer, error)
	ListAll(ctx context.Context) ([]call.Peer, error)
}

type NegotiationRepository interface {
	CreateTransportRequest(ctx context.Context, tr *negotiation.TransportRequest) error
	GetTransportRequest(ctx context.Context, id string) (negotiation.TransportRequest, error)
	ListTransportRequestsByPeer(ctx context.Context, peerID string) ([]negotiation.TransportRequest, error)
	ListTransportRequests(ctx context.Context) ([]negotiation.TransportRequest, error)

	CreateTransport(ctx context.Context, t *negotiation.Transport) error
	GetTransport(ctx context.Context, id string) (negotiation.Transport, error)

	CreateConnectRequest(ctx context.Context, c *negotiation.ConnectRequest) error
	CreateConnectAck(ctx context.Context, a *negotiation.ConnectAck) error

	CreateProducerClient(ctx context.Context, p *negotiation.ProducerClient) error
	GetProducerClient(ctx context.Context, id string) (negotiation.ProducerClient, error)
	// DeleteProducerClient also removes the matching producer server and every consumer of it.
	DeleteProducerClient(ctx context.Context, id string) error
	CreateProducerServer(ctx context.Context, p *negotiation.ProducerServer) error
	ListProducerServersByCall(ctx context.Context, callID string) ([]negotiation.ProducerServer, error)

	CreateConsumer(ctx context.Context, c *negotiation.Consumer) error
	GetConsumer(ctx context.Context, id string) (negotiation.Consumer, error)
	CreateConsumerAck(ctx context.Context, a *negotiation.ConsumerAck) error

	LoadGroup(ctx context.Context, transportRequestID string) (negotiation.Group, error)
	LoadGroupsRoutedTo(ctx context.Context, serverID string) ([]negotiation.Group, error)
	// DeleteGroup removes every record of the group plus consumers elsewhere
	// that were reading from the group's producers.
	DeleteGroup(ctx context.Context, transportRequestID string) error
	// DeleteGroupsByServers removes groups created by or routed to one of servers.
	DeleteGroupsByServers(ctx context.Context, servers []string) ([]string, error)
}

type CallHistoryRepository interface {
	Touch(ctx context.Context, hunt, callID string) error
	Get(ctx context.Context, callID string) (call.CallHistory, error)
	ListByHunt(ctx context.Context, hunt string) ([]call.CallHistory, error)
}

// Repositories bundles every store the call core needs.
type Repositories struct {
	Rooms       RoomRepository
	Routers     RouterRepository
	Peers       PeerRepository
	Negotiation NegotiationRepository
	History     CallHistoryRepository
}

// NewPostgresRepositories builds the SQL backed implementations over db.
func NewPostgresRepositories(db DBTX) Repositories {
	return Repositories{
		Rooms:       NewRoomRepository(db),
		Routers:     NewRouterRepository(db),
		Peers:       NewPeerRepository(db),
		Negotiation: NewNegotiationRepository(db),
		History:     NewCallHistoryRepository(db),
	}
}
