package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"huntcall/internal/commands"
	"huntcall/internal/domain/call"
	"huntcall/internal/domain/negotiation"
	"huntcall/internal/services"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"go.uber.org/zap"
)

const disconnectTimeout = 15 * time.Second

// Session is one signaling connection. A connection is in at most one call;
// closing it removes the peer and every negotiation group it opened.
type Session struct {
	client   *Client
	identity services.Identity
	bus      *commands.Bus
	peers    *services.PeerService
	feed     *services.RoomFeed
	logger   *WebSocketLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	peerID     string
	call       string
	tab        string
	roomCancel context.CancelFunc
	groups     map[string]context.CancelFunc
}

func NewSession(
	parent context.Context,
	client *Client,
	identity services.Identity,
	bus *commands.Bus,
	peers *services.PeerService,
	feed *services.RoomFeed,
	logger *WebSocketLogger,
) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		client:   client,
		identity: identity,
		bus:      bus,
		peers:    peers,
		feed:     feed,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		groups:   make(map[string]context.CancelFunc),
	}
}

// PeerID returns the peer joined on this connection, if any.
func (s *Session) PeerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// Run serves the connection until it closes, then cleans up.
func (s *Session) Run() {
	go s.client.WriteLoop(s.ctx)

	err := s.client.ReadLoop(s.handleMessage)
	if err != nil && isUnexpectedClose(err) {
		s.logger.Warn("connection closed", s.identity.UserID, s.client.ID, zap.Error(err))
	}
	s.close()
}

func (s *Session) requestContext() context.Context {
	ctx := services.WithIdentity(s.ctx, s.identity)
	return context.WithValue(ctx, logger.UserIdKey, s.identity.UserID)
}

func (s *Session) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.send(errorMessage("", huntcall_errors.ErrInvalidInput))
		return
	}
	if msg.Type == "ping" {
		s.send(ServerMessage{Type: TypePong, RequestID: msg.RequestID})
		return
	}

	cmd, err := toCommand(msg, s.identity.UserID, s.PeerID())
	if err != nil {
		s.logger.Warn("unknown message type", s.identity.UserID, s.client.ID, zap.String("msg_type", msg.Type))
		s.send(errorMessage(msg.RequestID, err))
		return
	}
	if join, ok := cmd.(commands.JoinCallCommand); ok && !s.mayJoin(join) {
		s.send(errorMessage(msg.RequestID, huntcall_errors.ErrConflict))
		return
	}

	res, err := s.bus.Execute(s.requestContext(), cmd)
	if err != nil {
		if huntcall_errors.HTTPStatus(err) >= 500 {
			s.logger.Error("command failed", s.identity.UserID, s.client.ID, err, zap.String("msg_type", msg.Type))
		}
		s.send(errorMessage(msg.RequestID, err))
		return
	}
	s.applied(msg, res)
}

// applied updates connection state after a successful command and replies.
func (s *Session) applied(msg ClientMessage, res commands.Result) {
	switch msg.Type {
	case commands.TypeJoinCall:
		if joined, ok := res.Payload.(services.JoinResult); ok {
			s.joined(joined.Peer)
			s.send(ServerMessage{Type: TypeJoined, RequestID: msg.RequestID, Data: joined})
			return
		}
	case commands.TypeLeaveCall:
		if msg.PeerID == "" || msg.PeerID == s.PeerID() {
			s.left()
		}
	case commands.TypeRequestTransport:
		if tr, ok := res.Payload.(negotiation.TransportRequest); ok {
			s.watchGroup(tr.ID)
		}
	case commands.TypeCloseTransport:
		s.unwatchGroup(msg.TransportRequestID)
	}
	s.send(ServerMessage{Type: TypeResult, RequestID: msg.RequestID, Data: res.Payload})
}

// mayJoin admits a join only for the connection's current call and tab, so
// the connection never owns more than one peer.
func (s *Session) mayJoin(join commands.JoinCallCommand) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call == "" {
		return true
	}
	if s.call != join.Call {
		return false
	}
	return s.peerID == "" || s.tab == join.Tab
}

func (s *Session) joined(peer call.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerID = peer.ID
	s.tab = peer.Tab
	if s.call == peer.Call && s.roomCancel != nil {
		return
	}
	callID := peer.Call
	s.call = callID

	ctx, cancel := context.WithCancel(s.ctx)
	s.roomCancel = cancel
	go func() {
		for state := range s.feed.WatchRoom(ctx, callID) {
			s.send(ServerMessage{Type: TypeRoomState, Data: state})
		}
	}()
}

func (s *Session) left() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerID = ""
	s.call = ""
	s.tab = ""
	if s.roomCancel != nil {
		s.roomCancel()
		s.roomCancel = nil
	}
	for id, cancel := range s.groups {
		cancel()
		delete(s.groups, id)
	}
}

func (s *Session) watchGroup(transportRequestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[transportRequestID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.groups[transportRequestID] = cancel
	go func() {
		for state := range s.feed.WatchNegotiation(ctx, transportRequestID) {
			s.send(ServerMessage{Type: TypeNegotiationState, Data: state})
		}
	}()
}

func (s *Session) unwatchGroup(transportRequestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.groups[transportRequestID]; ok {
		cancel()
		delete(s.groups, transportRequestID)
	}
}

func (s *Session) send(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode message failed", s.identity.UserID, s.client.ID, err, zap.String("msg_type", msg.Type))
		return
	}
	s.client.SendMessage(data)
}

// close stops every watcher and runs the disconnect cleanup on a context
// that outlives the connection.
func (s *Session) close() {
	peerID := s.PeerID()
	s.left()
	s.cancel()
	s.client.Close()

	if peerID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, logger.UserIdKey, s.identity.UserID)
	if err := s.peers.Disconnect(ctx, peerID); err != nil {
		s.logger.Error("disconnect cleanup failed", s.identity.UserID, s.client.ID, err, zap.String("peer", peerID))
		return
	}
	s.logger.Info("peer disconnected", s.identity.UserID, s.client.ID, zap.String("peer", peerID))
}
