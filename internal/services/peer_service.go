package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"huntcall/internal/commands"
	"huntcall/internal/domain/call"
	"huntcall/internal/events"
	"huntcall/internal/redis"
	"huntcall/internal/repository"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PeerConfig struct {
	ServerID     string
	CrowdSize    int
	LockAttempts int
	LockBackoff  time.Duration
}

// PeerService manages tab-scoped call membership. Join and leave run under
// the call's room lock; mute toggles do not.
type PeerService struct {
	repos       repository.Repositories
	rooms       *RoomService
	negotiation *NegotiationService
	locker      Locker
	authorizer  HuntAuthorizer
	notifier    events.Notifier
	config      PeerConfig
	log         *logger.Logger
}

func NewPeerService(
	repos repository.Repositories,
	rooms *RoomService,
	negotiation *NegotiationService,
	locker Locker,
	authorizer HuntAuthorizer,
	notifier events.Notifier,
	config PeerConfig,
	bus *commands.Bus,
	log *logger.Logger,
) *PeerService {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if config.CrowdSize <= 0 {
		config.CrowdSize = 3
	}
	if config.LockAttempts <= 0 {
		config.LockAttempts = 3
	}
	if config.LockBackoff <= 0 {
		config.LockBackoff = 100 * time.Millisecond
	}
	svc := &PeerService{
		repos:       repos,
		rooms:       rooms,
		negotiation: negotiation,
		locker:      locker,
		authorizer:  authorizer,
		notifier:    notifier,
		config:      config,
		log:         log.Named("peers"),
	}
	svc.RegisterHandlers(bus)
	return svc
}

func (s *PeerService) RegisterHandlers(bus *commands.Bus) {
	if bus == nil {
		return
	}

	// call.join - Join a call from one tab
	bus.Register(commands.TypeJoinCall, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.JoinCallCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		res, err := s.Join(ctx, JoinInput{UserID: c.UserID, Hunt: c.Hunt, Call: c.Call, Tab: c.Tab})
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: res.Peer.ID, Payload: res}, nil
	}))

	// call.leave - Leave a call
	bus.Register(commands.TypeLeaveCall, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.LeaveCallCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		if err := s.Leave(ctx, c.UserID, c.PeerID); err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: c.PeerID}, nil
	}))

	// call.set_state - Mute or deafen
	bus.Register(commands.TypeSetPeerState, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.SetPeerStateCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		peer, err := s.SetPeerState(ctx, c.UserID, c.PeerID, c.Muted, c.Deafened)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: peer.ID, Payload: peer}, nil
	}))
}

type JoinInput struct {
	UserID string
	Hunt   string
	Call   string
	Tab    string
}

type JoinResult struct {
	Peer         call.Peer      `json:"peer"`
	InitialState call.PeerState `json:"initial_state"`
	Superseded   []string       `json:"superseded,omitempty"`
}

// Join adds the caller to a call. A previous peer for the same tab is
// removed and its mute state carried over; otherwise the peer starts muted
// once the call reaches the crowd size.
func (s *PeerService) Join(ctx context.Context, in JoinInput) (JoinResult, error) {
	if in.UserID == "" || in.Hunt == "" || in.Call == "" || in.Tab == "" {
		return JoinResult{}, huntcall_errors.ErrInvalidInput
	}
	if err := s.authorize(ctx, in.UserID, in.Hunt); err != nil {
		return JoinResult{}, err
	}

	var res JoinResult
	err := s.withRetry(ctx, func() error {
		return s.locker.WithLock(ctx, redis.RoomLockKey(in.Call), func(ctx context.Context) error {
			var err error
			res, err = s.joinLocked(ctx, in)
			return err
		})
	})
	if err != nil {
		return JoinResult{}, err
	}

	for _, id := range res.Superseded {
		if _, err := s.negotiation.ClosePeerGroups(ctx, id); err != nil {
			s.log.WithContext(ctx).Warn("close superseded peer groups", zap.String("peer", id), zap.Error(err))
		}
	}
	s.touched(ctx, in.Hunt, in.Call)
	return res, nil
}

func (s *PeerService) joinLocked(ctx context.Context, in JoinInput) (JoinResult, error) {
	if _, err := s.rooms.EnsureRoomLocked(ctx, in.Hunt, in.Call, s.config.ServerID, in.UserID); err != nil {
		return JoinResult{}, err
	}

	stale, err := s.repos.Peers.ListByTab(ctx, in.Hunt, in.Call, in.Tab)
	if err != nil {
		return JoinResult{}, fmt.Errorf("list tab peers: %w", err)
	}
	var superseded []string
	var previous *call.Peer
	for i := range stale {
		p := stale[i]
		if _, err := s.repos.Peers.Delete(ctx, p.ID); err != nil {
			return JoinResult{}, fmt.Errorf("remove stale peer: %w", err)
		}
		s.log.WithContext(ctx).Info("superseded stale peer",
			zap.String("call", in.Call),
			zap.String("tab", in.Tab),
			zap.String("peer", p.ID),
		)
		superseded = append(superseded, p.ID)
		previous = &p
	}

	var muted, deafened bool
	if previous != nil {
		muted, deafened = previous.Muted, previous.Deafened
	} else {
		count, err := s.repos.Peers.CountByCall(ctx, in.Call)
		if err != nil {
			return JoinResult{}, fmt.Errorf("count peers: %w", err)
		}
		muted = count+1 >= s.config.CrowdSize
	}
	initial := call.StateOf(muted, deafened)

	peer := call.Peer{
		ID:               uuid.NewString(),
		Hunt:             in.Hunt,
		Call:             in.Call,
		Tab:              in.Tab,
		CreatedServer:    s.config.ServerID,
		CreatedBy:        in.UserID,
		Muted:            muted,
		Deafened:         deafened,
		InitialPeerState: initial,
	}
	if err := s.repos.Peers.Create(ctx, &peer); err != nil {
		return JoinResult{}, fmt.Errorf("create peer: %w", err)
	}

	s.log.WithContext(ctx).Info("peer joined",
		zap.String("call", in.Call),
		zap.String("peer", peer.ID),
		zap.String("initial_state", string(initial)),
	)
	return JoinResult{Peer: peer, InitialState: initial, Superseded: superseded}, nil
}

// Leave removes the caller's peer. Leaving twice is not an error.
func (s *PeerService) Leave(ctx context.Context, userID, peerID string) error {
	peer, err := s.repos.Peers.GetByID(ctx, peerID)
	if errors.Is(err, huntcall_errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load peer: %w", err)
	}
	if peer.CreatedBy != userID {
		return huntcall_errors.ErrForbidden
	}
	return s.remove(ctx, peer)
}

// Disconnect is the connection-closed path: the peer and all its
// negotiation groups go away.
func (s *PeerService) Disconnect(ctx context.Context, peerID string) error {
	peer, err := s.repos.Peers.GetByID(ctx, peerID)
	if errors.Is(err, huntcall_errors.ErrNotFound) {
		_, err = s.negotiation.ClosePeerGroups(ctx, peerID)
		return err
	}
	if err != nil {
		return fmt.Errorf("load peer: %w", err)
	}
	return s.remove(ctx, peer)
}

func (s *PeerService) remove(ctx context.Context, peer call.Peer) error {
	err := s.withRetry(ctx, func() error {
		return s.locker.WithLock(ctx, redis.RoomLockKey(peer.Call), func(ctx context.Context) error {
			if _, err := s.negotiation.ClosePeerGroups(ctx, peer.ID); err != nil {
				return err
			}
			if _, err := s.repos.Peers.Delete(ctx, peer.ID); err != nil {
				return fmt.Errorf("delete peer: %w", err)
			}
			_, err := s.rooms.ReleaseRoomIfEmptyLocked(ctx, peer.Call)
			return err
		})
	})
	if err != nil {
		return err
	}

	s.log.WithContext(ctx).Info("peer left", zap.String("call", peer.Call), zap.String("peer", peer.ID))
	s.touched(ctx, peer.Hunt, peer.Call)
	return nil
}

// SetPeerState updates mute and deafen in place. Deafening also mutes.
func (s *PeerService) SetPeerState(ctx context.Context, userID, peerID string, muted, deafened bool) (call.Peer, error) {
	peer, err := s.repos.Peers.GetByID(ctx, peerID)
	if err != nil {
		return call.Peer{}, fmt.Errorf("load peer: %w", err)
	}
	if peer.CreatedBy != userID {
		return call.Peer{}, huntcall_errors.ErrForbidden
	}
	if deafened {
		muted = true
	}
	if err := s.repos.Peers.UpdateState(ctx, peerID, muted, deafened); err != nil {
		return call.Peer{}, fmt.Errorf("update peer: %w", err)
	}
	peer.Muted, peer.Deafened = muted, deafened
	s.touched(ctx, peer.Hunt, peer.Call)
	return peer, nil
}

type CallMetadata struct {
	Hunt    string            `json:"hunt"`
	Call    string            `json:"call"`
	Room    *call.Room        `json:"room,omitempty"`
	Peers   []call.Peer       `json:"peers"`
	History *call.CallHistory `json:"history,omitempty"`
}

// Metadata lists who is in a call and when it was last active.
func (s *PeerService) Metadata(ctx context.Context, userID, hunt, callID string) (CallMetadata, error) {
	if err := s.authorize(ctx, userID, hunt); err != nil {
		return CallMetadata{}, err
	}
	meta := CallMetadata{Hunt: hunt, Call: callID, Peers: []call.Peer{}}

	peers, err := s.repos.Peers.ListByCall(ctx, callID)
	if err != nil {
		return CallMetadata{}, fmt.Errorf("list peers: %w", err)
	}
	for _, p := range peers {
		if p.Hunt == hunt {
			meta.Peers = append(meta.Peers, p)
		}
	}

	if room, err := s.repos.Rooms.GetByCall(ctx, callID); err == nil && room.Hunt == hunt {
		meta.Room = &room
	} else if err != nil && !errors.Is(err, huntcall_errors.ErrNotFound) {
		return CallMetadata{}, fmt.Errorf("load room: %w", err)
	}

	if h, err := s.repos.History.Get(ctx, callID); err == nil && h.Hunt == hunt {
		meta.History = &h
	} else if err != nil && !errors.Is(err, huntcall_errors.ErrNotFound) {
		return CallMetadata{}, fmt.Errorf("load history: %w", err)
	}
	return meta, nil
}

// Calls lists the call histories of a hunt, most recent first.
func (s *PeerService) Calls(ctx context.Context, userID, hunt string) ([]call.CallHistory, error) {
	if err := s.authorize(ctx, userID, hunt); err != nil {
		return nil, err
	}
	return s.repos.History.ListByHunt(ctx, hunt)
}

func (s *PeerService) authorize(ctx context.Context, userID, hunt string) error {
	if userID == "" {
		return huntcall_errors.ErrUnauthorized
	}
	if s.authorizer == nil {
		return nil
	}
	ok, err := s.authorizer.UserMayJoinCall(ctx, userID, hunt)
	if err != nil {
		return err
	}
	if !ok {
		return huntcall_errors.ErrUnauthorized
	}
	return nil
}

// withRetry retries fn on lock timeouts with linear backoff.
func (s *PeerService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.config.LockAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, huntcall_errors.ErrLockTimeout) || attempt == s.config.LockAttempts {
			return err
		}
		s.log.WithContext(ctx).Debug("lock timeout, retrying", zap.Int("attempt", attempt))

		timer := time.NewTimer(time.Duration(attempt) * s.config.LockBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (s *PeerService) touched(ctx context.Context, hunt, callID string) {
	if err := s.repos.History.Touch(ctx, hunt, callID); err != nil {
		s.log.WithContext(ctx).Warn("touch call history", zap.String("call", callID), zap.Error(err))
	}
	notify(ctx, s.notifier, s.log, events.PeersChanged(callID))
}
