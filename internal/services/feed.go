package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"huntcall/internal/domain/call"
	"huntcall/internal/domain/negotiation"
	"huntcall/internal/events"
	"huntcall/internal/repository"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"go.uber.org/zap"
)

// Watcher hands out wake-up channels by channel name. events.Fanout implements it.
type Watcher interface {
	Watch(channel string) (<-chan struct{}, func())
}

// RoomState is what a client in a call sees of the room.
type RoomState struct {
	Call   string       `json:"call"`
	Room   *call.Room   `json:"room,omitempty"`
	Router *call.Router `json:"router,omitempty"`
	Peers  []call.Peer  `json:"peers"`
}

// NegotiationState is the current snapshot of one correlation group. A nil
// Group means the group was deleted.
type NegotiationState struct {
	TransportRequest string             `json:"transport_request"`
	Group            *negotiation.Group `json:"group,omitempty"`
}

// RoomFeed turns wake-ups and polling into level-triggered snapshot streams.
type RoomFeed struct {
	repos   repository.Repositories
	watcher Watcher
	poll    time.Duration
	log     *logger.Logger
}

func NewRoomFeed(repos repository.Repositories, watcher Watcher, poll time.Duration, log *logger.Logger) *RoomFeed {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RoomFeed{repos: repos, watcher: watcher, poll: poll, log: log.Named("feed")}
}

func (f *RoomFeed) RoomState(ctx context.Context, callID string) (RoomState, error) {
	state := RoomState{Call: callID, Peers: []call.Peer{}}

	room, err := f.repos.Rooms.GetByCall(ctx, callID)
	switch {
	case err == nil:
		state.Room = &room
	case !errors.Is(err, huntcall_errors.ErrNotFound):
		return state, fmt.Errorf("load room: %w", err)
	}

	router, err := f.repos.Routers.GetByCall(ctx, callID)
	switch {
	case err == nil:
		state.Router = &router
	case !errors.Is(err, huntcall_errors.ErrNotFound):
		return state, fmt.Errorf("load router: %w", err)
	}

	peers, err := f.repos.Peers.ListByCall(ctx, callID)
	if err != nil {
		return state, fmt.Errorf("list peers: %w", err)
	}
	state.Peers = append(state.Peers, peers...)
	return state, nil
}

// WatchRoom streams the call's room state until ctx is done.
func (f *RoomFeed) WatchRoom(ctx context.Context, callID string) <-chan RoomState {
	out := make(chan RoomState, 1)
	go func() {
		defer close(out)
		f.stream(ctx, events.CallChannel(callID), func(ctx context.Context) (any, bool, error) {
			state, err := f.RoomState(ctx, callID)
			return state, false, err
		}, func(v any) bool {
			select {
			case out <- v.(RoomState):
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out
}

// WatchNegotiation streams a correlation group. Once the group is gone a
// final state with a nil Group is sent and the stream ends.
func (f *RoomFeed) WatchNegotiation(ctx context.Context, transportRequestID string) <-chan NegotiationState {
	out := make(chan NegotiationState, 1)
	go func() {
		defer close(out)
		f.stream(ctx, events.NegotiationChannel(transportRequestID), func(ctx context.Context) (any, bool, error) {
			state := NegotiationState{TransportRequest: transportRequestID}
			group, err := f.repos.Negotiation.LoadGroup(ctx, transportRequestID)
			if errors.Is(err, huntcall_errors.ErrNotFound) {
				return state, true, nil
			}
			if err != nil {
				return state, false, err
			}
			state.Group = &group
			return state, false, nil
		}, func(v any) bool {
			select {
			case out <- v.(NegotiationState):
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return out
}

// stream re-reads with load on every wake-up and poll tick and calls send
// whenever the encoded snapshot changed. load reports done to end the stream
// after its value has been sent.
func (f *RoomFeed) stream(
	ctx context.Context,
	channel string,
	load func(ctx context.Context) (any, bool, error),
	send func(v any) bool,
) {
	var wake <-chan struct{}
	if f.watcher != nil {
		var cancel func()
		wake, cancel = f.watcher.Watch(channel)
		defer cancel()
	}
	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	var last []byte
	for {
		v, done, err := load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Logger.Warn("feed read failed", zap.String("channel", channel), zap.Error(err))
		} else if encoded, err := json.Marshal(v); err == nil && !bytes.Equal(encoded, last) {
			last = encoded
			if !send(v) {
				return
			}
		}
		if done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}
