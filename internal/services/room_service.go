package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"huntcall/internal/domain/call"
	"huntcall/internal/events"
	"huntcall/internal/redis"
	"huntcall/internal/repository"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomService owns the "at most one Room per call" invariant. Every
// mutation runs under the call's room lock; the *Locked variants assume the
// caller already holds it.
type RoomService struct {
	repos     repository.Repositories
	locker    Locker
	registry  ServerRegistry
	notifier  events.Notifier
	deadAfter time.Duration
	log       *logger.Logger
}

func NewRoomService(repos repository.Repositories, locker Locker, registry ServerRegistry, notifier events.Notifier, deadAfter time.Duration, log *logger.Logger) *RoomService {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RoomService{
		repos:     repos,
		locker:    locker,
		registry:  registry,
		notifier:  notifier,
		deadAfter: deadAfter,
		log:       log.Named("rooms"),
	}
}

type ReassignOutcome string

const (
	// ReassignSkipped means the room is no longer routed to a dead server.
	ReassignSkipped ReassignOutcome = "skipped"
	// ReassignGone means the room disappeared before the lock was taken.
	ReassignGone ReassignOutcome = "gone"
	// ReassignDeleted means no peers remained so the room was dropped.
	ReassignDeleted ReassignOutcome = "deleted"
	// ReassignRerouted means a replacement room now points at the current server.
	ReassignRerouted ReassignOutcome = "rerouted"
)

func (s *RoomService) EnsureRoom(ctx context.Context, hunt, callID, requestingServer, createdBy string) (call.Room, error) {
	var room call.Room
	err := s.locker.WithLock(ctx, redis.RoomLockKey(callID), func(ctx context.Context) error {
		var err error
		room, err = s.EnsureRoomLocked(ctx, hunt, callID, requestingServer, createdBy)
		return err
	})
	return room, err
}

// EnsureRoomLocked returns the call's room, creating one routed to
// requestingServer when none exists. A room routed to a dead server is
// returned as is; only the garbage collector reassigns.
func (s *RoomService) EnsureRoomLocked(ctx context.Context, hunt, callID, requestingServer, createdBy string) (call.Room, error) {
	room, err := s.repos.Rooms.GetByCall(ctx, callID)
	if err == nil {
		s.warnIfDead(ctx, room)
		return room, nil
	}
	if !errors.Is(err, huntcall_errors.ErrNotFound) {
		return call.Room{}, fmt.Errorf("load room: %w", err)
	}

	room = call.Room{
		ID:           uuid.NewString(),
		Hunt:         hunt,
		Call:         callID,
		RoutedServer: requestingServer,
		CreatedBy:    createdBy,
	}
	existing, err := s.createRoom(ctx, room)
	if err != nil {
		return call.Room{}, err
	}
	if existing.ID == room.ID {
		s.log.WithContext(ctx).Info("room created",
			zap.String("call", callID),
			zap.String("routed_server", requestingServer),
		)
		s.notifyRoom(ctx, existing)
	}
	return existing, nil
}

// createRoom inserts room. A duplicate insert is absorbed and the stored room returned.
func (s *RoomService) createRoom(ctx context.Context, room call.Room) (call.Room, error) {
	err := s.repos.Rooms.Create(ctx, &room)
	if err == nil {
		return room, nil
	}
	if !huntcall_errors.IsDuplicate(err) {
		return call.Room{}, fmt.Errorf("create room: %w", err)
	}
	existing, err := s.repos.Rooms.GetByCall(ctx, room.Call)
	if err != nil {
		return call.Room{}, fmt.Errorf("load raced room: %w", err)
	}
	return existing, nil
}

func (s *RoomService) warnIfDead(ctx context.Context, room call.Room) {
	if s.registry == nil {
		return
	}
	alive, err := s.registry.IsServerAlive(ctx, room.RoutedServer, s.deadAfter)
	if err == nil && !alive {
		s.log.WithContext(ctx).Warn("room routed to dead server, waiting for gc",
			zap.String("call", room.Call),
			zap.String("routed_server", room.RoutedServer),
		)
	}
}

func (s *RoomService) ReleaseRoomIfEmpty(ctx context.Context, callID string) (bool, error) {
	var released bool
	err := s.locker.WithLock(ctx, redis.RoomLockKey(callID), func(ctx context.Context) error {
		var err error
		released, err = s.ReleaseRoomIfEmptyLocked(ctx, callID)
		return err
	})
	return released, err
}

// ReleaseRoomIfEmptyLocked deletes the call's room and router rows once no peer remains.
func (s *RoomService) ReleaseRoomIfEmptyLocked(ctx context.Context, callID string) (bool, error) {
	count, err := s.repos.Peers.CountByCall(ctx, callID)
	if err != nil {
		return false, fmt.Errorf("count peers: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	room, err := s.repos.Rooms.GetByCall(ctx, callID)
	if errors.Is(err, huntcall_errors.ErrNotFound) {
		return false, s.repos.Routers.DeleteByCall(ctx, callID)
	}
	if err != nil {
		return false, fmt.Errorf("load room: %w", err)
	}

	if _, err := s.repos.Rooms.Delete(ctx, room.ID); err != nil {
		return false, fmt.Errorf("delete room: %w", err)
	}
	if err := s.repos.Routers.DeleteByCall(ctx, callID); err != nil {
		return true, fmt.Errorf("delete routers: %w", err)
	}

	s.log.WithContext(ctx).Info("room released", zap.String("call", callID))
	s.notifyRoom(ctx, room)
	return true, nil
}

// ReassignLocked is the only path that moves a room between servers. It
// re-checks that the room is still owned by one of deadServers, deletes it,
// and inserts a replacement routed to currentServer if peers remain.
func (s *RoomService) ReassignLocked(ctx context.Context, callID string, deadServers []string, currentServer string) (ReassignOutcome, error) {
	room, err := s.repos.Rooms.GetByCall(ctx, callID)
	if errors.Is(err, huntcall_errors.ErrNotFound) {
		return ReassignGone, nil
	}
	if err != nil {
		return "", fmt.Errorf("load room: %w", err)
	}
	if !contains(deadServers, room.RoutedServer) {
		return ReassignSkipped, nil
	}

	deleted, err := s.repos.Rooms.DeleteIfRoutedTo(ctx, room.ID, deadServers)
	if err != nil {
		return "", fmt.Errorf("delete dead room: %w", err)
	}
	if !deleted {
		return ReassignGone, nil
	}
	if err := s.repos.Routers.DeleteByCall(ctx, callID); err != nil {
		return "", fmt.Errorf("delete dead routers: %w", err)
	}

	count, err := s.repos.Peers.CountByCall(ctx, callID)
	if err != nil {
		return "", fmt.Errorf("count peers: %w", err)
	}
	if count == 0 {
		s.notifyRoom(ctx, room)
		return ReassignDeleted, nil
	}

	replacement := call.Room{
		ID:           uuid.NewString(),
		Hunt:         room.Hunt,
		Call:         room.Call,
		RoutedServer: currentServer,
		CreatedBy:    room.CreatedBy,
	}
	if _, err := s.createRoom(ctx, replacement); err != nil {
		return "", err
	}

	s.log.WithContext(ctx).Info("room rerouted",
		zap.String("call", callID),
		zap.String("from", room.RoutedServer),
		zap.String("to", currentServer),
	)
	s.notifyRoom(ctx, replacement)
	return ReassignRerouted, nil
}

func (s *RoomService) notifyRoom(ctx context.Context, room call.Room) {
	notify(ctx, s.notifier, s.log, events.RoomChanged(room.Call))
	notify(ctx, s.notifier, s.log, events.ServerWork(room.RoutedServer))
}

func notify(ctx context.Context, n events.Notifier, log *logger.Logger, event events.Event) {
	if err := n.Notify(ctx, event); err != nil {
		log.WithContext(ctx).Warn("notify failed",
			zap.String("event", event.Type),
			zap.Error(err),
		)
	}
}

func contains(items []string, item string) bool {
	for _, v := range items {
		if v == item {
			return true
		}
	}
	return false
}
