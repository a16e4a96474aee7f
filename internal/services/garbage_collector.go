package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"huntcall/internal/events"
	"huntcall/internal/redis"
	"huntcall/internal/repository"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"go.uber.org/zap"
)

// Report summarizes one garbage collection pass.
type Report struct {
	DeadServers     []string `json:"dead_servers"`
	PeersRemoved    int      `json:"peers_removed"`
	RoomsDeleted    int      `json:"rooms_deleted"`
	RoomsReassigned int      `json:"rooms_reassigned"`
	RoutersRemoved  int      `json:"routers_removed"`
	GroupsRemoved   int      `json:"groups_removed"`
	Failures        int      `json:"failures"`
}

// GarbageCollector removes state owned by servers whose heartbeat went stale
// and moves their rooms to the server running the pass. Every server runs
// one; passes on different servers are serialized per call by the room lock.
type GarbageCollector struct {
	repos     repository.Repositories
	rooms     *RoomService
	locker    Locker
	registry  ServerRegistry
	notifier  events.Notifier
	deadAfter time.Duration
	log       *logger.Logger
	loop      *periodic
}

func NewGarbageCollector(
	repos repository.Repositories,
	rooms *RoomService,
	locker Locker,
	registry ServerRegistry,
	notifier events.Notifier,
	deadAfter, interval time.Duration,
	log *logger.Logger,
) *GarbageCollector {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	gc := &GarbageCollector{
		repos:     repos,
		rooms:     rooms,
		locker:    locker,
		registry:  registry,
		notifier:  notifier,
		deadAfter: deadAfter,
		log:       log.Named("gc"),
	}
	gc.loop = newPeriodic(interval, func(ctx context.Context) {
		report, err := gc.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			gc.log.Logger.Warn("gc pass failed", zap.Error(err))
			return
		}
		if len(report.DeadServers) > 0 {
			gc.log.Logger.Info("gc pass finished",
				zap.Strings("dead_servers", report.DeadServers),
				zap.Int("peers_removed", report.PeersRemoved),
				zap.Int("rooms_reassigned", report.RoomsReassigned),
				zap.Int("rooms_deleted", report.RoomsDeleted),
				zap.Int("failures", report.Failures),
			)
		}
	})
	return gc
}

func (gc *GarbageCollector) Start(ctx context.Context) {
	gc.loop.Start(ctx, nil)
}

func (gc *GarbageCollector) Stop() {
	gc.loop.Stop()
}

// RunOnce performs a single pass. Dead servers are forgotten only when
// every step succeeded, so a partial pass is retried in full next time.
func (gc *GarbageCollector) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	self := gc.registry.ID()

	listed, err := gc.registry.ListDeadServers(ctx, gc.deadAfter)
	if err != nil {
		return report, fmt.Errorf("list dead servers: %w", err)
	}
	for _, id := range listed {
		if id != self {
			report.DeadServers = append(report.DeadServers, id)
		}
	}
	if len(report.DeadServers) == 0 {
		return report, nil
	}
	dead := report.DeadServers
	log := gc.log.WithContext(ctx)

	affected := make(map[string]bool)
	fail := func(step string, err error) {
		report.Failures++
		log.Warn("gc step failed", zap.String("step", step), zap.Error(err))
	}

	peers, err := gc.repos.Peers.DeleteByServers(ctx, dead)
	if err != nil {
		fail("peers", err)
	}
	report.PeersRemoved = len(peers)
	for _, p := range peers {
		affected[p.Call] = true
	}

	groups, err := gc.repos.Negotiation.DeleteGroupsByServers(ctx, dead)
	if err != nil {
		fail("negotiation", err)
	}
	report.GroupsRemoved = len(groups)

	routers, err := gc.repos.Routers.DeleteByServers(ctx, dead)
	if err != nil {
		fail("routers", err)
	}
	report.RoutersRemoved = int(routers)

	rooms, err := gc.repos.Rooms.ListRoutedTo(ctx, dead)
	if err != nil {
		fail("rooms", err)
	}
	rerouted := make(map[string]bool)
	for _, room := range rooms {
		var outcome ReassignOutcome
		err := gc.locker.WithLock(ctx, redis.RoomLockKey(room.Call), func(ctx context.Context) error {
			var err error
			outcome, err = gc.rooms.ReassignLocked(ctx, room.Call, dead, self)
			if err != nil {
				return err
			}
			gc.checkRoomInvariant(ctx, room.Call, dead)
			return nil
		})
		if err != nil {
			fail("reassign "+room.Call, err)
			continue
		}
		switch outcome {
		case ReassignRerouted:
			report.RoomsReassigned++
		case ReassignDeleted:
			report.RoomsDeleted++
		}
		affected[room.Call] = true
		rerouted[room.Call] = true
	}

	calls := make([]string, 0, len(affected))
	for c := range affected {
		calls = append(calls, c)
	}
	sort.Strings(calls)

	// A live room may have lost its last peer to the dead server.
	for _, c := range calls {
		if rerouted[c] {
			continue
		}
		released, err := gc.rooms.ReleaseRoomIfEmpty(ctx, c)
		if err != nil {
			fail("release "+c, err)
			continue
		}
		if released {
			report.RoomsDeleted++
		}
	}

	for _, c := range calls {
		notify(ctx, gc.notifier, gc.log, events.PeersChanged(c))
	}
	for _, id := range groups {
		notify(ctx, gc.notifier, gc.log, events.NegotiationChanged(id, ""))
	}
	if report.RoomsReassigned > 0 {
		notify(ctx, gc.notifier, gc.log, events.ServerWork(self))
	}

	if report.Failures > 0 {
		return report, nil
	}
	if err := gc.registry.Forget(ctx, dead...); err != nil {
		return report, fmt.Errorf("forget dead servers: %w", err)
	}
	return report, nil
}

// checkRoomInvariant logs when a call with peers is left without a live room.
// It never fails the pass.
func (gc *GarbageCollector) checkRoomInvariant(ctx context.Context, callID string, dead []string) {
	count, err := gc.repos.Peers.CountByCall(ctx, callID)
	if err != nil || count == 0 {
		return
	}
	room, err := gc.repos.Rooms.GetByCall(ctx, callID)
	switch {
	case errors.Is(err, huntcall_errors.ErrNotFound):
		gc.log.WithContext(ctx).Error("call has peers but no room", zap.String("call", callID), zap.Int("peers", count))
	case err == nil && contains(dead, room.RoutedServer):
		gc.log.WithContext(ctx).Error("room still routed to dead server",
			zap.String("call", callID),
			zap.String("routed_server", room.RoutedServer),
		)
	}
}
