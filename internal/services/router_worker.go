package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"huntcall/internal/domain/call"
	"huntcall/internal/domain/negotiation"
	"huntcall/internal/events"
	"huntcall/internal/media"
	"huntcall/internal/repository"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RouterWorker is the router-owning side of the negotiation protocol. Each
// pass converges the media engine and the reply records with the rooms and
// requests addressed to this server. Every step is idempotent, so a pass
// may be interrupted and rerun at any point.
type RouterWorker struct {
	repos    repository.Repositories
	engine   media.Engine
	notifier events.Notifier
	serverID string
	log      *logger.Logger
	loop     *periodic

	mu sync.Mutex
}

func NewRouterWorker(repos repository.Repositories, engine media.Engine, notifier events.Notifier, serverID string, interval time.Duration, log *logger.Logger) *RouterWorker {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	w := &RouterWorker{
		repos:    repos,
		engine:   engine,
		notifier: notifier,
		serverID: serverID,
		log:      log.Named("router_worker"),
	}
	w.loop = newPeriodic(interval, func(ctx context.Context) {
		if err := w.Reconcile(ctx); err != nil && ctx.Err() == nil {
			w.log.Logger.Warn("reconcile pass incomplete", zap.Error(err))
		}
	})
	return w
}

// Start runs Reconcile on every tick and whenever wake fires.
func (w *RouterWorker) Start(ctx context.Context, wake <-chan struct{}) {
	w.loop.Start(ctx, wake)
}

func (w *RouterWorker) Stop() {
	w.loop.Stop()
}

func (w *RouterWorker) Reconcile(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	routers, err := w.syncRouters(ctx)
	if err != nil {
		return err
	}

	groups, err := w.repos.Negotiation.LoadGroupsRoutedTo(ctx, w.serverID)
	if err != nil {
		return fmt.Errorf("load groups: %w", err)
	}

	changed := make(map[string]bool)
	var errs []error
	for i := range groups {
		if err := w.advance(ctx, &groups[i], routers, changed); err != nil {
			errs = append(errs, err)
		}
	}

	// Consumers read producers from every group of the call, so they are
	// created against a fresh view.
	groups, err = w.repos.Negotiation.LoadGroupsRoutedTo(ctx, w.serverID)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("reload groups: %w", err))...)
	}
	producers := make(map[string][]negotiation.ProducerServer)
	created := make(map[string]bool)
	for i := range groups {
		g := &groups[i]
		if _, ok := producers[g.Request.Call]; !ok {
			list, err := w.repos.Negotiation.ListProducerServersByCall(ctx, g.Request.Call)
			if err != nil {
				errs = append(errs, fmt.Errorf("list producers: %w", err))
				continue
			}
			producers[g.Request.Call] = list
		}
		if err := w.consume(ctx, g, routers, producers[g.Request.Call], changed, created); err != nil {
			errs = append(errs, err)
		}
		w.resume(ctx, g)
	}

	w.sweep(groups, created)

	for id := range changed {
		notify(ctx, w.notifier, w.log, events.NegotiationChanged(id, ""))
	}
	return errors.Join(errs...)
}

// syncRouters makes the engine and the router rows match the rooms routed here.
func (w *RouterWorker) syncRouters(ctx context.Context) (map[string]call.Router, error) {
	rooms, err := w.repos.Rooms.ListRoutedTo(ctx, []string{w.serverID})
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rows, err := w.repos.Routers.ListByServer(ctx, w.serverID)
	if err != nil {
		return nil, fmt.Errorf("list routers: %w", err)
	}

	byCall := make(map[string]call.Router, len(rows))
	for _, r := range rows {
		byCall[r.Call] = r
	}
	inEngine := make(map[string]bool)
	for _, id := range w.engine.RouterIDs() {
		inEngine[id] = true
	}

	wanted := make(map[string]bool, len(rooms))
	for _, room := range rooms {
		wanted[room.Call] = true
		r, ok := byCall[room.Call]
		if !ok {
			r = call.Router{ID: uuid.NewString(), Call: room.Call, CreatedServer: w.serverID}
			if err := w.repos.Routers.Create(ctx, &r); err != nil {
				if !huntcall_errors.IsDuplicate(err) {
					w.log.Logger.Warn("create router row", zap.String("call", room.Call), zap.Error(err))
					continue
				}
				existing, err := w.repos.Routers.GetByCall(ctx, room.Call)
				if err != nil || existing.CreatedServer != w.serverID {
					w.log.Logger.Warn("router row held by another server", zap.String("call", room.Call))
					continue
				}
				r = existing
			} else {
				w.log.Logger.Info("router created", zap.String("call", room.Call), zap.String("router", r.ID))
				notify(ctx, w.notifier, w.log, events.RoomChanged(room.Call))
			}
			byCall[room.Call] = r
		}
		if !inEngine[r.ID] {
			if err := w.engine.CreateRouter(ctx, r.ID); err != nil {
				w.log.Logger.Warn("create engine router", zap.String("router", r.ID), zap.Error(err))
				continue
			}
			inEngine[r.ID] = true
		}
	}

	for callID, r := range byCall {
		if wanted[callID] {
			continue
		}
		if err := w.engine.CloseRouter(r.ID); err != nil && !errors.Is(err, media.ErrRouterNotFound) {
			w.log.Logger.Warn("close engine router", zap.String("router", r.ID), zap.Error(err))
		}
		if err := w.repos.Routers.Delete(ctx, r.ID); err != nil {
			w.log.Logger.Warn("delete router row", zap.String("router", r.ID), zap.Error(err))
		}
		delete(byCall, callID)
		delete(inEngine, r.ID)
		notify(ctx, w.notifier, w.log, events.RoomChanged(callID))
	}

	owned := make(map[string]bool, len(byCall))
	for _, r := range byCall {
		owned[r.ID] = true
	}
	for id := range inEngine {
		if !owned[id] {
			_ = w.engine.CloseRouter(id)
		}
	}
	return byCall, nil
}

// advance answers transport requests, connect requests and producers.
func (w *RouterWorker) advance(ctx context.Context, g *negotiation.Group, routers map[string]call.Router, changed map[string]bool) error {
	router, ok := routers[g.Request.Call]
	if !ok {
		return nil
	}
	var errs []error

	for _, dir := range []negotiation.Direction{negotiation.DirectionSend, negotiation.DirectionRecv} {
		if _, ok := g.Transport(dir); ok {
			continue
		}
		info, err := w.engine.CreateTransport(ctx, router.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s transport: %w", dir, err))
			continue
		}
		t := negotiation.Transport{
			ID:               uuid.NewString(),
			TransportRequest: g.Request.ID,
			CreatedServer:    w.serverID,
			Call:             g.Request.Call,
			Peer:             g.Request.Peer,
			Direction:        dir,
			TransportID:      info.ID,
			ICEParameters:    info.ICEParameters,
			ICECandidates:    info.ICECandidates,
			DTLSParameters:   info.DTLSParameters,
		}
		if err := w.repos.Negotiation.CreateTransport(ctx, &t); err != nil {
			_ = w.engine.CloseTransport(info.ID)
			if !huntcall_errors.IsDuplicate(err) {
				errs = append(errs, fmt.Errorf("write transport: %w", err))
			}
			continue
		}
		g.Transports = append(g.Transports, t)
		changed[g.Request.ID] = true
	}

	for _, cr := range g.ConnectRequests {
		if g.Connected(cr.Transport) {
			continue
		}
		t, ok := g.TransportByID(cr.Transport)
		if !ok {
			continue
		}
		if err := w.engine.ConnectTransport(ctx, t.TransportID, cr.ConnectParameters); err != nil {
			errs = append(errs, fmt.Errorf("connect transport %s: %w", t.ID, err))
			continue
		}
		ack := negotiation.ConnectAck{
			ID:               uuid.NewString(),
			TransportRequest: g.Request.ID,
			CreatedServer:    w.serverID,
			Call:             g.Request.Call,
			Peer:             g.Request.Peer,
			Transport:        t.ID,
		}
		if err := w.repos.Negotiation.CreateConnectAck(ctx, &ack); err != nil && !huntcall_errors.IsDuplicate(err) {
			errs = append(errs, fmt.Errorf("write connect ack: %w", err))
			continue
		}
		g.ConnectAcks = append(g.ConnectAcks, ack)
		changed[g.Request.ID] = true
	}

	for _, pc := range g.ProducerClients {
		if _, ok := g.ProducerServerFor(pc.ID); ok {
			continue
		}
		t, ok := g.TransportByID(pc.Transport)
		if !ok || !g.Connected(t.ID) {
			continue
		}
		producerID, err := w.engine.Produce(ctx, t.TransportID, string(pc.Kind), pc.RTPParameters)
		if errors.Is(err, media.ErrTransportNotConnected) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("produce %s: %w", pc.ID, err))
			continue
		}
		ps := negotiation.ProducerServer{
			ID:               uuid.NewString(),
			TransportRequest: g.Request.ID,
			CreatedServer:    w.serverID,
			Call:             g.Request.Call,
			Peer:             g.Request.Peer,
			Transport:        t.ID,
			ProducerClient:   pc.ID,
			TrackID:          pc.TrackID,
			Kind:             pc.Kind,
			ProducerID:       producerID,
		}
		if err := w.repos.Negotiation.CreateProducerServer(ctx, &ps); err != nil {
			_ = w.engine.CloseProducer(producerID)
			if !huntcall_errors.IsDuplicate(err) {
				errs = append(errs, fmt.Errorf("write producer: %w", err))
			}
			continue
		}
		g.ProducerServers = append(g.ProducerServers, ps)
		changed[g.Request.ID] = true
	}

	return errors.Join(errs...)
}

// consume creates a paused consumer on the group's recv transport for every
// producer of another peer in the same call.
func (w *RouterWorker) consume(ctx context.Context, g *negotiation.Group, routers map[string]call.Router, producers []negotiation.ProducerServer, changed, created map[string]bool) error {
	if _, ok := routers[g.Request.Call]; !ok {
		return nil
	}
	recv, ok := g.Transport(negotiation.DirectionRecv)
	if !ok {
		return nil
	}
	var errs []error
	for _, ps := range producers {
		if ps.Peer == g.Request.Peer || ps.CreatedServer != w.serverID {
			continue
		}
		if _, ok := g.ConsumerFor(recv.ID, ps.ID); ok {
			continue
		}
		info, err := w.engine.Consume(ctx, recv.TransportID, ps.ProducerID, g.Request.RTPCapabilities)
		if errors.Is(err, media.ErrProducerNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("consume %s: %w", ps.ID, err))
			continue
		}
		c := negotiation.Consumer{
			ID:               uuid.NewString(),
			TransportRequest: g.Request.ID,
			CreatedServer:    w.serverID,
			Call:             g.Request.Call,
			Peer:             g.Request.Peer,
			Transport:        recv.ID,
			ProducerServer:   ps.ID,
			ProducerPeer:     ps.Peer,
			ProducerID:       ps.ProducerID,
			ConsumerID:       info.ID,
			Kind:             ps.Kind,
			RTPParameters:    info.RTPParameters,
			Paused:           true,
		}
		if err := w.repos.Negotiation.CreateConsumer(ctx, &c); err != nil {
			_ = w.engine.CloseConsumer(info.ID)
			if !huntcall_errors.IsDuplicate(err) {
				errs = append(errs, fmt.Errorf("write consumer: %w", err))
			}
			continue
		}
		created[info.ID] = true
		changed[g.Request.ID] = true
	}
	return errors.Join(errs...)
}

// resume starts every consumer acknowledged as unpaused.
func (w *RouterWorker) resume(ctx context.Context, g *negotiation.Group) {
	for _, ack := range g.ConsumerAcks {
		if ack.Paused {
			continue
		}
		for _, c := range g.Consumers {
			if c.ID != ack.Consumer {
				continue
			}
			err := w.engine.ResumeConsumer(c.ConsumerID)
			if err != nil && !errors.Is(err, media.ErrTransportNotConnected) {
				w.log.WithContext(ctx).Warn("resume consumer", zap.String("consumer", c.ID), zap.Error(err))
			}
		}
	}
}

// sweep closes engine objects whose records no longer exist.
func (w *RouterWorker) sweep(groups []negotiation.Group, createdConsumers map[string]bool) {
	transports := make(map[string]bool)
	producers := make(map[string]bool)
	consumers := make(map[string]bool)
	for id := range createdConsumers {
		consumers[id] = true
	}
	for _, g := range groups {
		for _, t := range g.Transports {
			if t.CreatedServer == w.serverID {
				transports[t.TransportID] = true
			}
		}
		for _, ps := range g.ProducerServers {
			if ps.CreatedServer == w.serverID {
				producers[ps.ProducerID] = true
			}
		}
		for _, c := range g.Consumers {
			if c.CreatedServer == w.serverID {
				consumers[c.ConsumerID] = true
			}
		}
	}

	for _, id := range w.engine.ConsumerIDs() {
		if !consumers[id] {
			_ = w.engine.CloseConsumer(id)
		}
	}
	for _, id := range w.engine.ProducerIDs() {
		if !producers[id] {
			_ = w.engine.CloseProducer(id)
		}
	}
	for _, id := range w.engine.TransportIDs() {
		if !transports[id] {
			_ = w.engine.CloseTransport(id)
		}
	}
}
