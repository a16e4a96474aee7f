package services

import (
	"context"
	"errors"
	"fmt"

	"huntcall/internal/commands"
	"huntcall/internal/domain/negotiation"
	"huntcall/internal/events"
	"huntcall/internal/repository"
	huntcall_errors "huntcall/pkg/errors"
	"huntcall/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NegotiationService is the requesting side of the negotiation protocol:
// it writes request and ack records addressed to the server that owns the
// call's router. The owner answers through RouterWorker.
type NegotiationService struct {
	repos    repository.Repositories
	notifier events.Notifier
	serverID string
	log      *logger.Logger
}

func NewNegotiationService(repos repository.Repositories, notifier events.Notifier, serverID string, bus *commands.Bus, log *logger.Logger) *NegotiationService {
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	svc := &NegotiationService{repos: repos, notifier: notifier, serverID: serverID, log: log.Named("negotiation")}
	svc.RegisterHandlers(bus)
	return svc
}

func (s *NegotiationService) RegisterHandlers(bus *commands.Bus) {
	if bus == nil {
		return
	}

	bus.Register(commands.TypeRequestTransport, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.RequestTransportCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		tr, err := s.RequestTransport(ctx, c.UserID, c.PeerID, c.RTPCapabilities)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: tr.ID, Payload: tr}, nil
	}))

	bus.Register(commands.TypeCloseTransport, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.CloseTransportCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		if err := s.CloseTransportRequest(ctx, c.UserID, c.TransportRequestID); err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: c.TransportRequestID}, nil
	}))

	bus.Register(commands.TypeConnectTransport, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.ConnectTransportCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		cr, err := s.ConnectTransport(ctx, c.UserID, c.TransportID, c.ConnectParameters)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: cr.ID, Payload: cr}, nil
	}))

	bus.Register(commands.TypeProduce, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.ProduceCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		pc, err := s.Produce(ctx, c.UserID, c.TransportID, c.TrackID, c.Kind, c.RTPParameters, c.Paused)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: pc.ID, Payload: pc}, nil
	}))

	bus.Register(commands.TypeCloseProducer, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.CloseProducerCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		if err := s.CloseProducer(ctx, c.UserID, c.ProducerClientID); err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: c.ProducerClientID}, nil
	}))

	bus.Register(commands.TypeAckConsumer, commands.HandlerFunc(func(ctx context.Context, cmd commands.Command) (commands.Result, error) {
		c, ok := cmd.(commands.AckConsumerCommand)
		if !ok {
			return commands.Result{}, huntcall_errors.ErrInvalidInput
		}
		ack, err := s.AckConsumer(ctx, c.UserID, c.ConsumerID, c.Paused)
		if err != nil {
			return commands.Result{}, err
		}
		return commands.Result{AggregateID: ack.ID, Payload: ack}, nil
	}))
}

// RequestTransport opens a negotiation group for peerID, addressed to the
// server that instantiated the call's router.
func (s *NegotiationService) RequestTransport(ctx context.Context, userID, peerID, rtpCapabilities string) (negotiation.TransportRequest, error) {
	peer, err := s.repos.Peers.GetByID(ctx, peerID)
	if err != nil {
		return negotiation.TransportRequest{}, fmt.Errorf("load peer: %w", err)
	}
	if peer.CreatedBy != userID {
		s.log.WithContext(ctx).Warn("transport request for foreign peer",
			zap.String("peer", peerID),
			zap.String("user", userID),
		)
		return negotiation.TransportRequest{}, huntcall_errors.ErrForbidden
	}
	router, err := s.repos.Routers.GetByCall(ctx, peer.Call)
	if err != nil {
		return negotiation.TransportRequest{}, fmt.Errorf("load router: %w", err)
	}

	tr := negotiation.TransportRequest{
		ID:              uuid.NewString(),
		CreatedServer:   s.serverID,
		RoutedServer:    router.CreatedServer,
		Call:            peer.Call,
		Peer:            peer.ID,
		CreatedBy:       userID,
		RTPCapabilities: rtpCapabilities,
	}
	if err := s.repos.Negotiation.CreateTransportRequest(ctx, &tr); err != nil {
		return negotiation.TransportRequest{}, fmt.Errorf("create transport request: %w", err)
	}
	s.changed(ctx, tr.ID, tr.RoutedServer)
	return tr, nil
}

// ownedRequest loads a group's request and checks it belongs to userID.
func (s *NegotiationService) ownedRequest(ctx context.Context, userID, transportRequestID string) (negotiation.TransportRequest, error) {
	tr, err := s.repos.Negotiation.GetTransportRequest(ctx, transportRequestID)
	if err != nil {
		return negotiation.TransportRequest{}, fmt.Errorf("load transport request: %w", err)
	}
	if tr.CreatedBy != userID {
		return negotiation.TransportRequest{}, huntcall_errors.ErrForbidden
	}
	return tr, nil
}

func (s *NegotiationService) ConnectTransport(ctx context.Context, userID, transportID, connectParameters string) (negotiation.ConnectRequest, error) {
	t, err := s.repos.Negotiation.GetTransport(ctx, transportID)
	if err != nil {
		return negotiation.ConnectRequest{}, fmt.Errorf("load transport: %w", err)
	}
	tr, err := s.ownedRequest(ctx, userID, t.TransportRequest)
	if err != nil {
		return negotiation.ConnectRequest{}, err
	}

	cr := negotiation.ConnectRequest{
		ID:                uuid.NewString(),
		TransportRequest:  tr.ID,
		CreatedServer:     s.serverID,
		RoutedServer:      t.CreatedServer,
		Call:              tr.Call,
		Peer:              tr.Peer,
		Transport:         t.ID,
		ConnectParameters: connectParameters,
	}
	err = s.repos.Negotiation.CreateConnectRequest(ctx, &cr)
	if huntcall_errors.IsDuplicate(err) {
		group, err := s.repos.Negotiation.LoadGroup(ctx, tr.ID)
		if err != nil {
			return negotiation.ConnectRequest{}, err
		}
		if existing, ok := group.ConnectRequestFor(t.ID); ok {
			return existing, nil
		}
		return negotiation.ConnectRequest{}, huntcall_errors.ErrConflict
	}
	if err != nil {
		return negotiation.ConnectRequest{}, fmt.Errorf("create connect request: %w", err)
	}
	s.changed(ctx, tr.ID, cr.RoutedServer)
	return cr, nil
}

// Produce announces a client track on a send transport.
func (s *NegotiationService) Produce(ctx context.Context, userID, transportID, trackID string, kind negotiation.Kind, rtpParameters string, paused bool) (negotiation.ProducerClient, error) {
	if !kind.Valid() {
		return negotiation.ProducerClient{}, huntcall_errors.ErrInvalidInput
	}
	t, err := s.repos.Negotiation.GetTransport(ctx, transportID)
	if err != nil {
		return negotiation.ProducerClient{}, fmt.Errorf("load transport: %w", err)
	}
	if t.Direction != negotiation.DirectionSend {
		return negotiation.ProducerClient{}, fmt.Errorf("produce on %s transport: %w", t.Direction, huntcall_errors.ErrInvalidInput)
	}
	tr, err := s.ownedRequest(ctx, userID, t.TransportRequest)
	if err != nil {
		return negotiation.ProducerClient{}, err
	}

	pc := negotiation.ProducerClient{
		ID:               uuid.NewString(),
		TransportRequest: tr.ID,
		CreatedServer:    s.serverID,
		RoutedServer:     t.CreatedServer,
		Call:             tr.Call,
		Peer:             tr.Peer,
		Transport:        t.ID,
		TrackID:          trackID,
		Kind:             kind,
		RTPParameters:    rtpParameters,
		Paused:           paused,
	}
	err = s.repos.Negotiation.CreateProducerClient(ctx, &pc)
	if huntcall_errors.IsDuplicate(err) {
		group, err := s.repos.Negotiation.LoadGroup(ctx, tr.ID)
		if err != nil {
			return negotiation.ProducerClient{}, err
		}
		for _, existing := range group.ProducerClients {
			if existing.Transport == t.ID && existing.TrackID == trackID {
				return existing, nil
			}
		}
		return negotiation.ProducerClient{}, huntcall_errors.ErrConflict
	}
	if err != nil {
		return negotiation.ProducerClient{}, fmt.Errorf("create producer: %w", err)
	}
	s.changed(ctx, tr.ID, pc.RoutedServer)
	return pc, nil
}

// AckConsumer confirms a consumer is wired up client-side. Acking twice is a no-op.
func (s *NegotiationService) AckConsumer(ctx context.Context, userID, consumerID string, paused bool) (negotiation.ConsumerAck, error) {
	c, err := s.repos.Negotiation.GetConsumer(ctx, consumerID)
	if err != nil {
		return negotiation.ConsumerAck{}, fmt.Errorf("load consumer: %w", err)
	}
	tr, err := s.ownedRequest(ctx, userID, c.TransportRequest)
	if err != nil {
		return negotiation.ConsumerAck{}, err
	}

	ack := negotiation.ConsumerAck{
		ID:               uuid.NewString(),
		TransportRequest: tr.ID,
		CreatedServer:    s.serverID,
		RoutedServer:     c.CreatedServer,
		Call:             tr.Call,
		Peer:             tr.Peer,
		Consumer:         c.ID,
		Paused:           paused,
	}
	err = s.repos.Negotiation.CreateConsumerAck(ctx, &ack)
	if huntcall_errors.IsDuplicate(err) {
		group, err := s.repos.Negotiation.LoadGroup(ctx, tr.ID)
		if err != nil {
			return negotiation.ConsumerAck{}, err
		}
		if existing, ok := group.AckFor(c.ID); ok {
			return existing, nil
		}
		return negotiation.ConsumerAck{}, huntcall_errors.ErrConflict
	}
	if err != nil {
		return negotiation.ConsumerAck{}, fmt.Errorf("create consumer ack: %w", err)
	}
	s.changed(ctx, tr.ID, ack.RoutedServer)
	return ack, nil
}

// CloseProducer removes a client track. Deleting the records is the cancel
// signal the router owner reacts to.
func (s *NegotiationService) CloseProducer(ctx context.Context, userID, producerClientID string) error {
	pc, err := s.repos.Negotiation.GetProducerClient(ctx, producerClientID)
	if errors.Is(err, huntcall_errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load producer: %w", err)
	}
	if _, err := s.ownedRequest(ctx, userID, pc.TransportRequest); err != nil {
		return err
	}
	if err := s.repos.Negotiation.DeleteProducerClient(ctx, pc.ID); err != nil {
		return fmt.Errorf("delete producer: %w", err)
	}
	s.changed(ctx, pc.TransportRequest, pc.RoutedServer)
	return nil
}

func (s *NegotiationService) CloseTransportRequest(ctx context.Context, userID, transportRequestID string) error {
	tr, err := s.ownedRequest(ctx, userID, transportRequestID)
	if errors.Is(err, huntcall_errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.deleteGroup(ctx, tr)
}

// ClosePeerGroups removes every negotiation group opened for peerID.
func (s *NegotiationService) ClosePeerGroups(ctx context.Context, peerID string) (int, error) {
	requests, err := s.repos.Negotiation.ListTransportRequestsByPeer(ctx, peerID)
	if err != nil {
		return 0, fmt.Errorf("list transport requests: %w", err)
	}
	var errs []error
	closed := 0
	for _, tr := range requests {
		if err := s.deleteGroup(ctx, tr); err != nil {
			errs = append(errs, err)
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}

func (s *NegotiationService) deleteGroup(ctx context.Context, tr negotiation.TransportRequest) error {
	if err := s.repos.Negotiation.DeleteGroup(ctx, tr.ID); err != nil {
		return fmt.Errorf("delete group %s: %w", tr.ID, err)
	}
	s.changed(ctx, tr.ID, tr.RoutedServer)
	return nil
}

// State returns the current records of a negotiation group.
func (s *NegotiationService) State(ctx context.Context, transportRequestID string) (negotiation.Group, error) {
	return s.repos.Negotiation.LoadGroup(ctx, transportRequestID)
}

func (s *NegotiationService) changed(ctx context.Context, transportRequestID, routedServer string) {
	notify(ctx, s.notifier, s.log, events.NegotiationChanged(transportRequestID, routedServer))
}
