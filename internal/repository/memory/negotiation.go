package memory

import (
	"context"
	"sort"
	"time"

	"huntcall/internal/domain/negotiation"
	huntcall_errors "huntcall/pkg/errors"
)

type negotiations struct{ s *Store }

func (r *negotiations) CreateTransportRequest(_ context.Context, tr *negotiation.TransportRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("negotiation.CreateTransportRequest"); err != nil {
		return err
	}
	if _, ok := r.s.transportRequests[tr.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	r.s.stamp(&tr.CreatedAt)
	r.s.transportRequests[tr.ID] = *tr
	return nil
}

func (r *negotiations) GetTransportRequest(_ context.Context, id string) (negotiation.TransportRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tr, ok := r.s.transportRequests[id]
	if !ok {
		return negotiation.TransportRequest{}, huntcall_errors.ErrNotFound
	}
	return tr, nil
}

func (r *negotiations) ListTransportRequestsByPeer(_ context.Context, peerID string) ([]negotiation.TransportRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return filter(r.s.sortedRequests(), func(tr negotiation.TransportRequest) bool { return tr.Peer == peerID }), nil
}

func (r *negotiations) ListTransportRequests(_ context.Context) ([]negotiation.TransportRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedRequests(), nil
}

func (r *negotiations) CreateTransport(_ context.Context, t *negotiation.Transport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("negotiation.CreateTransport"); err != nil {
		return err
	}
	if _, ok := r.s.transports[t.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.transports {
		if existing.TransportRequest == t.TransportRequest && existing.Direction == t.Direction {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&t.CreatedAt)
	r.s.transports[t.ID] = *t
	return nil
}

func (r *negotiations) GetTransport(_ context.Context, id string) (negotiation.Transport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transports[id]
	if !ok {
		return negotiation.Transport{}, huntcall_errors.ErrNotFound
	}
	return t, nil
}

func (r *negotiations) CreateConnectRequest(_ context.Context, c *negotiation.ConnectRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.connectRequests[c.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.connectRequests {
		if existing.Transport == c.Transport {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&c.CreatedAt)
	r.s.connectRequests[c.ID] = *c
	return nil
}

func (r *negotiations) CreateConnectAck(_ context.Context, a *negotiation.ConnectAck) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.connectAcks[a.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.connectAcks {
		if existing.Transport == a.Transport {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&a.CreatedAt)
	r.s.connectAcks[a.ID] = *a
	return nil
}

func (r *negotiations) CreateProducerClient(_ context.Context, p *negotiation.ProducerClient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.producerClients[p.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.producerClients {
		if existing.Transport == p.Transport && existing.TrackID == p.TrackID {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&p.CreatedAt)
	r.s.producerClients[p.ID] = *p
	return nil
}

func (r *negotiations) GetProducerClient(_ context.Context, id string) (negotiation.ProducerClient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.producerClients[id]
	if !ok {
		return negotiation.ProducerClient{}, huntcall_errors.ErrNotFound
	}
	return p, nil
}

func (r *negotiations) DeleteProducerClient(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for psID, ps := range r.s.producerServers {
		if ps.ProducerClient == id {
			r.s.deleteConsumersOf(psID)
			delete(r.s.producerServers, psID)
		}
	}
	delete(r.s.producerClients, id)
	return nil
}

func (r *negotiations) CreateProducerServer(_ context.Context, p *negotiation.ProducerServer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.producerServers[p.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.producerServers {
		if existing.ProducerClient == p.ProducerClient {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&p.CreatedAt)
	r.s.producerServers[p.ID] = *p
	return nil
}

func (r *negotiations) ListProducerServersByCall(_ context.Context, callID string) ([]negotiation.ProducerServer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.producerServers,
		func(p negotiation.ProducerServer) time.Time { return p.CreatedAt },
		func(p negotiation.ProducerServer) string { return p.ID })
	return filter(all, func(p negotiation.ProducerServer) bool { return p.Call == callID }), nil
}

func (r *negotiations) CreateConsumer(_ context.Context, c *negotiation.Consumer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.consumers[c.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.consumers {
		if existing.Transport == c.Transport && existing.ProducerServer == c.ProducerServer {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&c.CreatedAt)
	r.s.consumers[c.ID] = *c
	return nil
}

func (r *negotiations) GetConsumer(_ context.Context, id string) (negotiation.Consumer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.consumers[id]
	if !ok {
		return negotiation.Consumer{}, huntcall_errors.ErrNotFound
	}
	return c, nil
}

func (r *negotiations) CreateConsumerAck(_ context.Context, a *negotiation.ConsumerAck) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.consumerAcks[a.ID]; ok {
		return huntcall_errors.ErrAlreadyExists
	}
	for _, existing := range r.s.consumerAcks {
		if existing.Consumer == a.Consumer {
			return huntcall_errors.ErrAlreadyExists
		}
	}
	r.s.stamp(&a.CreatedAt)
	r.s.consumerAcks[a.ID] = *a
	return nil
}

func (r *negotiations) LoadGroup(_ context.Context, transportRequestID string) (negotiation.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tr, ok := r.s.transportRequests[transportRequestID]
	if !ok {
		return negotiation.Group{}, huntcall_errors.ErrNotFound
	}
	return r.s.group(tr), nil
}

func (r *negotiations) LoadGroupsRoutedTo(_ context.Context, serverID string) ([]negotiation.Group, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("negotiation.LoadGroupsRoutedTo"); err != nil {
		return nil, err
	}
	var out []negotiation.Group
	for _, tr := range r.s.sortedRequests() {
		if tr.RoutedServer == serverID {
			out = append(out, r.s.group(tr))
		}
	}
	return out, nil
}

func (r *negotiations) DeleteGroup(_ context.Context, transportRequestID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("negotiation.DeleteGroup"); err != nil {
		return err
	}
	r.s.deleteGroup(transportRequestID)
	return nil
}

func (r *negotiations) DeleteGroupsByServers(_ context.Context, servers []string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("negotiation.DeleteGroupsByServers"); err != nil {
		return nil, err
	}
	var ids []string
	for _, tr := range r.s.sortedRequests() {
		if contains(servers, tr.CreatedServer) || contains(servers, tr.RoutedServer) {
			r.s.deleteGroup(tr.ID)
			ids = append(ids, tr.ID)
		}
	}
	return ids, nil
}

// The helpers below must be called with s.mu held.

func (s *Store) sortedRequests() []negotiation.TransportRequest {
	return sortedValues(s.transportRequests,
		func(tr negotiation.TransportRequest) time.Time { return tr.CreatedAt },
		func(tr negotiation.TransportRequest) string { return tr.ID })
}

func (s *Store) group(tr negotiation.TransportRequest) negotiation.Group {
	g := negotiation.Group{Request: tr}
	for _, t := range s.transports {
		if t.TransportRequest == tr.ID {
			g.Transports = append(g.Transports, t)
		}
	}
	for _, c := range s.connectRequests {
		if c.TransportRequest == tr.ID {
			g.ConnectRequests = append(g.ConnectRequests, c)
		}
	}
	for _, a := range s.connectAcks {
		if a.TransportRequest == tr.ID {
			g.ConnectAcks = append(g.ConnectAcks, a)
		}
	}
	for _, p := range s.producerClients {
		if p.TransportRequest == tr.ID {
			g.ProducerClients = append(g.ProducerClients, p)
		}
	}
	for _, p := range s.producerServers {
		if p.TransportRequest == tr.ID {
			g.ProducerServers = append(g.ProducerServers, p)
		}
	}
	for _, c := range s.consumers {
		if c.TransportRequest == tr.ID {
			g.Consumers = append(g.Consumers, c)
		}
	}
	for _, a := range s.consumerAcks {
		if a.TransportRequest == tr.ID {
			g.ConsumerAcks = append(g.ConsumerAcks, a)
		}
	}
	byCreated(g.Transports, func(t negotiation.Transport) (time.Time, string) { return t.CreatedAt, t.ID })
	byCreated(g.ConnectRequests, func(c negotiation.ConnectRequest) (time.Time, string) { return c.CreatedAt, c.ID })
	byCreated(g.ConnectAcks, func(a negotiation.ConnectAck) (time.Time, string) { return a.CreatedAt, a.ID })
	byCreated(g.ProducerClients, func(p negotiation.ProducerClient) (time.Time, string) { return p.CreatedAt, p.ID })
	byCreated(g.ProducerServers, func(p negotiation.ProducerServer) (time.Time, string) { return p.CreatedAt, p.ID })
	byCreated(g.Consumers, func(c negotiation.Consumer) (time.Time, string) { return c.CreatedAt, c.ID })
	byCreated(g.ConsumerAcks, func(a negotiation.ConsumerAck) (time.Time, string) { return a.CreatedAt, a.ID })
	return g
}

func byCreated[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti.Equal(tj) {
			return idi < idj
		}
		return ti.Before(tj)
	})
}

func (s *Store) deleteConsumersOf(producerServer string) {
	for id, c := range s.consumers {
		if c.ProducerServer == producerServer {
			for ackID, a := range s.consumerAcks {
				if a.Consumer == id {
					delete(s.consumerAcks, ackID)
				}
			}
			delete(s.consumers, id)
		}
	}
}

func (s *Store) deleteGroup(id string) {
	for psID, ps := range s.producerServers {
		if ps.TransportRequest == id {
			s.deleteConsumersOf(psID)
		}
	}
	for k, v := range s.consumerAcks {
		if v.TransportRequest == id {
			delete(s.consumerAcks, k)
		}
	}
	for k, v := range s.consumers {
		if v.TransportRequest == id {
			delete(s.consumers, k)
		}
	}
	for k, v := range s.producerServers {
		if v.TransportRequest == id {
			delete(s.producerServers, k)
		}
	}
	for k, v := range s.producerClients {
		if v.TransportRequest == id {
			delete(s.producerClients, k)
		}
	}
	for k, v := range s.connectAcks {
		if v.TransportRequest == id {
			delete(s.connectAcks, k)
		}
	}
	for k, v := range s.connectRequests {
		if v.TransportRequest == id {
			delete(s.connectRequests, k)
		}
	}
	for k, v := range s.transports {
		if v.TransportRequest == id {
			delete(s.transports, k)
		}
	}
	delete(s.transportRequests, id)
}
