// Package mediatest provides an in-memory media.Engine for tests.
package mediatest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"huntcall/internal/media"
)

// Engine mimics the cascade rules of a real engine without any network
// activity. Transports connect synchronously.
type Engine struct {
	mu sync.Mutex

	seq        int
	routers    map[string]bool
	transports map[string]*transport
	producers  map[string]*producer
	consumers  map[string]*consumer
	faults     map[string]error
}

type transport struct {
	router    string
	connected bool
}

type producer struct {
	transport string
	kind      string
}

type consumer struct {
	transport string
	producer  string
	resumed   bool
}

func New() *Engine {
	return &Engine{
		routers:    make(map[string]bool),
		transports: make(map[string]*transport),
		producers:  make(map[string]*producer),
		consumers:  make(map[string]*consumer),
		faults:     make(map[string]error),
	}
}

// Fail makes the next call of op (e.g. "Produce") return err.
func (e *Engine) Fail(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[op] = err
}

func (e *Engine) fault(op string) error {
	if err, ok := e.faults[op]; ok {
		delete(e.faults, op)
		return err
	}
	return nil
}

func (e *Engine) nextID(prefix string) string {
	e.seq++
	return fmt.Sprintf("%s-%d", prefix, e.seq)
}

func (e *Engine) CreateRouter(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fault("CreateRouter"); err != nil {
		return err
	}
	e.routers[id] = true
	return nil
}

func (e *Engine) CloseRouter(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.routers[id] {
		return media.ErrRouterNotFound
	}
	for tid, t := range e.transports {
		if t.router == id {
			e.closeTransport(tid)
		}
	}
	delete(e.routers, id)
	return nil
}

func (e *Engine) RouterIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return keys(e.routers)
}

func (e *Engine) CreateTransport(_ context.Context, routerID string) (media.TransportInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fault("CreateTransport"); err != nil {
		return media.TransportInfo{}, err
	}
	if !e.routers[routerID] {
		return media.TransportInfo{}, media.ErrRouterNotFound
	}
	id := e.nextID("transport")
	e.transports[id] = &transport{router: routerID}
	return media.TransportInfo{
		ID:             id,
		ICEParameters:  `{"usernameFragment":"` + id + `","password":"pw"}`,
		ICECandidates:  `[]`,
		DTLSParameters: `{"role":"auto","fingerprints":[]}`,
	}, nil
}

func (e *Engine) ConnectTransport(_ context.Context, transportID, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fault("ConnectTransport"); err != nil {
		return err
	}
	t, ok := e.transports[transportID]
	if !ok {
		return media.ErrTransportNotFound
	}
	t.connected = true
	return nil
}

func (e *Engine) CloseTransport(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.transports[id]; !ok {
		return media.ErrTransportNotFound
	}
	e.closeTransport(id)
	return nil
}

func (e *Engine) closeTransport(id string) {
	for pid, p := range e.producers {
		if p.transport == id {
			e.closeProducer(pid)
		}
	}
	for cid, c := range e.consumers {
		if c.transport == id {
			delete(e.consumers, cid)
		}
	}
	delete(e.transports, id)
}

func (e *Engine) TransportIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return keys(e.transports)
}

func (e *Engine) Produce(_ context.Context, transportID, kind, _ string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fault("Produce"); err != nil {
		return "", err
	}
	t, ok := e.transports[transportID]
	if !ok {
		return "", media.ErrTransportNotFound
	}
	if !t.connected {
		return "", media.ErrTransportNotConnected
	}
	id := e.nextID("producer")
	e.producers[id] = &producer{transport: transportID, kind: kind}
	return id, nil
}

func (e *Engine) CloseProducer(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.producers[id]; !ok {
		return media.ErrProducerNotFound
	}
	e.closeProducer(id)
	return nil
}

func (e *Engine) closeProducer(id string) {
	for cid, c := range e.consumers {
		if c.producer == id {
			delete(e.consumers, cid)
		}
	}
	delete(e.producers, id)
}

func (e *Engine) ProducerIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return keys(e.producers)
}

func (e *Engine) Consume(_ context.Context, transportID, producerID, _ string) (media.ConsumerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fault("Consume"); err != nil {
		return media.ConsumerInfo{}, err
	}
	if _, ok := e.transports[transportID]; !ok {
		return media.ConsumerInfo{}, media.ErrTransportNotFound
	}
	p, ok := e.producers[producerID]
	if !ok {
		return media.ConsumerInfo{}, media.ErrProducerNotFound
	}
	id := e.nextID("consumer")
	e.consumers[id] = &consumer{transport: transportID, producer: producerID}
	return media.ConsumerInfo{
		ID:            id,
		Kind:          p.kind,
		RTPParameters: `{"producerId":"` + producerID + `"}`,
	}, nil
}

func (e *Engine) ResumeConsumer(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.consumers[id]
	if !ok {
		return media.ErrConsumerNotFound
	}
	c.resumed = true
	return nil
}

// Resumed reports whether consumer id has been resumed.
func (e *Engine) Resumed(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.consumers[id]
	return ok && c.resumed
}

func (e *Engine) CloseConsumer(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.consumers[id]; !ok {
		return media.ErrConsumerNotFound
	}
	delete(e.consumers, id)
	return nil
}

func (e *Engine) ConsumerIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return keys(e.consumers)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routers = make(map[string]bool)
	e.transports = make(map[string]*transport)
	e.producers = make(map[string]*producer)
	e.consumers = make(map[string]*consumer)
	return nil
}

var _ media.Engine = (*Engine)(nil)

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
