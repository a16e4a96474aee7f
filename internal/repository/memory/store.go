// Package memory is an in-process implementation of the repository
// interfaces with the same uniqueness rules as the SQL schema. Several
// services sharing one Store behave like servers sharing one database.
package memory

import (
	"sort"
	"sync"
	"time"

	"huntcall/internal/domain/call"
	"huntcall/internal/domain/negotiation"
	"huntcall/internal/repository"
)

type Store struct {
	mu sync.Mutex

	rooms     map[string]call.Room
	routers   map[string]call.Router
	peers     map[string]call.Peer
	histories map[string]call.CallHistory

	transportRequests map[string]negotiation.TransportRequest
	transports        map[string]negotiation.Transport
	connectRequests   map[string]negotiation.ConnectRequest
	connectAcks       map[string]negotiation.ConnectAck
	producerClients   map[string]negotiation.ProducerClient
	producerServers   map[string]negotiation.ProducerServer
	consumers         map[string]negotiation.Consumer
	consumerAcks      map[string]negotiation.ConsumerAck

	faults map[string]error
	now    func() time.Time
}

func New() *Store {
	return &Store{
		rooms:             make(map[string]call.Room),
		routers:           make(map[string]call.Router),
		peers:             make(map[string]call.Peer),
		histories:         make(map[string]call.CallHistory),
		transportRequests: make(map[string]negotiation.TransportRequest),
		transports:        make(map[string]negotiation.Transport),
		connectRequests:   make(map[string]negotiation.ConnectRequest),
		connectAcks:       make(map[string]negotiation.ConnectAck),
		producerClients:   make(map[string]negotiation.ProducerClient),
		producerServers:   make(map[string]negotiation.ProducerServer),
		consumers:         make(map[string]negotiation.Consumer),
		consumerAcks:      make(map[string]negotiation.ConsumerAck),
		faults:            make(map[string]error),
		now:               time.Now,
	}
}

// Repositories returns every repository view over the store.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Rooms:       &rooms{s},
		Routers:     &routers{s},
		Peers:       &peers{s},
		Negotiation: &negotiations{s},
		History:     &histories{s},
	}
}

// InjectError makes the next call of op (for example "rooms.DeleteIfRoutedTo")
// fail with err.
func (s *Store) InjectError(op string, err error) {
	s.mu.Lock()
	s.faults[op] = err
	s.mu.Unlock()
}

// fault must be called with s.mu held.
func (s *Store) fault(op string) error {
	if err, ok := s.faults[op]; ok {
		delete(s.faults, op)
		return err
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func sortedValues[T any](m map[string]T, created func(T) time.Time, id func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := created(out[i]), created(out[j])
		if ci.Equal(cj) {
			return id(out[i]) < id(out[j])
		}
		return ci.Before(cj)
	})
	return out
}

func filter[T any](in []T, keep func(T) bool) []T {
	var out []T
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) stamp(t *time.Time) {
	if t.IsZero() {
		*t = s.now()
	}
}

// SetClock replaces the time source used for created and activity stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
