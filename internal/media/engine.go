package media

import (
	"context"
	"errors"
)

var (
	ErrRouterNotFound        = errors.New("media router not found")
	ErrTransportNotFound     = errors.New("media transport not found")
	ErrProducerNotFound      = errors.New("media producer not found")
	ErrConsumerNotFound      = errors.New("media consumer not found")
	ErrTransportNotConnected = errors.New("media transport not connected")
	ErrInvalidParameters     = errors.New("invalid media parameters")
)

// TransportInfo carries the local parameters a client needs to connect.
// Every parameter field is an opaque JSON document.
type TransportInfo struct {
	ID             string
	ICEParameters  string
	ICECandidates  string
	DTLSParameters string
}

type ConsumerInfo struct {
	ID            string
	Kind          string
	RTPParameters string
}

// Engine is the media routing backend owned by one server. Closing a
// parent closes its children: routers own transports, transports own the
// producers and consumers created on them, and producers own the consumers
// reading from them.
type Engine interface {
	CreateRouter(ctx context.Context, id string) error
	CloseRouter(id string) error
	RouterIDs() []string

	CreateTransport(ctx context.Context, routerID string) (TransportInfo, error)
	ConnectTransport(ctx context.Context, transportID, connectParameters string) error
	CloseTransport(id string) error
	TransportIDs() []string

	Produce(ctx context.Context, transportID, kind, rtpParameters string) (string, error)
	CloseProducer(id string) error
	ProducerIDs() []string

	Consume(ctx context.Context, transportID, producerID, rtpCapabilities string) (ConsumerInfo, error)
	ResumeConsumer(id string) error
	CloseConsumer(id string) error
	ConsumerIDs() []string

	Close() error
}
