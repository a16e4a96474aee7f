package commands

import (
	"huntcall/internal/domain/negotiation"
	huntcall_errors "huntcall/pkg/errors"
)

const (
	TypeJoinCall         = "call.join"
	TypeLeaveCall        = "call.leave"
	TypeSetPeerState     = "call.set_state"
	TypeRequestTransport = "call.request_transport"
	TypeCloseTransport   = "call.close_transport"
	TypeConnectTransport = "call.connect_transport"
	TypeProduce          = "call.produce"
	TypeCloseProducer    = "call.close_producer"
	TypeAckConsumer      = "call.ack_consumer"
)

// JoinCallCommand joins a call from one browser tab
type JoinCallCommand struct {
	UserID              string
	Hunt                string
	Call                string
	Tab                 string
	IdempotencyKeyValue string
}

func (JoinCallCommand) CommandType() string { return TypeJoinCall }

func (c JoinCallCommand) Validate() error {
	if c.UserID == "" || c.Hunt == "" || c.Call == "" || c.Tab == "" {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c JoinCallCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c JoinCallCommand) ActorID() string { return c.UserID }

// LeaveCallCommand removes a peer
type LeaveCallCommand struct {
	UserID              string
	PeerID              string
	IdempotencyKeyValue string
}

func (LeaveCallCommand) CommandType() string { return TypeLeaveCall }

func (c LeaveCallCommand) Validate() error {
	if c.UserID == "" || c.PeerID == "" {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c LeaveCallCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c LeaveCallCommand) ActorID() string { return c.UserID }

// SetPeerStateCommand toggles mute and deafen. Deafened implies muted.
type SetPeerStateCommand struct {
	UserID              string
	PeerID              string
	Muted               bool
	Deafened            bool
	IdempotencyKeyValue string
}

func (SetPeerStateCommand) CommandType() string { return TypeSetPeerState }

func (c SetPeerStateCommand) Validate() error {
	if c.UserID == "" || c.PeerID == "" {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c SetPeerStateCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c SetPeerStateCommand) ActorID() string { return c.UserID }

// RequestTransportCommand opens a negotiation group for a peer
type RequestTransportCommand struct {
	UserID              string
	PeerID              string
	RTPCapabilities     string
	IdempotencyKeyValue string
}

func (RequestTransportCommand) CommandType() string { return TypeRequestTransport }

func (c RequestTransportCommand) Validate() error {
	if c.UserID == "" || c.PeerID == "" || c.RTPCapabilities == "" {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c RequestTransportCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c RequestTransportCommand) ActorID() string { return c.UserID }

// CloseTransportCommand tears down a whole negotiation group
type CloseTransportCommand struct {
	UserID              string
	TransportRequestID  string
	IdempotencyKeyValue string
}

func (CloseTransportCommand) CommandType() string { return TypeCloseTransport }

func (c CloseTransportCommand) Validate() error {
	if c.UserID == "" || c.TransportRequestID == "" {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c CloseTransportCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c CloseTransportCommand) ActorID() string { return c.UserID }

// ConnectTransportCommand forwards the client's ICE/DTLS parameters
type ConnectTransportCommand struct {
	UserID              string
	TransportID         string
	ConnectParameters   string
	IdempotencyKeyValue string
}

func (ConnectTransportCommand) CommandType() string { return TypeConnectTransport }

func (c ConnectTransportCommand) Validate() error {
	if c.UserID == "" || c.TransportID == "" || c.ConnectParameters == "" {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c ConnectTransportCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c ConnectTransportCommand) ActorID() string { return c.UserID }

// ProduceCommand announces a client track on a send transport
type ProduceCommand struct {
	UserID              string
	TransportID         string
	TrackID             string
	Kind                negotiation.Kind
	RTPParameters       string
	Paused              bool
	IdempotencyKeyValue string
}

func (ProduceCommand) CommandType() string { return TypeProduce }

func (c ProduceCommand) Validate() error {
	if c.UserID == "" || c.TransportID == "" || c.TrackID == "" || c.RTPParameters == "" {
		return huntcall_errors.ErrInvalidInput
	}
	if !c.Kind.Valid() {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c ProduceCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c ProduceCommand) ActorID() string { return c.UserID }

// CloseProducerCommand stops one client track
type CloseProducerCommand struct {
	UserID              string
	ProducerClientID    string
	IdempotencyKeyValue string
}

func (CloseProducerCommand) CommandType() string { return TypeCloseProducer }

func (c CloseProducerCommand) Validate() error {
	if c.UserID == "" || c.ProducerClientID == "" {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c CloseProducerCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c CloseProducerCommand) ActorID() string { return c.UserID }

// AckConsumerCommand confirms the client wired up a consumer
type AckConsumerCommand struct {
	UserID              string
	ConsumerID          string
	Paused              bool
	IdempotencyKeyValue string
}

func (AckConsumerCommand) CommandType() string { return TypeAckConsumer }

func (c AckConsumerCommand) Validate() error {
	if c.UserID == "" || c.ConsumerID == "" {
		return huntcall_errors.ErrInvalidInput
	}
	return nil
}

func (c AckConsumerCommand) IdempotencyKey() string { return c.IdempotencyKeyValue }

func (c AckConsumerCommand) ActorID() string { return c.UserID }
