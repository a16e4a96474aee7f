package websocket

import (
	"encoding/json"

	"huntcall/internal/commands"
	"huntcall/internal/domain/negotiation"
	huntcall_errors "huntcall/pkg/errors"
)

// Server message types
const (
	TypeJoined           = "call.joined"
	TypeRoomState        = "call.room_state"
	TypeNegotiationState = "call.negotiation_state"
	TypeResult           = "call.result"
	TypeError            = "call.error"
	TypePong             = "pong"
)

// ClientMessage represents a message from the client. Media parameters are
// passed through to the media engine untouched.
type ClientMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	Hunt string `json:"hunt,omitempty"`
	Call string `json:"call,omitempty"`
	Tab  string `json:"tab,omitempty"`

	PeerID             string `json:"peer_id,omitempty"`
	TransportRequestID string `json:"transport_request_id,omitempty"`
	TransportID        string `json:"transport_id,omitempty"`
	ProducerID         string `json:"producer_id,omitempty"`
	ConsumerID         string `json:"consumer_id,omitempty"`
	TrackID            string `json:"track_id,omitempty"`
	Kind               string `json:"kind,omitempty"`

	Muted    bool `json:"muted,omitempty"`
	Deafened bool `json:"deafened,omitempty"`
	Paused   bool `json:"paused,omitempty"`

	RTPCapabilities   json.RawMessage `json:"rtp_capabilities,omitempty"`
	RTPParameters     json.RawMessage `json:"rtp_parameters,omitempty"`
	ConnectParameters json.RawMessage `json:"connect_parameters,omitempty"`
}

// ServerMessage is everything the server pushes to a client.
type ServerMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func errorMessage(requestID string, err error) ServerMessage {
	return ServerMessage{
		Type:      TypeError,
		RequestID: requestID,
		Code:      huntcall_errors.Code(err),
		Message:   err.Error(),
		Retryable: huntcall_errors.Retryable(err),
	}
}

// toCommand maps a client message onto a bus command. peerID is the peer
// joined on this connection and fills in an omitted peer_id.
func toCommand(msg ClientMessage, userID, peerID string) (commands.Command, error) {
	if msg.PeerID == "" {
		msg.PeerID = peerID
	}
	switch msg.Type {
	case commands.TypeJoinCall:
		return commands.JoinCallCommand{
			UserID:              userID,
			Hunt:                msg.Hunt,
			Call:                msg.Call,
			Tab:                 msg.Tab,
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	case commands.TypeLeaveCall:
		return commands.LeaveCallCommand{
			UserID:              userID,
			PeerID:              msg.PeerID,
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	case commands.TypeSetPeerState:
		return commands.SetPeerStateCommand{
			UserID:              userID,
			PeerID:              msg.PeerID,
			Muted:               msg.Muted,
			Deafened:            msg.Deafened,
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	case commands.TypeRequestTransport:
		return commands.RequestTransportCommand{
			UserID:              userID,
			PeerID:              msg.PeerID,
			RTPCapabilities:     string(msg.RTPCapabilities),
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	case commands.TypeCloseTransport:
		return commands.CloseTransportCommand{
			UserID:              userID,
			TransportRequestID:  msg.TransportRequestID,
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	case commands.TypeConnectTransport:
		return commands.ConnectTransportCommand{
			UserID:              userID,
			TransportID:         msg.TransportID,
			ConnectParameters:   string(msg.ConnectParameters),
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	case commands.TypeProduce:
		return commands.ProduceCommand{
			UserID:              userID,
			TransportID:         msg.TransportID,
			TrackID:             msg.TrackID,
			Kind:                negotiation.Kind(msg.Kind),
			RTPParameters:       string(msg.RTPParameters),
			Paused:              msg.Paused,
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	case commands.TypeCloseProducer:
		return commands.CloseProducerCommand{
			UserID:              userID,
			ProducerClientID:    msg.ProducerID,
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	case commands.TypeAckConsumer:
		return commands.AckConsumerCommand{
			UserID:              userID,
			ConsumerID:          msg.ConsumerID,
			Paused:              msg.Paused,
			IdempotencyKeyValue: msg.RequestID,
		}, nil
	default:
		return nil, huntcall_errors.ErrInvalidInput
	}
}
