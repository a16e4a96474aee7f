// Package negotiation holds the request/ack records that carry transport,
// producer and consumer setup between the signaling server of a peer and
// the server that owns the call's router. Every record carries the id of
// the TransportRequest that opened its correlation group.
package negotiation

import "time"

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func (d Direction) Valid() bool {
	return d == DirectionSend || d == DirectionRecv
}

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

// TransportRequest is written by the peer's signaling server and addressed
// to the router owner. It opens a correlation group.
type TransportRequest struct {
	ID              string    `json:"id"`
	CreatedServer   string    `json:"created_server"`
	RoutedServer    string    `json:"routed_server"`
	Call            string    `json:"call"`
	Peer            string    `json:"peer"`
	CreatedBy       string    `json:"created_by"`
	RTPCapabilities string    `json:"rtp_capabilities"`
	CreatedAt       time.Time `json:"created_at"`
}

// Transport is the router owner's reply, one per direction.
type Transport struct {
	ID               string    `json:"id"`
	TransportRequest string    `json:"transport_request"`
	CreatedServer    string    `json:"created_server"`
	Call             string    `json:"call"`
	Peer             string    `json:"peer"`
	Direction        Direction `json:"direction"`
	TransportID      string    `json:"transport_id"`
	ICEParameters    string    `json:"ice_parameters"`
	ICECandidates    string    `json:"ice_candidates"`
	DTLSParameters   string    `json:"dtls_parameters"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConnectRequest carries the client's ICE and DTLS parameters for one transport.
type ConnectRequest struct {
	ID                string    `json:"id"`
	TransportRequest  string    `json:"transport_request"`
	CreatedServer     string    `json:"created_server"`
	RoutedServer      string    `json:"routed_server"`
	Call              string    `json:"call"`
	Peer              string    `json:"peer"`
	Transport         string    `json:"transport"`
	ConnectParameters string    `json:"connect_parameters"`
	CreatedAt         time.Time `json:"created_at"`
}

type ConnectAck struct {
	ID               string    `json:"id"`
	TransportRequest string    `json:"transport_request"`
	CreatedServer    string    `json:"created_server"`
	Call             string    `json:"call"`
	Peer             string    `json:"peer"`
	Transport        string    `json:"transport"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProducerClient announces a client track on a send transport.
type ProducerClient struct {
	ID               string    `json:"id"`
	TransportRequest string    `json:"transport_request"`
	CreatedServer    string    `json:"created_server"`
	RoutedServer     string    `json:"routed_server"`
	Call             string    `json:"call"`
	Peer             string    `json:"peer"`
	Transport        string    `json:"transport"`
	TrackID          string    `json:"track_id"`
	Kind             Kind      `json:"kind"`
	RTPParameters    string    `json:"rtp_parameters"`
	Paused           bool      `json:"paused"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProducerServer is the router-side producer created for a ProducerClient.
type ProducerServer struct {
	ID               string    `json:"id"`
	TransportRequest string    `json:"transport_request"`
	CreatedServer    string    `json:"created_server"`
	Call             string    `json:"call"`
	Peer             string    `json:"peer"`
	Transport        string    `json:"transport"`
	ProducerClient   string    `json:"producer_client"`
	TrackID          string    `json:"track_id"`
	Kind             Kind      `json:"kind"`
	ProducerID       string    `json:"producer_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// Consumer is the router-side consumption of another peer's producer on a
// recv transport. Consumers start paused until acknowledged.
type Consumer struct {
	ID               string    `json:"id"`
	TransportRequest string    `json:"transport_request"`
	CreatedServer    string    `json:"created_server"`
	Call             string    `json:"call"`
	Peer             string    `json:"peer"`
	Transport        string    `json:"transport"`
	ProducerServer   string    `json:"producer_server"`
	ProducerPeer     string    `json:"producer_peer"`
	ProducerID       string    `json:"producer_id"`
	ConsumerID       string    `json:"consumer_id"`
	Kind             Kind      `json:"kind"`
	RTPParameters    string    `json:"rtp_parameters"`
	Paused           bool      `json:"paused"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConsumerAck is the peer's signaling server confirming the client wired up a consumer.
type ConsumerAck struct {
	ID               string    `json:"id"`
	TransportRequest string    `json:"transport_request"`
	CreatedServer    string    `json:"created_server"`
	RoutedServer     string    `json:"routed_server"`
	Call             string    `json:"call"`
	Peer             string    `json:"peer"`
	Consumer         string    `json:"consumer"`
	Paused           bool      `json:"paused"`
	CreatedAt        time.Time `json:"created_at"`
}
