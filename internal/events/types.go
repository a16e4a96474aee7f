package events

// Event types follow the format: domain.action
const (
	EventTypeRoomChanged        = "call.room_changed"
	EventTypePeersChanged       = "call.peers_changed"
	EventTypeServerWork         = "server.work"
	EventTypeNegotiationChanged = "negotiation.changed"
)

// Event is a change hint. Consumers re-read the store to learn what changed.
type Event struct {
	Type             string
	Call             string
	Server           string
	TransportRequest string
}

func RoomChanged(call string) Event {
	return Event{Type: EventTypeRoomChanged, Call: call}
}

func PeersChanged(call string) Event {
	return Event{Type: EventTypePeersChanged, Call: call}
}

// ServerWork wakes the router worker on server.
func ServerWork(server string) Event {
	return Event{Type: EventTypeServerWork, Server: server}
}

// NegotiationChanged wakes watchers of a transport request group and, when
// server is set, the router worker that owns it.
func NegotiationChanged(transportRequest, server string) Event {
	return Event{Type: EventTypeNegotiationChanged, TransportRequest: transportRequest, Server: server}
}
