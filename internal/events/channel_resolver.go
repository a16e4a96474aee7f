package events

import "fmt"

const ChannelPattern = "channel:*"

func CallChannel(call string) string {
	return fmt.Sprintf("channel:call:%s", call)
}

func ServerChannel(server string) string {
	return fmt.Sprintf("channel:server:%s", server)
}

func NegotiationChannel(transportRequest string) string {
	return fmt.Sprintf("channel:negotiation:%s", transportRequest)
}

// ChannelResolver determines which channels an event is published to
type ChannelResolver interface {
	ResolveChannels(event Event) []string
}

type CallChannelResolver struct{}

func NewCallChannelResolver() *CallChannelResolver {
	return &CallChannelResolver{}
}

func (r *CallChannelResolver) ResolveChannels(event Event) []string {
	var channels []string

	switch event.Type {
	case EventTypeRoomChanged, EventTypePeersChanged:
		if event.Call != "" {
			channels = append(channels, CallChannel(event.Call))
		}
	case EventTypeNegotiationChanged:
		if event.TransportRequest != "" {
			channels = append(channels, NegotiationChannel(event.TransportRequest))
		}
	}
	if event.Server != "" {
		channels = append(channels, ServerChannel(event.Server))
	}

	return channels
}
