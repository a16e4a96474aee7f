package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Notifier sends change hints to every server in the fleet.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// RedisNotifier publishes one envelope per resolved channel.
type RedisNotifier struct {
	publisher Publisher
	resolver  ChannelResolver
	origin    string
	now       func() time.Time
}

func NewRedisNotifier(publisher Publisher, resolver ChannelResolver, origin string) *RedisNotifier {
	if resolver == nil {
		resolver = NewCallChannelResolver()
	}
	return &RedisNotifier{publisher: publisher, resolver: resolver, origin: origin, now: time.Now}
}

func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	channels := n.resolver.ResolveChannels(event)
	if len(channels) == 0 {
		return nil
	}

	data, err := json.Marshal(Envelope{
		EventType:  event.Type,
		Call:       event.Call,
		Server:     event.Server,
		Origin:     n.origin,
		OccurredAt: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var errs []error
	for _, channel := range channels {
		if err := n.publisher.Publish(ctx, channel, data); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}

// NopNotifier drops every event. Watchers still converge through polling.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
