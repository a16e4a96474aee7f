package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe pattern-subscribes to patterns and calls handler for every
// message until ctx ends. ready, when non-nil, is called once Redis has
// confirmed the subscription.
func (s *Subscriber) Subscribe(ctx context.Context, patterns []string, ready func(), handler func(channel string, payload []byte)) error {
	sub := s.client.PSubscribe(ctx, patterns...)
	defer sub.Close()

	for range patterns {
		msg, err := sub.Receive(ctx)
		if err != nil {
			return err
		}
		if _, ok := msg.(*redis.Subscription); !ok {
			return fmt.Errorf("unexpected subscribe reply %T", msg)
		}
	}
	if ready != nil {
		ready()
	}

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		handler(msg.Channel, []byte(msg.Payload))
	}
}
