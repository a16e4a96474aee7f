package events

import "context"

type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, patterns []string, ready func(), handler func(channel string, payload []byte)) error
}
