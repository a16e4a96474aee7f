package events

import (
	"context"
	"sync"

	"huntcall/pkg/logger"

	"go.uber.org/zap"
)

// Fanout holds one pattern subscription per process and wakes local
// watchers by channel name. Wake-ups coalesce: a watcher that has not yet
// drained its channel sees one signal for any number of notifications.
type Fanout struct {
	subscriber Subscriber
	resolver   ChannelResolver
	log        *logger.Logger

	mu       sync.Mutex
	watchers map[string]map[*watcher]struct{}
}

type watcher struct {
	ch chan struct{}
}

func NewFanout(subscriber Subscriber, log *logger.Logger) *Fanout {
	if log == nil {
		log = logger.NewNop()
	}
	return &Fanout{
		subscriber: subscriber,
		resolver:   NewCallChannelResolver(),
		log:        log,
		watchers:   make(map[string]map[*watcher]struct{}),
	}
}

// Run blocks until ctx is cancelled or the subscription fails. ready is
// called once the subscription is live and may be nil.
func (f *Fanout) Run(ctx context.Context, ready func()) error {
	if f.subscriber == nil {
		if ready != nil {
			ready()
		}
		<-ctx.Done()
		return ctx.Err()
	}
	err := f.subscriber.Subscribe(ctx, []string{ChannelPattern}, ready, func(channel string, _ []byte) {
		f.Wake(channel)
	})
	if err != nil && ctx.Err() == nil {
		f.log.Logger.Error("fanout subscription ended", zap.Error(err))
		return err
	}
	return ctx.Err()
}

// Watch registers interest in channel. cancel must be called to release it.
func (f *Fanout) Watch(channel string) (<-chan struct{}, func()) {
	w := &watcher{ch: make(chan struct{}, 1)}

	f.mu.Lock()
	set, ok := f.watchers[channel]
	if !ok {
		set = make(map[*watcher]struct{})
		f.watchers[channel] = set
	}
	set[w] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return w.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.watchers[channel], w)
			if len(f.watchers[channel]) == 0 {
				delete(f.watchers, channel)
			}
		})
	}
}

// Wake signals every watcher of channel without blocking.
func (f *Fanout) Wake(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for w := range f.watchers[channel] {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

// Notify wakes local watchers directly. It lets a Fanout stand in as the
// Notifier of a single-process deployment or a test.
func (f *Fanout) Notify(_ context.Context, event Event) error {
	for _, channel := range f.resolver.ResolveChannels(event) {
		f.Wake(channel)
	}
	return nil
}

// Watching reports the number of channels with at least one watcher.
func (f *Fanout) Watching() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}
