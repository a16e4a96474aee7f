package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return p.err
}

// TestResolveChannels maps events onto call, server and negotiation channels.
func TestResolveChannels(t *testing.T) {
	r := NewCallChannelResolver()

	assert.Equal(t, []string{"channel:call:c1"}, r.ResolveChannels(RoomChanged("c1")))
	assert.Equal(t, []string{"channel:server:s1"}, r.ResolveChannels(ServerWork("s1")))
	assert.Equal(t,
		[]string{"channel:negotiation:tr1", "channel:server:s1"},
		r.ResolveChannels(NegotiationChanged("tr1", "s1")))
	assert.Empty(t, r.ResolveChannels(Event{Type: EventTypeRoomChanged}))
}

// TestRedisNotifierPublishesEveryChannel and joins publish errors.
func TestRedisNotifierPublishesEveryChannel(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewRedisNotifier(pub, nil, "origin")

	require.NoError(t, n.Notify(context.Background(), NegotiationChanged("tr1", "s1")))
	assert.Equal(t, []string{"channel:negotiation:tr1", "channel:server:s1"}, pub.channels)

	pub.err = errors.New("down")
	err := n.Notify(context.Background(), RoomChanged("c1"))
	assert.ErrorIs(t, err, pub.err)
}

// TestFanoutWakeCoalesces delivers one pending signal for many wake-ups.
func TestFanoutWakeCoalesces(t *testing.T) {
	f := NewFanout(nil, nil)
	ch, cancel := f.Watch(CallChannel("c1"))
	defer cancel()

	for i := 0; i < 5; i++ {
		f.Wake(CallChannel("c1"))
	}
	f.Wake(CallChannel("other"))

	select {
	case <-ch:
	default:
		t.Fatal("expected a wake-up")
	}
	select {
	case <-ch:
		t.Fatal("wake-ups should coalesce")
	default:
	}
}

// TestFanoutCancelReleasesWatcher removes the channel entry after its last watcher.
func TestFanoutCancelReleasesWatcher(t *testing.T) {
	f := NewFanout(nil, nil)
	_, cancelA := f.Watch("a")
	_, cancelB := f.Watch("a")
	assert.Equal(t, 1, f.Watching())

	cancelA()
	cancelA()
	assert.Equal(t, 1, f.Watching())
	cancelB()
	assert.Equal(t, 0, f.Watching())
}

// TestFanoutNotifyWakesResolvedChannels lets the fanout act as a local notifier.
func TestFanoutNotifyWakesResolvedChannels(t *testing.T) {
	f := NewFanout(nil, nil)
	server, cancelServer := f.Watch(ServerChannel("s1"))
	defer cancelServer()
	group, cancelGroup := f.Watch(NegotiationChannel("tr1"))
	defer cancelGroup()

	require.NoError(t, f.Notify(context.Background(), NegotiationChanged("tr1", "s1")))

	for _, ch := range []<-chan struct{}{server, group} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("watcher not woken")
		}
	}
}

type fakeSubscriber struct {
	deliver chan string
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, _ []string, ready func(), handler func(string, []byte)) error {
	if ready != nil {
		ready()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case channel := <-s.deliver:
			handler(channel, nil)
		}
	}
}

// TestFanoutRunDispatchesSubscription wakes watchers for messages from the subscription.
func TestFanoutRunDispatchesSubscription(t *testing.T) {
	sub := &fakeSubscriber{deliver: make(chan string)}
	f := NewFanout(sub, nil)
	ch, cancel := f.Watch(CallChannel("c1"))
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, func() { close(ready) }) }()
	<-ready

	sub.deliver <- CallChannel("c1")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("watcher not woken")
	}

	stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}
