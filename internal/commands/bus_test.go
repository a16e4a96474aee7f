package commands

import (
	"context"
	"errors"
	"testing"

	huntcall_errors "huntcall/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBusDispatchesRegisteredHandler routes by command type.
func TestBusDispatchesRegisteredHandler(t *testing.T) {
	bus := NewBus()
	bus.Register(TypeJoinCall, HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		c := cmd.(JoinCallCommand)
		return Result{AggregateID: c.Call}, nil
	}))

	res, err := bus.Execute(context.Background(), JoinCallCommand{UserID: "u", Hunt: "h", Call: "c", Tab: "t"})
	require.NoError(t, err)
	assert.Equal(t, "c", res.AggregateID)
	assert.True(t, bus.Registered(TypeJoinCall))
	assert.False(t, bus.Registered(TypeLeaveCall))
}

// TestBusUnknownCommand reports a missing handler.
func TestBusUnknownCommand(t *testing.T) {
	_, err := NewBus().Execute(context.Background(), LeaveCallCommand{UserID: "u", PeerID: "p"})
	assert.ErrorIs(t, err, ErrHandlerNotFound)
}

// TestBusValidatesBeforeProxies never consults proxies for invalid commands.
func TestBusValidatesBeforeProxies(t *testing.T) {
	consulted := false
	bus := NewBus(ProxyFunc(func(ctx context.Context, cmd Command) error {
		consulted = true
		return nil
	}))
	bus.Register(TypeJoinCall, HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		return Result{}, nil
	}))

	_, err := bus.Execute(context.Background(), JoinCallCommand{UserID: "u"})
	assert.ErrorIs(t, err, huntcall_errors.ErrInvalidInput)
	assert.False(t, consulted)
}

// TestBusProxyVeto stops the command before the handler.
func TestBusProxyVeto(t *testing.T) {
	veto := errors.New("no")
	handled := false
	bus := NewBus()
	bus.Use(nil, ProxyFunc(func(ctx context.Context, cmd Command) error { return veto }))
	bus.Register(TypeLeaveCall, HandlerFunc(func(ctx context.Context, cmd Command) (Result, error) {
		handled = true
		return Result{}, nil
	}))

	_, err := bus.Execute(context.Background(), LeaveCallCommand{UserID: "u", PeerID: "p"})
	assert.ErrorIs(t, err, veto)
	assert.False(t, handled)
}

// TestProduceCommandValidate requires a known media kind.
func TestProduceCommandValidate(t *testing.T) {
	ok := ProduceCommand{UserID: "u", TransportID: "t", TrackID: "tr", Kind: "audio", RTPParameters: "{}"}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Kind = "screen"
	assert.ErrorIs(t, bad.Validate(), huntcall_errors.ErrInvalidInput)
}
