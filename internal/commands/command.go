package commands

import (
	"context"
	"errors"
)

var ErrHandlerNotFound = errors.New("command handler not found")

type Command interface {
	CommandType() string
	Validate() error
	IdempotencyKey() string
}

// Actor is implemented by commands issued on behalf of a user.
type Actor interface {
	ActorID() string
}

type Result struct {
	AggregateID string
	Payload     interface{}
}

type Handler interface {
	Handle(ctx context.Context, cmd Command) (Result, error)
}

type HandlerFunc func(ctx context.Context, cmd Command) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (Result, error) {
	return f(ctx, cmd)
}
