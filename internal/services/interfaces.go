package services

import (
	"context"
	"time"

	"huntcall/internal/domain/call"
)

// Locker runs fn while holding a fleet-wide named lock.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// ServerRegistry is the heartbeat-based liveness view of the fleet.
type ServerRegistry interface {
	ID() string
	Heartbeat(ctx context.Context) error
	ListDeadServers(ctx context.Context, threshold time.Duration) ([]string, error)
	IsServerAlive(ctx context.Context, id string, threshold time.Duration) (bool, error)
	Forget(ctx context.Context, ids ...string) error
	List(ctx context.Context) ([]call.Server, error)
}

// HuntAuthorizer decides whether a user may join calls of a hunt.
type HuntAuthorizer interface {
	UserMayJoinCall(ctx context.Context, userID, hunt string) (bool, error)
}

// ObjectStore receives debug archives.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// Presigner is implemented by object stores that can hand out temporary
// download links.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}
