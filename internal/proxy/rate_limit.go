package proxy

import (
	"context"
	"fmt"

	"huntcall/internal/commands"
	"huntcall/internal/redis"
	huntcall_errors "huntcall/pkg/errors"
)

type JoinLimiter interface {
	AllowJoin(ctx context.Context, userID string) (*redis.RateLimitResult, error)
}

// JoinRateLimit caps how often one user may join calls.
type JoinRateLimit struct {
	limiter JoinLimiter
}

func NewJoinRateLimit(limiter JoinLimiter) *JoinRateLimit {
	return &JoinRateLimit{limiter: limiter}
}

func (j *JoinRateLimit) Authorize(ctx context.Context, cmd commands.Command) error {
	if j.limiter == nil || cmd.CommandType() != commands.TypeJoinCall {
		return nil
	}
	actor, ok := cmd.(commands.Actor)
	if !ok || actor.ActorID() == "" {
		return huntcall_errors.ErrUnauthorized
	}
	res, err := j.limiter.AllowJoin(ctx, actor.ActorID())
	if err != nil {
		return fmt.Errorf("join rate limit: %v: %w", err, huntcall_errors.ErrServiceUnavailable)
	}
	if !res.Allowed {
		return fmt.Errorf("retry in %s: %w", res.ResetIn, huntcall_errors.ErrRateLimited)
	}
	return nil
}
