package proxy

import (
	"context"
	"fmt"

	"huntcall/internal/commands"
	"huntcall/internal/services"
	huntcall_errors "huntcall/pkg/errors"
)

// HuntMembership rejects joins to hunts the caller does not belong to
// before any later proxy records the attempt.
type HuntMembership struct {
	authorizer services.HuntAuthorizer
}

func NewHuntMembership(authorizer services.HuntAuthorizer) *HuntMembership {
	return &HuntMembership{authorizer: authorizer}
}

func (h *HuntMembership) Authorize(ctx context.Context, cmd commands.Command) error {
	join, ok := cmd.(commands.JoinCallCommand)
	if !ok || h.authorizer == nil {
		return nil
	}
	allowed, err := h.authorizer.UserMayJoinCall(ctx, join.UserID, join.Hunt)
	if err != nil {
		return fmt.Errorf("hunt membership: %w", err)
	}
	if !allowed {
		return huntcall_errors.ErrUnauthorized
	}
	return nil
}
