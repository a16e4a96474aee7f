package proxy

import (
	"context"
	"fmt"

	"huntcall/internal/commands"
	"huntcall/internal/redis"
	huntcall_errors "huntcall/pkg/errors"
)

// FlagReader reports whether a named feature flag is set.
type FlagReader interface {
	Active(ctx context.Context, name string) (bool, error)
}

// AccessControl blocks joins and media negotiation while the
// disable.webrtc flag is set. Leaving and closing are always allowed.
type AccessControl struct {
	flags FlagReader
}

func NewAccessControl(flags FlagReader) *AccessControl {
	return &AccessControl{flags: flags}
}

func (a *AccessControl) Authorize(ctx context.Context, cmd commands.Command) error {
	if a.flags == nil || !blockedWhileDisabled(cmd.CommandType()) {
		return nil
	}
	disabled, err := a.flags.Active(ctx, redis.FlagDisableWebRTC)
	if err != nil {
		return fmt.Errorf("read %s flag: %v: %w", redis.FlagDisableWebRTC, err, huntcall_errors.ErrServiceUnavailable)
	}
	if disabled {
		return huntcall_errors.ErrWebRTCDisabled
	}
	return nil
}

func blockedWhileDisabled(commandType string) bool {
	switch commandType {
	case commands.TypeJoinCall, commands.TypeRequestTransport, commands.TypeProduce:
		return true
	}
	return false
}
