package proxy

import (
	"context"

	"huntcall/internal/services"
)

// ClaimsAuthorizer admits a user to a hunt's calls when the hunt is listed
// in the token claims carried by ctx. Admins may join any hunt.
type ClaimsAuthorizer struct{}

func NewClaimsAuthorizer() ClaimsAuthorizer {
	return ClaimsAuthorizer{}
}

func (ClaimsAuthorizer) UserMayJoinCall(ctx context.Context, userID, hunt string) (bool, error) {
	id, ok := services.IdentityFromContext(ctx)
	if !ok || id.UserID != userID {
		return false, nil
	}
	return id.Admin || id.MemberOf(hunt), nil
}

var _ services.HuntAuthorizer = ClaimsAuthorizer{}
