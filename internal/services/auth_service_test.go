package services

import (
	"context"
	"testing"
	"time"

	huntcall_errors "huntcall/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAccessTokenRoundTrip issues and parses a token.
func TestAccessTokenRoundTrip(t *testing.T) {
	auth := NewAuthService("secret", time.Minute)
	token, err := auth.IssueAccessToken("alice", []string{"hunt-1", "hunt-2"}, true)
	require.NoError(t, err)

	claims, err := auth.ParseAccessToken(token)
	require.NoError(t, err)
	id := claims.Identity()
	assert.Equal(t, "alice", id.UserID)
	assert.True(t, id.Admin)
	assert.True(t, id.MemberOf("hunt-2"))
	assert.False(t, id.MemberOf("hunt-3"))
}

// TestParseAccessTokenRejects covers bad signatures, algorithms and expiry.
func TestParseAccessTokenRejects(t *testing.T) {
	auth := NewAuthService("secret", time.Minute)

	other := NewAuthService("other", time.Minute)
	token, err := other.IssueAccessToken("alice", nil, false)
	require.NoError(t, err)
	_, err = auth.ParseAccessToken(token)
	assert.ErrorIs(t, err, huntcall_errors.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{UserID: "alice"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseAccessToken(unsigned)
	assert.ErrorIs(t, err, huntcall_errors.ErrUnauthorized)

	expired := &AuthService{jwtSecret: []byte("secret"), accessTTL: -time.Minute}
	token, err = expired.IssueAccessToken("alice", nil, false)
	require.NoError(t, err)
	_, err = auth.ParseAccessToken(token)
	assert.ErrorIs(t, err, huntcall_errors.ErrUnauthorized)
}

// TestIdentityContext stores and reads the caller identity.
func TestIdentityContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: "bob"})
	user, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "bob", user)
}
