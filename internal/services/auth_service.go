package services

import (
	"context"
	"time"

	huntcall_errors "huntcall/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService verifies the signed identity tokens issued by the hunt site.
// Passwords and sessions live there; this service only checks signatures.
type AuthService struct {
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(secret string, accessTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &AuthService{jwtSecret: []byte(secret), accessTTL: accessTTL}
}

type AccessClaims struct {
	UserID string   `json:"sub"`
	Hunts  []string `json:"hunts,omitempty"`
	Admin  bool     `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller carried in request contexts.
type Identity struct {
	UserID string
	Hunts  []string
	Admin  bool
}

func (i Identity) MemberOf(hunt string) bool {
	for _, h := range i.Hunts {
		if h == hunt {
			return true
		}
	}
	return false
}

func (c AccessClaims) Identity() Identity {
	return Identity{UserID: c.UserID, Hunts: c.Hunts, Admin: c.Admin}
}

func (s *AuthService) IssueAccessToken(userID string, hunts []string, admin bool) (string, error) {
	if userID == "" {
		return "", huntcall_errors.ErrInvalidInput
	}
	now := time.Now()
	claims := AccessClaims{
		UserID: userID,
		Hunts:  hunts,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, huntcall_errors.ErrUnauthorized
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, huntcall_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, huntcall_errors.ErrUnauthorized
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return AccessClaims{}, huntcall_errors.ErrUnauthorized
	}

	return *claims, nil
}

type ctxKey string

var identityKey ctxKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == "" {
		return "", false
	}
	return id.UserID, true
}
