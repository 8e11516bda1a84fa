package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/shared"
)

// Gateway exchanges credentials with the store API.
type Gateway interface {
	Login(ctx context.Context, username, password string) (apiclient.LoginResult, error)
}

// Credentials is an accepted login.
type Credentials struct {
	Identity access.Identity
	// ExpiresAt is the token's exp claim, zero when the token carries none.
	ExpiresAt time.Time
}

// Service wraps authentication business rules.
type Service struct {
	gateway Gateway
}

// NewService constructs a new Service.
func NewService(gateway Gateway) *Service {
	return &Service{gateway: gateway}
}

// Authenticate exchanges username and password for an identity. A profile
// whose role is not part of the hierarchy is refused.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Credentials, error) {
	res, err := s.gateway.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, apiclient.ErrAuthRejected) {
			return Credentials{}, shared.ErrInvalidCredentials
		}
		return Credentials{}, err
	}
	role, err := access.ParseRole(string(res.User.Role))
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: login for %q: %w", res.User.Username, err)
	}
	res.User.Role = role
	return Credentials{
		Identity:  access.Identity{Token: res.AccessToken, User: res.User},
		ExpiresAt: TokenExpiry(res.AccessToken),
	}, nil
}

// TokenExpiry reads the exp claim of a JWT without verifying it. The API owns
// the signing key; the claim is only used to bound the local session. Opaque
// or malformed tokens yield the zero time.
func TokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
