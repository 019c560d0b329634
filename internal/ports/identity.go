package ports

// Package ports declares what the access gateway needs from the outside world:
// an identity provider, a session store and a profile source. Adapters under
// internal/adapters implement them; internal/service consumes them.

import (
	"context"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

// BeginInput carries the post-login target for a new login flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput carries the callback parameters plus the nonce issued by Begin.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// AuthProvider runs the login flow against the identity provider. Password,
// OTP and social logins all finish at the same provider.
type AuthProvider interface {
	// Begin returns the provider URL to send the browser to, with the state and
	// nonce the callback must echo.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange trades the callback code for a verified identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// RoleMapper assigns exactly one portal role to a verified identity. It never
// returns a role outside the known set.
type RoleMapper interface {
	Map(id domainauth.Identity) domainauth.Role
}
