package devauth

// Package devauth signs everyone in as one configured identity, for AUTH_MODE=mock.
// The login flow still round-trips through /auth/callback so state and nonce
// handling is exercised the same way as against a real IdP.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/ports"
)

const (
	callbackPath   = "/auth/callback"
	devCode        = "dev"
	devIssuer      = "portal-access-dev"
	pendingTimeout = 10 * time.Minute
)

// Config is the identity every login resolves to. UserID and Email are required.
type Config struct {
	UserID          string
	Email           string
	FirstName       string
	LastName        string
	Role            string
	ClinicID        string
	SessionDuration time.Duration // 8h when zero
}

type pendingLogin struct {
	nonce  string
	issued time.Time
}

// Provider is an in-process stand-in for the IdP. Each state it hands out can
// be exchanged once, with the nonce issued alongside it.
type Provider struct {
	identity   domainauth.Identity
	lifetime   time.Duration
	signingKey []byte
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]pendingLogin
}

func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	lifetime := cfg.SessionDuration
	if lifetime <= 0 {
		lifetime = 8 * time.Hour
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("dev auth: signing key: %w", err)
	}
	return &Provider{
		identity: domainauth.Identity{
			UserID:    cfg.UserID,
			Email:     cfg.Email,
			FirstName: cfg.FirstName,
			LastName:  cfg.LastName,
			RawRole:   cfg.Role,
			ClinicID:  cfg.ClinicID,
		},
		lifetime:   lifetime,
		signingKey: key,
		now:        time.Now,
		pending:    map[string]pendingLogin{},
	}, nil
}

// Begin skips the IdP and points the browser straight at the local callback.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := randomToken()
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	now := p.now()
	p.mu.Lock()
	for s, pl := range p.pending {
		if now.Sub(pl.issued) > pendingTimeout {
			delete(p.pending, s)
		}
	}
	p.pending[state] = pendingLogin{nonce: nonce, issued: now}
	p.mu.Unlock()

	q := url.Values{"code": {devCode}, "state": {state}}
	return callbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange consumes the pending login for in.State and returns the configured
// identity with a freshly signed HS256 token as its credential.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code != devCode {
		return domainauth.Identity{}, errors.New("dev auth: unknown authorization code")
	}
	now := p.now()

	p.mu.Lock()
	pl, ok := p.pending[in.State]
	delete(p.pending, in.State)
	p.mu.Unlock()
	switch {
	case !ok || now.Sub(pl.issued) > pendingTimeout:
		return domainauth.Identity{}, errors.New("dev auth: unknown or expired state")
	case pl.nonce != in.Nonce:
		return domainauth.Identity{}, errors.New("dev auth: nonce mismatch")
	}

	id := p.identity
	id.ExpiresAt = now.Add(p.lifetime)
	claims := jwt.MapClaims{
		"iss":   devIssuer,
		"sub":   id.UserID,
		"email": id.Email,
		"role":  id.RawRole,
		"nonce": in.Nonce,
		"iat":   now.Unix(),
		"exp":   id.ExpiresAt.Unix(),
	}
	if id.ClinicID != "" {
		claims["clinic_id"] = id.ClinicID
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("sign dev token: %w", err)
	}
	id.AccessToken = tok
	return id, nil
}

// randomToken returns 24 URL-safe characters from 18 random bytes.
func randomToken() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
