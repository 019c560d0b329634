package oidc

// Package oidc provides the OIDC/OAuth2 login adapter for portal identities
// (password, OTP and social logins all complete at the same IdP).

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/ports"
	"golang.org/x/oauth2"
)

// Provider implements the AuthProvider interface using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	claims     ClaimNames

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ClaimNames names the non-standard claims the portal reads from the IdP.
type ClaimNames struct {
	Role       string // default "role"
	Clinic     string // default "clinic_id"
	RedirectTo string // default "redirect_to"
}

func (c ClaimNames) withDefaults() ClaimNames {
	if c.Role == "" {
		c.Role = "role"
	}
	if c.Clinic == "" {
		c.Clinic = "clinic_id"
	}
	if c.RedirectTo == "" {
		c.RedirectTo = "redirect_to"
	}
	return c
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	Claims       ClaimNames
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

const wellKnownSuffix = "/.well-known/openid-configuration"

func (c ProviderConfig) validate() error {
	for _, f := range []struct{ val, msg string }{
		{c.ClientID, "client ID is required"},
		{c.ClientSecret, "client secret is required"},
		{c.RedirectURL, "redirect URL is required"},
		{c.DiscoveryURL, "discovery URL is required"},
	} {
		if f.val == "" {
			return errors.New(f.msg)
		}
	}
	// The browser credential is the id_token; gated requests read its expiry.
	if !slices.Contains(strings.Fields(c.Scope), "openid") {
		return errors.New(`scope must include "openid"`)
	}
	return nil
}

// issuerFromDiscovery accepts either the issuer or its well-known document URL.
func issuerFromDiscovery(raw string) string {
	return strings.TrimSuffix(strings.TrimSuffix(raw, "/"), wellKnownSuffix)
}

// NewProvider fetches the IdP discovery document and builds the OAuth2 client from it.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	discoverCtx := gooidc.ClientContext(context.Background(), client)
	op, err := gooidc.NewProvider(discoverCtx, issuerFromDiscovery(cfg.DiscoveryURL))
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint:     op.Endpoint(),
		},
		httpClient:   client,
		claims:       cfg.Claims.withDefaults(),
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}

	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri stays the configured one; the IdP matches it exactly.
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
	)

	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	switch {
	case in.Code == "":
		return domainauth.Identity{}, errors.New("authorization code is required")
	case in.State == "":
		return domainauth.Identity{}, errors.New("state is required")
	case in.Nonce == "":
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	fields, err := p.extractFromIDToken(ctx, token, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}

	if fields.email == "" || fields.userID == "" || fields.role == "" {
		if fillErr := p.fillFromUserInfo(ctx, token.AccessToken, &fields); fillErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if fields.userID == "" {
		return domainauth.Identity{}, errors.New("identity has no subject")
	}


	return domainauth.Identity{
		UserID:      fields.userID,
		FirstName:   fields.givenName,
		LastName:    fields.familyName,
		Email:       fields.email,
		ClinicID:    fields.clinicID,
		RawRole:     fields.role,
		Groups:      fields.groups,
		AccessToken: fields.rawIDToken,
		RedirectTo:  fields.redirectTo,
		ExpiresAt:   fields.idExpiry,
	}, nil
}

type idFields struct {
	userID     string
	email      string
	givenName  string
	familyName string
	role       string
	clinicID   string
	redirectTo string
	groups     []string
	// rawIDToken is the verified id_token; it becomes the browser credential.
	rawIDToken string
	idExpiry   time.Time
}

// claimSet is a decoded JSON claims object.
type claimSet map[string]any

func (c claimSet) str(name string) string {
	switch v := c[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		// Some IdPs emit single-valued claims as arrays; take the first string.
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func (c claimSet) strs(name string) []string {
	switch v := c[name].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (idFields, error) {
	var f idFields
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return f, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return f, fmt.Errorf("verify id_token: %w", err)
	}
	if expectedNonce != "" && idTok.Nonce != expectedNonce {
		return f, errors.New("invalid nonce")
	}
	var claims claimSet
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return f, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	f = mapClaims(claims, p.claims)
	f.rawIDToken = rawID
	f.idExpiry = idTok.Expiry
	return f, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, accessToken string, f *idFields) error {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var claims claimSet
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	fillMissing(f, mapClaims(claims, p.claims))
	return nil
}

// mapClaims maps standard OIDC claims plus the configured portal claims.
func mapClaims(c claimSet, names ClaimNames) idFields {
	return idFields{
		userID:     c.str("sub"),
		email:      c.str("email"),
		givenName:  firstNonEmpty(c.str("given_name"), c.str("firstName")),
		familyName: firstNonEmpty(c.str("family_name"), c.str("lastName")),
		role:       c.str(names.Role),
		clinicID:   c.str(names.Clinic),
		redirectTo: c.str(names.RedirectTo),
		groups:     c.strs("groups"),
	}
}

// fillMissing copies fields from src into f where f has none.
func fillMissing(f *idFields, src idFields) {
	f.userID = firstNonEmpty(f.userID, src.userID)
	f.email = firstNonEmpty(f.email, src.email)
	f.givenName = firstNonEmpty(f.givenName, src.givenName)
	f.familyName = firstNonEmpty(f.familyName, src.familyName)
	f.role = firstNonEmpty(f.role, src.role)
	f.clinicID = firstNonEmpty(f.clinicID, src.clinicID)
	f.redirectTo = firstNonEmpty(f.redirectTo, src.redirectTo)
	if len(f.groups) == 0 {
		f.groups = src.groups
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
