package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/portal-access/internal/ports"
	"golang.org/x/oauth2"
)

const (
	testClientID  = "portal-web"
	testKeyID     = "idp-key-1"
	testNonce     = "nonce-abc"
	opaqueAccess  = "opaque-access-token"
	testCallback  = "https://portal.example.com/auth/callback"
	wellKnownPath = "/.well-known/openid-configuration"
)

// fakeIdP serves discovery, JWKS, token and userinfo endpoints and signs
// id_tokens with a throwaway RSA key.
type fakeIdP struct {
	t   *testing.T
	srv *httptest.Server
	key *rsa.PrivateKey

	mu          sync.Mutex
	idClaims    jwt.MapClaims
	userInfo    map[string]any
	omitIDToken bool
	tokenStatus int
	lastIDToken string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdP{t: t, key: key, tokenStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+wellKnownPath, idp.discovery)
	mux.HandleFunc("GET /jwks", idp.jwks)
	mux.HandleFunc("POST /token", idp.token)
	mux.HandleFunc("GET /userinfo", idp.userinfo)
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

type discoveryDoc struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

func (f *fakeIdP) discoveryURL() string { return f.srv.URL + wellKnownPath }

func (f *fakeIdP) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(f.t, json.NewEncoder(w).Encode(v))
}

func (f *fakeIdP) discovery(w http.ResponseWriter, _ *http.Request) {
	f.writeJSON(w, http.StatusOK, discoveryDoc{
		Issuer:                f.srv.URL,
		AuthorizationEndpoint: f.srv.URL + "/authorize",
		TokenEndpoint:         f.srv.URL + "/token",
		UserinfoEndpoint:      f.srv.URL + "/userinfo",
		JwksURI:               f.srv.URL + "/jwks",
	})
}

func (f *fakeIdP) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := f.key.PublicKey
	f.writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (f *fakeIdP) token(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenStatus != http.StatusOK {
		f.writeJSON(w, f.tokenStatus, map[string]string{"error": "invalid_grant"})
		return
	}
	body := map[string]any{
		"access_token": opaqueAccess,
		"token_type":   "Bearer",
		"expires_in":   1800,
	}
	if !f.omitIDToken {
		claims := jwt.MapClaims{
			"iss":   f.srv.URL,
			"aud":   testClientID,
			"sub":   "user-1",
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(15 * time.Minute).Unix(),
			"nonce": testNonce,
		}
		for k, v := range f.idClaims {
			claims[k] = v
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = testKeyID
		signed, err := tok.SignedString(f.key)
		require.NoError(f.t, err)
		f.lastIDToken = signed
		body["id_token"] = signed
	}
	f.writeJSON(w, http.StatusOK, body)
}

func (f *fakeIdP) userinfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+opaqueAccess {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	info := map[string]any{"sub": "user-1"}
	for k, v := range f.userInfo {
		info[k] = v
	}
	f.writeJSON(w, http.StatusOK, info)
}

func (f *fakeIdP) provider(t *testing.T, scope string, claims ClaimNames) *Provider {
	t.Helper()
	p, err := NewProvider(ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "s3cret",
		RedirectURL:  testCallback,
		Scope:        scope,
		DiscoveryURL: f.discoveryURL(),
		Claims:       claims,
		HTTPClient:   f.srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func exchangeInput() ports.ExchangeInput {
	return ports.ExchangeInput{Code: "code-1", State: "state-1", Nonce: testNonce}
}

var _ ports.AuthProvider = (*Provider)(nil)

func TestNewProvider_RequiresConfig(t *testing.T) {
	valid := ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "s3cret",
		RedirectURL:  testCallback,
		Scope:        "openid profile",
		DiscoveryURL: "https://idp.example.com" + wellKnownPath,
	}
	tests := []struct {
		name   string
		mutate func(*ProviderConfig)
		want   string
	}{
		{"client id", func(c *ProviderConfig) { c.ClientID = "" }, "client ID is required"},
		{"client secret", func(c *ProviderConfig) { c.ClientSecret = "" }, "client secret is required"},
		{"redirect url", func(c *ProviderConfig) { c.RedirectURL = "" }, "redirect URL is required"},
		{"discovery url", func(c *ProviderConfig) { c.DiscoveryURL = "" }, "discovery URL is required"},
		{"no scope", func(c *ProviderConfig) { c.Scope = "" }, `scope must include "openid"`},
		{"scope without openid", func(c *ProviderConfig) { c.Scope = "profile email" }, `scope must include "openid"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			p, err := NewProvider(cfg)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewProvider(ProviderConfig{
		ClientID:     testClientID,
		ClientSecret: "s3cret",
		RedirectURL:  testCallback,
		Scope:        "openid",
		DiscoveryURL: srv.URL,
		HTTPClient:   srv.Client(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oidc discovery")
}

func TestNewProvider_AppliesClaimDefaults(t *testing.T) {
	idp := newFakeIdP(t)

	p := idp.provider(t, "openid", ClaimNames{Clinic: "practice"})
	assert.Equal(t, ClaimNames{Role: "role", Clinic: "practice", RedirectTo: "redirect_to"}, p.claims)
	assert.Equal(t, []string{"openid"}, p.config.Scopes)
	assert.Equal(t, idp.srv.URL+"/token", p.config.Endpoint.TokenURL)
}

func TestProvider_Begin(t *testing.T) {
	idp := newFakeIdP(t)
	p := idp.provider(t, "openid email", ClaimNames{})

	authURL, state, nonce, err := p.Begin(context.Background(), ports.BeginInput{RedirectURL: "/doctor/dashboard"})
	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, testCallback, q.Get("redirect_uri"), "the registered callback is sent, not the post-login target")
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, nonce, q.Get("nonce"))
	assert.Equal(t, "code", q.Get("response_type"))

	_, state2, nonce2, err := p.Begin(context.Background(), ports.BeginInput{RedirectURL: "/"})
	require.NoError(t, err)
	assert.NotEqual(t, state, state2)
	assert.NotEqual(t, nonce, nonce2)

	_, _, _, err = p.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestProvider_Exchange_RequiresInputs(t *testing.T) {
	p := &Provider{}
	tests := []struct {
		name string
		in   ports.ExchangeInput
		want string
	}{
		{"code", ports.ExchangeInput{State: "s", Nonce: "n"}, "authorization code is required"},
		{"state", ports.ExchangeInput{Code: "c", Nonce: "n"}, "state is required"},
		{"nonce", ports.ExchangeInput{Code: "c", State: "s"}, "nonce is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Exchange(context.Background(), tt.in)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProvider_Exchange_IDTokenBecomesCredential(t *testing.T) {
	idp := newFakeIdP(t)
	idp.idClaims = jwt.MapClaims{
		"email":       "house@example.com",
		"given_name":  "Greg",
		"family_name": "House",
		"portal_role": "Doctor",
		"clinic_id":   "clinic-7",
		"groups":      []string{"doctors"},
	}
	p := idp.provider(t, "openid profile email", ClaimNames{Role: "portal_role"})

	id, err := p.Exchange(context.Background(), exchangeInput())
	require.NoError(t, err)

	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "house@example.com", id.Email)
	assert.Equal(t, "Greg", id.FirstName)
	assert.Equal(t, "House", id.LastName)
	assert.Equal(t, "Doctor", id.RawRole)
	assert.Equal(t, "clinic-7", id.ClinicID)
	assert.Equal(t, []string{"doctors"}, id.Groups)
	assert.Equal(t, idp.lastIDToken, id.AccessToken)
	assert.NotEqual(t, opaqueAccess, id.AccessToken)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), id.ExpiresAt, 5*time.Second)
}

func TestProvider_Exchange_FillsMissingClaimsFromUserInfo(t *testing.T) {
	idp := newFakeIdP(t)
	idp.idClaims = jwt.MapClaims{"email": "nurse@example.com"}
	idp.userInfo = map[string]any{
		"email":       "other@example.com",
		"role":        "Receptionist",
		"redirect_to": "/staff/queue",
	}
	p := idp.provider(t, "openid", ClaimNames{})

	id, err := p.Exchange(context.Background(), exchangeInput())
	require.NoError(t, err)
	assert.Equal(t, "nurse@example.com", id.Email, "id_token claims win over userinfo")
	assert.Equal(t, "Receptionist", id.RawRole)
	assert.Equal(t, "/staff/queue", id.RedirectTo)
}

func TestProvider_Exchange_Failures(t *testing.T) {
	t.Run("token endpoint rejects code", func(t *testing.T) {
		idp := newFakeIdP(t)
		idp.tokenStatus = http.StatusBadRequest
		p := idp.provider(t, "openid", ClaimNames{})

		_, err := p.Exchange(context.Background(), exchangeInput())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exchange code for token")
	})

	t.Run("missing id_token", func(t *testing.T) {
		idp := newFakeIdP(t)
		idp.omitIDToken = true
		p := idp.provider(t, "openid", ClaimNames{})

		_, err := p.Exchange(context.Background(), exchangeInput())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing id_token")
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		idp := newFakeIdP(t)
		p := idp.provider(t, "openid", ClaimNames{})

		in := exchangeInput()
		in.Nonce = "replayed"
		_, err := p.Exchange(context.Background(), in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid nonce")
	})

	t.Run("wrong audience", func(t *testing.T) {
		idp := newFakeIdP(t)
		idp.idClaims = jwt.MapClaims{"aud": "someone-else"}
		p := idp.provider(t, "openid", ClaimNames{})

		_, err := p.Exchange(context.Background(), exchangeInput())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "verify id_token")
	})
}

func TestGenerateRandomString(t *testing.T) {
	for _, n := range []int{1, 16, 32, 43} {
		s, err := generateRandomString(n)
		require.NoError(t, err)
		assert.Len(t, s, n)
		assert.NotContains(t, s, "+")
		assert.NotContains(t, s, "/")
	}
	s, err := generateRandomString(0)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestGetIDTokenFromToken(t *testing.T) {
	raw, err := getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc"}))
	require.NoError(t, err)
	assert.Equal(t, "abc", raw)

	_, err = getIDTokenFromToken(&oauth2.Token{})
	require.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	require.ErrorContains(t, err, "nil token")
}

func Test_mapClaims(t *testing.T) {
	claims := claimSet{
		"sub":         "sub-123",
		"email":       "doc@example.com",
		"given_name":  "Greg",
		"family_name": "House",
		"portal_role": []any{"Doctor"},
		"clinic_id":   "clinic-7",
		"groups":      []any{"doctors", 42, "staff"},
	}
	f := mapClaims(claims, ClaimNames{Role: "portal_role"}.withDefaults())
	assert.Equal(t, "sub-123", f.userID)
	assert.Equal(t, "doc@example.com", f.email)
	assert.Equal(t, "Greg", f.givenName)
	assert.Equal(t, "House", f.familyName)
	assert.Equal(t, "Doctor", f.role)
	assert.Equal(t, "clinic-7", f.clinicID)
	assert.Empty(t, f.redirectTo)
	assert.Equal(t, []string{"doctors", "staff"}, f.groups)

	legacy := mapClaims(claimSet{"firstName": "Ann", "lastName": "Lee"}, ClaimNames{}.withDefaults())
	assert.Equal(t, "Ann", legacy.givenName)
	assert.Equal(t, "Lee", legacy.familyName)
}

func Test_fillMissing(t *testing.T) {
	src := idFields{
		userID:     "sub-abc",
		email:      "mail@example.com",
		givenName:  "First",
		role:       "Pharmacist",
		redirectTo: "/pharmacist/orders",
		groups:     []string{"pharmacy"},
	}
	var f idFields
	fillMissing(&f, src)
	assert.Equal(t, src, f)

	f2 := idFields{userID: "keep", role: "Doctor", groups: []string{"x"}}
	fillMissing(&f2, src)
	assert.Equal(t, "keep", f2.userID)
	assert.Equal(t, "Doctor", f2.role)
	assert.Equal(t, "mail@example.com", f2.email)
	assert.Equal(t, []string{"x"}, f2.groups)
}
