package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	mockauth "github.com/target/portal-access/internal/mocks/auth"
	"github.com/target/portal-access/internal/service"
)

// gatewayHarness wires the real services over in-memory fakes.
type gatewayHarness struct {
	store    *mockauth.MemorySessionStore
	provider *mockauth.MockAuthProvider
	profiles *mockauth.StaticProfileSource
	auth     *service.AuthService
	access   *service.AccessService
	handler  http.Handler
}

type harnessOption func(*RouterServices)

func withUpstream(u *url.URL) harnessOption {
	return func(s *RouterServices) { s.Upstream = u }
}

func newGatewayHarness(t *testing.T, opts ...harnessOption) *gatewayHarness {
	t.Helper()

	policy := access.DefaultPolicy()
	policy.AppOrigin = "https://portal.example.com"
	resolver, err := access.NewResolver(policy)
	require.NoError(t, err)
	gate := access.NewProfileGateFromPolicy(policy)

	h := &gatewayHarness{
		store:    mockauth.NewMemorySessionStore(),
		provider: mockauth.NewMockAuthProvider(),
		profiles: &mockauth.StaticProfileSource{Profiles: map[string]access.ProfileRecord{}},
	}
	h.auth = service.NewAuthService(service.AuthServiceOptions{
		Provider: h.provider,
		Sessions: h.store,
		Roles:    mockauth.StaticRoleMapper{},
		Profiles: h.profiles,
		Gate:     gate,
	})
	h.access = service.NewAccessService(service.AccessServiceOptions{Resolver: resolver})

	services := RouterServices{
		Auth:   h.auth,
		Access: h.access,
		Gate:   gate,
	}
	for _, o := range opts {
		o(&services)
	}
	h.handler = NewRouter(services)
	return h
}

// mintToken returns an HS256 JWT expiring at exp. Signatures are never verified by the gateway.
func mintToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return tok
}

func completeProfile() access.ProfileRecord {
	return access.ProfileRecord{
		"firstName":   "Pat",
		"lastName":    "Doe",
		"phone":       "555-0100",
		"dateOfBirth": "1990-01-01",
		"gender":      "female",
		"address":     "1 Main St",
	}
}

// seedSession stores a session for role and returns the cookies a browser would hold.
func (h *gatewayHarness) seedSession(t *testing.T, role domainauth.Role, complete bool) []*http.Cookie {
	t.Helper()
	userID := "user-" + strings.ToLower(string(role))
	token := mintToken(t, userID, time.Now().Add(time.Hour))
	sess := domainauth.Session{
		ID:               "sess-" + userID,
		UserID:           userID,
		FirstName:        "Test",
		LastName:         string(role),
		Email:            userID + "@example.com",
		Role:             role,
		ProfileComplete:  complete,
		CredentialHandle: domainauth.CredentialHandle(token),
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	require.NoError(t, h.store.Save(context.Background(), sess))
	return []*http.Cookie{
		{Name: CookieSessionID, Value: sess.ID},
		{Name: CookieAccessToken, Value: token},
	}
}

type reqOption func(*http.Request)

func withCookies(cks ...*http.Cookie) reqOption {
	return func(r *http.Request) {
		for _, c := range cks {
			r.AddCookie(c)
		}
	}
}

func withHeader(k, v string) reqOption {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (h *gatewayHarness) do(method, target string, opts ...reqOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
