package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/observability/metrics"
)

type captureRecorder struct {
	mu  sync.Mutex
	got []metrics.DecisionMetric
}

func (c *captureRecorder) Decision(in metrics.DecisionMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, in)
}

func newTestAccessService(t *testing.T, deny bool) (*AccessService, *captureRecorder) {
	t.Helper()
	p := access.DefaultPolicy()
	p.AppOrigin = "https://portal.example.com"
	r, err := access.NewResolver(p)
	require.NoError(t, err)
	rec := &captureRecorder{}
	return NewAccessService(AccessServiceOptions{Resolver: r, DenyUnclassified: deny, Recorder: rec}), rec
}

func sessionFor(role domainauth.Role, complete bool) *domainauth.Session {
	return &domainauth.Session{ID: "sess-1", UserID: "u-1", Role: role, ProfileComplete: complete}
}

func authed(sess *domainauth.Session) SessionLoader {
	return func(context.Context) SessionState {
		return SessionState{Session: sess, Authenticated: true}
	}
}

func failed(code string) SessionLoader {
	return func(context.Context) SessionState {
		return SessionState{ErrorCode: code}
	}
}

func anonymous(context.Context) SessionState { return SessionState{} }

func TestAccessService_Intercept(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		load       SessionLoader
		deny       bool
		wantAllow  bool
		wantPath   string
		wantReason access.Reason
		wantUnauth bool
	}{
		{
			name:      "patient on own dashboard",
			uri:       "/patient/dashboard",
			load:      authed(sessionFor(domainauth.RolePatient, true)),
			wantAllow: true,
			wantPath:  "/patient/dashboard",
		},
		{
			name:       "anonymous on protected path",
			uri:        "/patient/dashboard",
			load:       anonymous,
			wantPath:   "/auth/login?error=session_expired&callbackUrl=/patient/dashboard",
			wantReason: access.ReasonSessionExpired,
		},
		{
			name:       "invalid token",
			uri:        "/doctor/appointments?day=mon",
			load:       failed(access.ErrorInvalidToken),
			wantPath:   "/auth/login?error=invalid_token&callbackUrl=/doctor/appointments%3Fday%3Dmon",
			wantReason: access.ReasonInvalidToken,
		},
		{
			name:       "doctor on patient path lands on own dashboard",
			uri:        "/patient/records",
			load:       authed(sessionFor(domainauth.RoleDoctor, true)),
			wantPath:   "/doctor/dashboard",
			wantReason: access.ReasonRoleBasedDashboard,
			wantUnauth: true,
		},
		{
			name:       "incomplete profile sent to completion",
			uri:        "/patient/dashboard",
			load:       authed(sessionFor(domainauth.RolePatient, false)),
			wantPath:   "/profile-completion?redirect=/patient/dashboard",
			wantReason: access.ReasonProfileIncomplete,
		},
		{
			name:      "incomplete profile may open completion page",
			uri:       "/profile-completion?redirect=/patient/dashboard",
			load:      authed(sessionFor(domainauth.RolePatient, false)),
			wantAllow: true,
			wantPath:  "/profile-completion?redirect=/patient/dashboard",
		},
		{
			name:       "completion page requires a session",
			uri:        "/profile-completion",
			load:       anonymous,
			wantPath:   "/auth/login?error=session_expired&callbackUrl=/profile-completion",
			wantReason: access.ReasonSessionExpired,
		},
		{
			name:      "auth path skips session",
			uri:       "/auth/login?callbackUrl=/patient/dashboard",
			load:      func(context.Context) SessionState { panic("session must not be read") },
			wantAllow: true,
			wantPath:  "/auth/login?callbackUrl=/patient/dashboard",
		},
		{
			name:      "unclassified allowed",
			uri:       "/about",
			load:      func(context.Context) SessionState { panic("session must not be read") },
			wantAllow: true,
			wantPath:  "/about",
		},
		{
			name:       "unclassified gated when denied",
			uri:        "/about",
			load:       anonymous,
			deny:       true,
			wantPath:   "/auth/login?error=session_expired&callbackUrl=/about",
			wantReason: access.ReasonSessionExpired,
		},
		{
			name:      "unclassified gated lets any role through",
			uri:       "/about",
			load:      authed(sessionFor(domainauth.RolePharmacist, true)),
			deny:      true,
			wantAllow: true,
			wantPath:  "/about",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestAccessService(t, tt.deny)

			d := svc.Intercept(context.Background(), InterceptInput{RequestURI: tt.uri, LoadSession: tt.load})

			assert.Equal(t, tt.wantAllow, d.Allow)
			assert.Equal(t, tt.wantPath, d.Result.Path)
			if !tt.wantAllow {
				assert.Equal(t, tt.wantReason, d.Result.Reason)
			}
			assert.Equal(t, tt.wantUnauth, d.UnauthorizedRole)
		})
	}
}

func TestAccessService_InterceptLoadsSessionOnce(t *testing.T) {
	svc, _ := newTestAccessService(t, false)
	calls := 0
	load := func(context.Context) SessionState {
		calls++
		return SessionState{Session: sessionFor(domainauth.RolePatient, true), Authenticated: true}
	}

	d := svc.Intercept(context.Background(), InterceptInput{RequestURI: "/patient/dashboard", LoadSession: load})

	assert.True(t, d.Allow)
	assert.Equal(t, 1, calls)
	require.NotNil(t, d.Session)
	assert.Equal(t, "u-1", d.Session.UserID)
}

func TestAccessService_InterceptRecordsMetrics(t *testing.T) {
	svc, rec := newTestAccessService(t, false)

	svc.Intercept(context.Background(), InterceptInput{RequestURI: "/auth/login"})
	svc.Intercept(context.Background(), InterceptInput{
		RequestURI:  "/patient/x",
		LoadSession: authed(sessionFor(domainauth.RoleDoctor, true)),
	})

	require.Len(t, rec.got, 2)
	assert.Equal(t, "public_auth", rec.got[0].RouteKind)
	assert.Equal(t, metrics.OutcomeAllow, rec.got[0].Outcome)
	assert.Equal(t, "role_scoped", rec.got[1].RouteKind)
	assert.Equal(t, metrics.OutcomeRedirect, rec.got[1].Outcome)
	assert.Equal(t, "unauthorized_role", rec.got[1].Reason)
	assert.Equal(t, "Doctor", rec.got[1].Role)
}

func TestAccessService_AfterLogin(t *testing.T) {
	svc, _ := newTestAccessService(t, false)
	ctx := context.Background()

	tests := []struct {
		name       string
		sess       *domainauth.Session
		callback   string
		suggested  string
		wantPath   string
		wantReason access.Reason
	}{
		{
			name:       "resumes callback",
			sess:       sessionFor(domainauth.RolePatient, true),
			callback:   "/patient/appointments",
			wantPath:   "/patient/appointments",
			wantReason: access.ReasonCallbackURL,
		},
		{
			name:       "absolute same-origin callback reduced to path",
			sess:       sessionFor(domainauth.RolePatient, true),
			callback:   "https://portal.example.com/patient/bills?page=2",
			wantPath:   "/patient/bills?page=2",
			wantReason: access.ReasonCallbackURL,
		},
		{
			name:       "foreign callback ignored, suggestion used",
			sess:       sessionFor(domainauth.RolePatient, true),
			callback:   "https://evil.example.net/steal",
			suggested:  "/patient/welcome",
			wantPath:   "/patient/welcome",
			wantReason: access.ReasonResponseRedirectURL,
		},
		{
			name:       "no targets falls back to role dashboard",
			sess:       sessionFor(domainauth.RoleClinicAdmin, true),
			wantPath:   "/clinic-admin/dashboard",
			wantReason: access.ReasonRoleBasedDashboard,
		},
		{
			name:       "incomplete profile keeps callback for later",
			sess:       sessionFor(domainauth.RolePatient, false),
			callback:   "/patient/appointments",
			wantPath:   "/profile-completion?redirect=/patient/appointments",
			wantReason: access.ReasonProfileIncomplete,
		},
		{
			name:       "incomplete profile without callback resumes dashboard",
			sess:       sessionFor(domainauth.RoleDoctor, false),
			wantPath:   "/profile-completion?redirect=/doctor/dashboard",
			wantReason: access.ReasonProfileIncomplete,
		},
		{
			name:       "auth callback is never a destination",
			sess:       sessionFor(domainauth.RolePatient, true),
			callback:   "/auth/login",
			wantPath:   "/patient/dashboard",
			wantReason: access.ReasonRoleBasedDashboard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.AfterLogin(ctx, tt.sess, tt.callback, tt.suggested)
			assert.Equal(t, tt.wantPath, res.Path)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestAccessService_AfterLogout(t *testing.T) {
	svc, _ := newTestAccessService(t, false)

	res := svc.AfterLogout(context.Background())

	assert.Equal(t, "/auth/signed-out", res.Path)
	assert.Equal(t, access.ReasonAlreadyOnAuthPage, res.Reason)
}

func TestAccessService_AfterProfileCompletion(t *testing.T) {
	svc, _ := newTestAccessService(t, false)
	ctx := context.Background()

	res := svc.AfterProfileCompletion(ctx, sessionFor(domainauth.RolePatient, true), "/patient/appointments")
	assert.Equal(t, "/patient/appointments", res.Path)
	assert.Equal(t, access.ReasonCallbackURL, res.Reason)

	res = svc.AfterProfileCompletion(ctx, sessionFor(domainauth.RolePatient, true), "")
	assert.Equal(t, "/patient/dashboard", res.Path)
	assert.Equal(t, access.ReasonRoleBasedDashboard, res.Reason)

	res = svc.AfterProfileCompletion(ctx, sessionFor(domainauth.RolePatient, false), "/patient/appointments")
	assert.Equal(t, "/profile-completion?redirect=/patient/appointments", res.Path)
	assert.Equal(t, access.ReasonProfileIncomplete, res.Reason)
}

func TestNewAccessService_RequiresResolver(t *testing.T) {
	assert.Panics(t, func() { NewAccessService(AccessServiceOptions{}) })
}
