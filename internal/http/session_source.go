package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/service"
)

// SessionGetter loads a stored session by ID.
type SessionGetter interface {
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
}

// CookieSessionSource derives the caller's session state from request cookies.
// The access token is decoded without signature verification; only its shape and
// expiry are checked here, and it must hash to the session's credential handle.
type CookieSessionSource struct {
	Sessions SessionGetter
	Now      func() time.Time
}

func (s CookieSessionSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Loader binds the source to r for use as a service.SessionLoader.
func (s CookieSessionSource) Loader(r *http.Request) service.SessionLoader {
	return func(ctx context.Context) service.SessionState {
		return s.Load(ctx, r)
	}
}

// Load reads the session cookies of r.
func (s CookieSessionSource) Load(ctx context.Context, r *http.Request) service.SessionState {
	sid := cookieValue(r, CookieSessionID)
	if sid == "" {
		return service.SessionState{}
	}

	token := cookieValue(r, CookieAccessToken)
	if token != "" {
		if code := s.checkToken(token); code != "" {
			return service.SessionState{ErrorCode: code}
		}
	}

	sess, err := s.Sessions.GetSession(ctx, sid)
	if err != nil || sess == nil {
		if token != "" {
			return service.SessionState{ErrorCode: access.ErrorSessionExpired}
		}
		return service.SessionState{}
	}

	if sess.CredentialHandle != "" && !sess.MatchesCredential(token) {
		return service.SessionState{ErrorCode: access.ErrorInvalidToken}
	}

	return service.SessionState{Session: sess, Authenticated: true}
}

// checkToken returns the error code for an unusable token, or "".
func (s CookieSessionSource) checkToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return access.ErrorInvalidToken
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return access.ErrorInvalidToken
	}
	if exp != nil && !s.now().Before(exp.Time) {
		return access.ErrorSessionExpired
	}
	return ""
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
