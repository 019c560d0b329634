package httpx

import (
	"context"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

type sessionCtxKey struct{}

// WithSession attaches the caller's session for downstream handlers. A nil
// session leaves ctx unchanged.
func WithSession(ctx context.Context, sess *domainauth.Session) context.Context {
	if sess == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey{}, sess)
}

// SessionFromContext returns the session the access gate attached, if any.
func SessionFromContext(ctx context.Context) (*domainauth.Session, bool) {
	sess, _ := ctx.Value(sessionCtxKey{}).(*domainauth.Session)
	return sess, sess != nil
}
