package ports

import (
	"context"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

// SessionStore keeps server-side sessions keyed by the session_id cookie.
// Get fails for unknown IDs; Delete of an unknown ID succeeds.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}
