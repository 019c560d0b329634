package ports

import (
	"context"

	"github.com/target/portal-access/internal/domain/access"
)

// ProfileSource supplies the profile record the completeness gate evaluates.
// A user with no stored profile yields an empty record, not an error.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (access.ProfileRecord, error)
}

// ProfileInvalidator is implemented by profile sources that cache, so a
// fresh read can be forced after the user edits their profile.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}
