// Package staticprofile serves one fixed profile record to every user. It backs
// AUTH_MODE=mock development setups where no profile service is running.
package staticprofile

import (
	"context"
	"maps"

	"github.com/target/portal-access/internal/domain/access"
	"github.com/target/portal-access/internal/ports"
)

// Source returns a copy of the same record for every user ID.
type Source struct {
	record access.ProfileRecord
}

var _ ports.ProfileSource = Source{}

// New builds a Source from string fields.
func New(fields map[string]string) Source {
	rec := make(access.ProfileRecord, len(fields))
	for k, v := range fields {
		rec[k] = v
	}
	return Source{record: rec}
}

func (s Source) GetProfile(_ context.Context, _ string) (access.ProfileRecord, error) {
	return maps.Clone(s.record), nil
}
