package errors

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	apperrors "github.com/target/portal-access/internal/errors"
	"golang.org/x/oauth2"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"breaker", fmt.Errorf("profile: %w", apperrors.Unavailable(gobreaker.ErrOpenState, "down")), "circuit_open"},
		{"idp error code", fmt.Errorf("exchange: %w", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}), "idp_invalid_grant"},
		{"idp bare rejection", &oauth2.RetrieveError{}, "idp_rejected"},
		{"app code", fmt.Errorf("select profile: %w", apperrors.Unavailable(errors.New("refused"), "database unavailable")), "unavailable"},
		{"wrapped url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("refused")}, "errors_errorstring"},
		{"typed", &url.Error{Op: "Get", URL: "http://x"}, "url_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
