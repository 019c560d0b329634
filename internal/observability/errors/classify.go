// Package errors turns errors into short, bounded labels for metric tags and
// log fields.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	"github.com/sony/gobreaker/v2"
	apperrors "github.com/target/portal-access/internal/errors"
	"golang.org/x/oauth2"
)

// Classify labels err for a metric tag. Context and breaker sentinels win,
// then IdP token errors and AppError codes. Anything else is named after the
// innermost concrete type, so *url.Error becomes "url_error".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, gobreaker.ErrOpenState), goerrors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	}

	var retrieveErr *oauth2.RetrieveError
	if goerrors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			return "idp_" + retrieveErr.ErrorCode
		}
		return "idp_rejected"
	}
	if code := apperrors.CodeOf(err); code != "" {
		return string(code)
	}
	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
