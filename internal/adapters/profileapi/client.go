// Package profileapi reads portal profiles from the profile HTTP API. Fields are
// extracted from the response with JMESPath so the gate does not depend on the
// API's response layout.
package profileapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/sony/gobreaker/v2"
	"github.com/target/portal-access/internal/domain/access"
	apperrors "github.com/target/portal-access/internal/errors"
	"github.com/target/portal-access/internal/ports"
)

// maxBody bounds how much of a profile response is read.
const maxBody = 1 << 20

// Config configures the profile API client.
type Config struct {
	// BaseURL is the profile endpoint; the escaped user ID is appended as a path segment.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Root selects the profile object in the response. Empty or "@" uses the whole body.
	Root string
	// FieldNames lists the profile fields to extract.
	FieldNames []string
	// Fields overrides the expression for individual fields; others use the field name.
	Fields map[string]string

	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Client implements ports.ProfileSource over HTTP behind a circuit breaker.
type Client struct {
	baseURL string
	token   string
	root    string
	exprs   map[string]string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[access.ProfileRecord]
	logger  *slog.Logger
}

var _ ports.ProfileSource = (*Client)(nil)

// StatusError reports an unexpected HTTP status from the profile API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("profile api: unexpected status %d", e.StatusCode)
}

// New validates cfg, compiles every expression once and returns a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("profile api: base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("profile api: base URL: %w", err)
	}
	if len(cfg.FieldNames) == 0 {
		return nil, errors.New("profile api: at least one field is required")
	}

	root := strings.TrimSpace(cfg.Root)
	if root != "" && root != "@" {
		if _, err := jmespath.Compile(root); err != nil {
			return nil, fmt.Errorf("profile api: root expression %q: %w", root, err)
		}
	}

	exprs := make(map[string]string, len(cfg.FieldNames))
	for _, name := range cfg.FieldNames {
		expr := strings.TrimSpace(cfg.Fields[name])
		if expr == "" {
			expr = name
		}
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("profile api: field %s expression %q: %w", name, expr, err)
		}
		exprs[name] = expr
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "profile_api")

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		root:    root,
		exprs:   exprs,
		http:    hc,
		logger:  logger,
		breaker: gobreaker.NewCircuitBreaker[access.ProfileRecord](gobreaker.Settings{
			Name:    "profile-api",
			Timeout: cooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}, nil
}

// GetProfile fetches and extracts the profile for userID. A 404 yields an empty
// record; the caller then sees every field as missing.
func (c *Client) GetProfile(ctx context.Context, userID string) (access.ProfileRecord, error) {
	if userID == "" {
		return nil, apperrors.ValidationField("user_id", "user ID cannot be empty")
	}
	rec, err := c.breaker.Execute(func() (access.ProfileRecord, error) {
		return c.fetch(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, classify(err))
	}
	return rec, nil
}

// classify tags outages so handlers answer 503 or 504 rather than 500.
func classify(err error) error {
	var statusErr *StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "profile source timed out")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperrors.Unavailable(err, "profile source unavailable")
	case errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusInternalServerError:
		return apperrors.Unavailable(err, "profile source unavailable")
	case errors.As(err, &statusErr):
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "profile source timed out")
		}
		return apperrors.Unavailable(err, "profile source unavailable")
	}
	return err
}

func (c *Client) fetch(ctx context.Context, userID string) (access.ProfileRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.DebugContext(ctx, "close response body", "error", cerr)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return access.ProfileRecord{}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return c.extract(doc)
}

// extract applies the root and per-field expressions to a decoded body.
func (c *Client) extract(doc any) (access.ProfileRecord, error) {
	root := doc
	if c.root != "" && c.root != "@" {
		v, err := jmespath.Search(c.root, doc)
		if err != nil {
			return nil, fmt.Errorf("root expression: %w", err)
		}
		root = v
	}
	rec := make(access.ProfileRecord, len(c.exprs))
	if root == nil {
		return rec, nil
	}
	for name, expr := range c.exprs {
		v, err := jmespath.Search(expr, root)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		if v != nil {
			rec[name] = v
		}
	}
	return rec, nil
}
