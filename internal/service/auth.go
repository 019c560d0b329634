package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider
	Sessions ports.SessionStore
	Roles    ports.RoleMapper
	Profiles ports.ProfileSource
	Gate     *access.ProfileGate
	Logger   *slog.Logger
	Now      func() time.Time
}

// AuthService orchestrates authentication flows by coordinating the provider, role
// mapping, the profile gate and session persistence.
type AuthService struct {
	provider ports.AuthProvider
	sessions ports.SessionStore
	roles    ports.RoleMapper
	profiles ports.ProfileSource
	gate     *access.ProfileGate
	logger   *slog.Logger
	now      func() time.Time
}

// ErrSessionExpired is returned by GetSession for a stored session past its expiry.
var ErrSessionExpired = errors.New("session expired")

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gate := opts.Gate
	if gate == nil {
		gate = access.NewProfileGateFromPolicy(access.DefaultPolicy())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		provider: opts.Provider,
		sessions: opts.Sessions,
		roles:    opts.Roles,
		profiles: opts.Profiles,
		gate:     gate,
		logger:   logger.With("component", "auth_service"),
		now:      now,
	}
}

// BeginLoginResult is where to send the browser and what to remember until the callback.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin starts an IdP login whose callback lands on redirectURL.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	var (
		res BeginLoginResult
		err error
	)
	res.AuthURL, res.State, res.Nonce, err = s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &res, nil
}

// CompleteLoginInput is what the callback received plus the nonce remembered at login.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

func (in CompleteLoginInput) validate() error {
	switch {
	case in.Code == "":
		return errors.New("authorization code is required")
	case in.State == "":
		return errors.New("state parameter is required")
	case in.Nonce == "":
		return errors.New("nonce parameter is required")
	}
	return nil
}

// CompleteLoginResult carries the new session and what the callback needs to route it.
type CompleteLoginResult struct {
	Session domainauth.Session
	// AccessToken is handed to the browser; only its hash is on the session.
	AccessToken string
	// RedirectTo is the destination suggested by the IdP, unvalidated.
	RedirectTo   string
	Completeness access.Completeness
}

// CompleteLogin turns an authorization code into a stored session: the role is
// coerced to a known one and the profile gate is evaluated once up front.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*CompleteLoginResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput(input))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if identity.UserID == "" {
		return nil, errors.New("identity has no user ID")
	}

	role := s.roles.Map(identity)
	if identity.RawRole != "" && string(role) != identity.RawRole {
		s.logger.WarnContext(ctx, "unrecognized role coerced",
			"user_id", identity.UserID, "raw_role", identity.RawRole, "role", role)
	}

	completeness := s.evaluateProfile(ctx, identity.UserID, role)
	session := newSession(identity, role, completeness.Complete)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.InfoContext(ctx, "session created",
		"user_id", session.UserID, "role", session.Role, "profile_complete", session.ProfileComplete)

	return &CompleteLoginResult{
		Session:      session,
		AccessToken:  identity.AccessToken,
		RedirectTo:   identity.RedirectTo,
		Completeness: completeness,
	}, nil
}

func newSession(id domainauth.Identity, role domainauth.Role, complete bool) domainauth.Session {
	return domainauth.Session{
		ID:               uuid.NewString(),
		UserID:           id.UserID,
		FirstName:        id.FirstName,
		LastName:         id.LastName,
		Email:            id.Email,
		ClinicID:         id.ClinicID,
		Role:             role,
		ProfileComplete:  complete,
		CredentialHandle: domainauth.CredentialHandle(id.AccessToken),
		ExpiresAt:        id.ExpiresAt,
	}
}

// GetSession retrieves a session by ID.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if session.Expired(s.now()) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(ErrSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// ProfileStatus evaluates the gate for sess against the current profile record.
func (s *AuthService) ProfileStatus(ctx context.Context, sess domainauth.Session) access.Completeness {
	return s.evaluateProfile(ctx, sess.UserID, sess.Role)
}

// RefreshProfile re-reads the profile, bypassing any cache, and updates the session's
// completeness flag in place. The session is only rewritten when the flag changes.
func (s *AuthService) RefreshProfile(
	ctx context.Context,
	sess domainauth.Session,
) (domainauth.Session, access.Completeness, error) {
	if inv, ok := s.profiles.(ports.ProfileInvalidator); ok {
		if err := inv.Invalidate(ctx, sess.UserID); err != nil {
			s.logger.WarnContext(ctx, "profile cache invalidation failed", "user_id", sess.UserID, "error", err)
		}
	}

	completeness := s.evaluateProfile(ctx, sess.UserID, sess.Role)
	if completeness.Complete == sess.ProfileComplete {
		return sess, completeness, nil
	}

	sess.ProfileComplete = completeness.Complete
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, completeness, fmt.Errorf("save session: %w", err)
	}
	s.logger.InfoContext(ctx, "session profile state refreshed",
		"user_id", sess.UserID,
		"profile_complete", sess.ProfileComplete,
	)
	return sess, completeness, nil
}

// Logout removes a session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// evaluateProfile fetches the profile and runs the gate. A failed fetch counts as an
// empty profile.
func (s *AuthService) evaluateProfile(ctx context.Context, userID string, role domainauth.Role) access.Completeness {
	var rec access.ProfileRecord
	if s.profiles != nil {
		var err error
		rec, err = s.profiles.GetProfile(ctx, userID)
		if err != nil {
			s.logger.WarnContext(ctx, "profile fetch failed, treating profile as incomplete",
				"user_id", userID,
				"error", err,
			)
			rec = nil
		}
	}
	return s.gate.Evaluate(rec, role)
}
