package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/observability/metrics"
)

// SessionState is what the session source knows about the caller.
type SessionState struct {
	Session       *domainauth.Session
	Authenticated bool
	// ErrorCode is one of the access.Error* codes when the credential was present but unusable.
	ErrorCode string
}

// SessionLoader reads the caller's session. It is invoked at most once per decision.
type SessionLoader func(ctx context.Context) SessionState

// InterceptInput carries the request being gated.
type InterceptInput struct {
	// RequestURI is the path plus query of the incoming request.
	RequestURI  string
	LoadSession SessionLoader
}

// Decision is the interceptor outcome for one request.
type Decision struct {
	Allow          bool
	Result         access.RedirectResult
	Classification access.Classification
	// Session is set when a valid session was loaded.
	Session *domainauth.Session
	// UnauthorizedRole marks a role-scoped path the caller's role may not open.
	UnauthorizedRole bool
}

// decisionRecorder receives one metric per decision.
type decisionRecorder interface {
	Decision(in metrics.DecisionMetric)
}

// AccessServiceOptions groups dependencies for AccessService.
type AccessServiceOptions struct {
	Resolver *access.Resolver
	// DenyUnclassified gates paths outside every table as if they were open to all roles.
	DenyUnclassified bool
	Logger           *slog.Logger
	Recorder         decisionRecorder
}

// AccessService decides, per request, whether to let the caller through or where to send them.
type AccessService struct {
	resolver         *access.Resolver
	classifier       *access.Classifier
	denyUnclassified bool
	logger           *slog.Logger
	recorder         decisionRecorder
	now              func() time.Time
}

// NewAccessService constructs an AccessService. It panics when Resolver is nil.
func NewAccessService(opts AccessServiceOptions) *AccessService {
	if opts.Resolver == nil {
		panic("access service: resolver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessService{
		resolver:         opts.Resolver,
		classifier:       opts.Resolver.Classifier(),
		denyUnclassified: opts.DenyUnclassified,
		logger:           logger.With("component", "access_service"),
		recorder:         opts.Recorder,
		now:              time.Now,
	}
}

// Resolver exposes the underlying resolver for handlers that need its paths.
func (s *AccessService) Resolver() *access.Resolver { return s.resolver }

// Intercept classifies the request and, for gated paths, resolves where the caller belongs.
// The request passes when the resolved destination is the request itself.
func (s *AccessService) Intercept(ctx context.Context, in InterceptInput) Decision {
	start := s.now()
	class := s.classifier.Classify(in.RequestURI)

	switch {
	case class.Kind == access.PublicAuthPath,
		class.Kind == access.Unclassified && !s.denyUnclassified:
		d := Decision{Allow: true, Classification: class, Result: access.RedirectResult{Path: in.RequestURI}}
		s.record(d, nil, start)
		return d
	}

	var state SessionState
	if in.LoadSession != nil {
		state = in.LoadSession(ctx)
	}

	rc := access.RedirectContext{
		Session:       state.Session,
		Authenticated: state.Authenticated && state.Session != nil,
		CurrentPath:   in.RequestURI,
		CallbackURL:   in.RequestURI,
		ErrorCode:     state.ErrorCode,
	}

	unauthorized := false
	if rc.Authenticated && rc.ErrorCode == "" && !class.Allows(state.Session.Role) {
		unauthorized = true
		rc.CallbackURL = ""
		rc.CurrentPath = ""
	}

	result := s.resolver.Resolve(rc)
	d := Decision{
		Allow:            !unauthorized && result.Path == in.RequestURI,
		Result:           result,
		Classification:   class,
		UnauthorizedRole: unauthorized,
	}
	if rc.Authenticated && rc.ErrorCode == "" {
		d.Session = state.Session
	}

	s.logDecision(ctx, in.RequestURI, d)
	s.record(d, d.Session, start)
	return d
}

// AfterLogin picks the landing page for a freshly authenticated caller. callbackURL is
// the target remembered when login began; suggested comes from the IdP.
func (s *AccessService) AfterLogin(
	ctx context.Context,
	sess *domainauth.Session,
	callbackURL, suggested string,
) access.RedirectResult {
	if sess == nil {
		return s.resolver.Resolve(access.RedirectContext{CurrentPath: s.resolver.LoginPath()})
	}
	current, ok := s.resolver.SafeTarget(callbackURL)
	if !ok || s.classifier.IsAuthPath(current) {
		current = s.resolver.RoleDefaultPath(sess.Role)
	}
	res := s.resolver.Resolve(access.RedirectContext{
		Session:            sess,
		Authenticated:      sess != nil,
		CurrentPath:        current,
		CallbackURL:        callbackURL,
		ServerSuggestedURL: suggested,
	})
	s.logDecision(ctx, current, Decision{Result: res, Session: sess})
	return res
}

// AfterLogout picks the landing page once the session is gone.
func (s *AccessService) AfterLogout(ctx context.Context) access.RedirectResult {
	path := s.resolver.SignedOutPath()
	res := s.resolver.Resolve(access.RedirectContext{CurrentPath: path})
	s.logDecision(ctx, path, Decision{Result: res})
	return res
}

// AfterProfileCompletion resumes redirectTarget once the profile is complete, or keeps
// the caller on the completion page when it is not.
func (s *AccessService) AfterProfileCompletion(
	ctx context.Context,
	sess *domainauth.Session,
	redirectTarget string,
) access.RedirectResult {
	path := s.resolver.ProfileCompletionPath()
	res := s.resolver.ResolveAfterProfileCompletion(access.RedirectContext{
		Session:       sess,
		Authenticated: sess != nil,
		CurrentPath:   path,
		CallbackURL:   redirectTarget,
	})
	s.logDecision(ctx, path, Decision{Result: res, Session: sess})
	return res
}

// SessionFailure resolves the redirect for a caller whose session could not be used.
func (s *AccessService) SessionFailure(ctx context.Context, currentPath, errorCode string) access.RedirectResult {
	res := s.resolver.Resolve(access.RedirectContext{CurrentPath: currentPath, ErrorCode: errorCode})
	s.logDecision(ctx, currentPath, Decision{Result: res})
	return res
}

func (s *AccessService) logDecision(ctx context.Context, path string, d Decision) {
	if d.Allow {
		return
	}
	attrs := []any{"path", path, "redirect_to", d.Result.Path, "reason", d.Result.Reason}
	if d.Session != nil {
		attrs = append(attrs, "user_id", d.Session.UserID, "role", d.Session.Role)
	}

	switch {
	case d.UnauthorizedRole:
		s.logger.WarnContext(ctx, "unauthorized role for path", append(attrs, "prefix", d.Classification.Prefix)...)
	case d.Result.Reason == access.ReasonFallbackHome:
		s.logger.WarnContext(ctx, "role has no default path, falling back to home", attrs...)
	default:
		s.logger.DebugContext(ctx, "access redirect", attrs...)
	}
}

func (s *AccessService) record(d Decision, sess *domainauth.Session, start time.Time) {
	if s.recorder == nil {
		return
	}
	m := metrics.DecisionMetric{
		RouteKind: d.Classification.Kind.String(),
		Outcome:   metrics.OutcomeAllow,
		Duration:  s.now().Sub(start),
	}
	if !d.Allow {
		m.Outcome = metrics.OutcomeRedirect
		m.Reason = string(d.Result.Reason)
		if d.UnauthorizedRole {
			m.Reason = "unauthorized_role"
		}
	}
	if sess != nil {
		m.Role = string(sess.Role)
	}
	s.recorder.Decision(m)
}
