package access

import (
	"fmt"
	"maps"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

// Reason is a stable identifier for why a destination was chosen. It is meant for logs
// and metrics and is never shown to end users.
type Reason string

const (
	ReasonSessionExpired      Reason = "session_expired"
	ReasonInvalidToken        Reason = "invalid_token"
	ReasonInvalidRole         Reason = "invalid_role"
	ReasonAlreadyOnAuthPage   Reason = "already_on_auth_page"
	ReasonProfileIncomplete   Reason = "profile_incomplete"
	ReasonCallbackURL         Reason = "callback_url"
	ReasonResponseRedirectURL Reason = "response_redirect_url"
	ReasonRoleBasedDashboard  Reason = "role_based_dashboard"
	ReasonFallbackHome        Reason = "fallback_home"
)

// Error codes understood by the resolver. They travel as the error query parameter of
// the login path.
const (
	ErrorSessionExpired = "session_expired"
	ErrorInvalidToken   = "invalid_token"
	ErrorInvalidRole    = "invalid_role"
)

// Query parameter names written by the resolver.
const (
	ParamError       = "error"
	ParamCallbackURL = "callbackUrl"
	ParamRedirect    = "redirect"
)

// RedirectContext is the per-decision input to the resolver.
type RedirectContext struct {
	Session            *domainauth.Session
	Authenticated      bool
	CurrentPath        string
	CallbackURL        string
	ServerSuggestedURL string
	ErrorCode          string
}

// RedirectResult is the single destination chosen for a context.
type RedirectResult struct {
	Path   string `json:"path"`
	Reason Reason `json:"reason"`
}

// Resolver picks the destination for a caller using a fixed priority chain.
type Resolver struct {
	policy     Policy
	classifier *Classifier
	targets    redirectTargets
	defaults   map[domainauth.Role]string
}

// NewResolver validates p and builds a Resolver over it.
func NewResolver(p Policy) (*Resolver, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("access policy: %w", err)
	}
	origin, _ := parseOrigin(p.AppOrigin)
	return &Resolver{
		policy:     p,
		classifier: newClassifier(p),
		targets:    redirectTargets{origin: origin},
		defaults:   maps.Clone(p.RoleDefaultPaths),
	}, nil
}

// Classifier returns the classifier built from the resolver's policy.
func (r *Resolver) Classifier() *Classifier { return r.classifier }

// LoginPath returns the configured login path.
func (r *Resolver) LoginPath() string { return r.policy.LoginPath }

// ProfileCompletionPath returns the configured profile completion path.
func (r *Resolver) ProfileCompletionPath() string { return r.policy.ProfileCompletionPath }

// SignedOutPath returns the post-logout landing path, or the login path when unset.
func (r *Resolver) SignedOutPath() string {
	if r.policy.SignedOutPath == "" {
		return r.policy.LoginPath
	}
	return r.policy.SignedOutPath
}

// SafeTarget reports whether raw is an acceptable same-origin redirect target and
// returns its normalized form.
func (r *Resolver) SafeTarget(raw string) (string, bool) {
	return r.targets.normalize(raw)
}

// RoleDefaultPath returns the landing path for role, or the login path when the
// role table has no entry.
func (r *Resolver) RoleDefaultPath(role domainauth.Role) string {
	if p, ok := r.defaults[domainauth.ResolveRole(string(role))]; ok && p != "" {
		return p
	}
	return r.policy.LoginPath
}

// Resolve evaluates the priority chain for ctx; the first matching rule wins.
func (r *Resolver) Resolve(ctx RedirectContext) RedirectResult {
	return r.resolve(ctx, true)
}

// ResolveAfterProfileCompletion picks the landing page once a caller submits the
// profile completion form. Callers whose profile is still incomplete stay on the
// completion path; everyone else resumes the original target or lands on their
// role default.
func (r *Resolver) ResolveAfterProfileCompletion(ctx RedirectContext) RedirectResult {
	if ctx.Authenticated && ctx.Session != nil && !ctx.Session.ProfileComplete && ctx.ErrorCode == "" {
		resume, _ := r.targets.normalize(ctx.CallbackURL)
		if r.classifier.IsAuthPath(resume) {
			resume = ""
		}
		return RedirectResult{
			Path:   withQuery(r.policy.ProfileCompletionPath, ParamRedirect, resume),
			Reason: ReasonProfileIncomplete,
		}
	}
	return r.resolve(ctx, false)
}

func (r *Resolver) resolve(ctx RedirectContext, gateProfile bool) RedirectResult {
	if res, ok := r.errorRedirect(ctx.ErrorCode, ctx.CurrentPath); ok {
		return res
	}

	if !ctx.Authenticated || ctx.Session == nil {
		if r.classifier.IsAuthPath(ctx.CurrentPath) {
			return RedirectResult{Path: ctx.CurrentPath, Reason: ReasonAlreadyOnAuthPage}
		}
		res, _ := r.errorRedirect(ErrorSessionExpired, ctx.CurrentPath)
		return res
	}

	if gateProfile && !ctx.Session.ProfileComplete {
		cur := pathOnly(ctx.CurrentPath)
		if cur != r.policy.ProfileCompletionPath && !r.classifier.IsAuthPath(cur) {
			resume, _ := r.targets.normalize(ctx.CurrentPath)
			return RedirectResult{
				Path:   withQuery(r.policy.ProfileCompletionPath, ParamRedirect, resume),
				Reason: ReasonProfileIncomplete,
			}
		}
	}

	if target, ok := r.acceptTarget(ctx.CallbackURL); ok {
		return RedirectResult{Path: target, Reason: ReasonCallbackURL}
	}
	if target, ok := r.acceptTarget(ctx.ServerSuggestedURL); ok {
		return RedirectResult{Path: target, Reason: ReasonResponseRedirectURL}
	}

	def := r.RoleDefaultPath(ctx.Session.Role)
	if def == r.policy.LoginPath {
		return RedirectResult{Path: r.policy.HomePath, Reason: ReasonFallbackHome}
	}
	return RedirectResult{Path: def, Reason: ReasonRoleBasedDashboard}
}

// errorRedirect builds the login redirect for an explicit error signal.
func (r *Resolver) errorRedirect(code, currentPath string) (RedirectResult, bool) {
	var reason Reason
	switch code {
	case ErrorSessionExpired:
		reason = ReasonSessionExpired
	case ErrorInvalidToken:
		reason = ReasonInvalidToken
	case ErrorInvalidRole:
		reason = ReasonInvalidRole
	default:
		return RedirectResult{}, false
	}

	callback := ""
	if !r.classifier.IsAuthPath(currentPath) {
		callback, _ = r.targets.normalize(currentPath)
	}
	return RedirectResult{
		Path:   withQuery(r.policy.LoginPath, ParamError, code, ParamCallbackURL, callback),
		Reason: reason,
	}, true
}

// acceptTarget applies the same-origin check and refuses anything in the auth space.
func (r *Resolver) acceptTarget(raw string) (string, bool) {
	target, ok := r.targets.normalize(raw)
	if !ok || r.classifier.IsAuthPath(target) {
		return "", false
	}
	return target, true
}
