package httpx

import (
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/target/portal-access/internal/domain/access"
	"github.com/target/portal-access/internal/service"
)

// AccessGateOptions groups dependencies for AccessGate.
type AccessGateOptions struct {
	Access   *service.AccessService
	Sessions CookieSessionSource
	Cookies  CookieConfig
	Logger   *slog.Logger
}

// AccessGate runs the interceptor for every request. Allowed requests continue with the
// session on their context; everything else is redirected in the shape the caller expects.
func AccessGate(opts AccessGateOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loginPath := opts.Access.Resolver().LoginPath()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = canonicalRequest(r)
			d := opts.Access.Intercept(r.Context(), service.InterceptInput{
				RequestURI:  r.URL.RequestURI(),
				LoadSession: opts.Sessions.Loader(r),
			})
			if d.Allow {
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), d.Session)))
				return
			}

			logger.DebugContext(r.Context(), "access redirect",
				"path", r.URL.Path,
				"target", d.Result.Path,
				"reason", d.Result.Reason,
				"unauthorized_role", d.UnauthorizedRole,
				"caller", classifyResponse(r).String(),
			)
			if credentialRejected(d.Result.Reason) && cookieValue(r, CookieSessionID) != "" {
				opts.Cookies.ClearSession(w, r)
			}
			writeRedirect(w, r, redirectParams{
				Target:       d.Result.Path,
				Reason:       d.Result.Reason,
				ToLogin:      isLoginTarget(d.Result.Path, loginPath),
				Unauthorized: d.UnauthorizedRole,
			})
		})
	}
}

// canonicalRequest returns r with its path decoded and cleaned, so the path the gate
// classifies is the path the upstream receives. Percent-encoded letters or slashes
// would otherwise slip past the prefix tables and be decoded downstream.
func canonicalRequest(r *http.Request) *http.Request {
	clean := cleanPath(r.URL.Path)
	if clean == r.URL.Path && r.URL.RawPath == "" {
		return r
	}
	out := r.Clone(r.Context())
	out.URL.Path = clean
	out.URL.RawPath = ""
	return out
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	clean := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}

func credentialRejected(reason access.Reason) bool {
	switch reason {
	case access.ReasonSessionExpired, access.ReasonInvalidToken, access.ReasonInvalidRole:
		return true
	}
	return false
}

func isLoginTarget(target, loginPath string) bool {
	return target == loginPath || strings.HasPrefix(target, loginPath+"?")
}

// redirectParams describes one redirect to deliver.
type redirectParams struct {
	Target       string
	Reason       access.Reason
	ToLogin      bool
	Unauthorized bool
}

// redirectBody is the JSON shape returned to API callers instead of a redirect.
type redirectBody struct {
	Error      string `json:"error"`
	RedirectTo string `json:"redirect_to"`
	Reason     string `json:"reason"`
}

// writeRedirect sends browsers a 303, htmx an Hx-Redirect and API callers a JSON body
// (401 when the target is the login page, 403 otherwise).
func writeRedirect(w http.ResponseWriter, r *http.Request, p redirectParams) {
	switch classifyResponse(r) {
	case responseHTMX:
		SetHXRedirect(w, p.Target)
		w.WriteHeader(http.StatusOK)
	case responseAPI:
		status, code := http.StatusForbidden, string(p.Reason)
		switch {
		case p.ToLogin:
			status = http.StatusUnauthorized
		case p.Unauthorized:
			code = "unauthorized_role"
		}
		WriteJSON(w, status, redirectBody{Error: code, RedirectTo: p.Target, Reason: string(p.Reason)})
	default:
		http.Redirect(w, r, p.Target, http.StatusSeeOther)
	}
}
