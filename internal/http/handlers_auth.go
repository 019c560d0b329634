package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/observability/metrics"
	"github.com/target/portal-access/internal/service"
)

// AuthServiceInterface defines the auth operations the handlers depend on.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	ProfileStatus(ctx context.Context, sess domainauth.Session) access.Completeness
	RefreshProfile(ctx context.Context, sess domainauth.Session) (domainauth.Session, access.Completeness, error)
	Logout(ctx context.Context, sessionID string) error
}

// loginRecorder receives one metric per auth flow step.
type loginRecorder interface {
	Login(in metrics.LoginMetric)
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc      AuthServiceInterface
	Access   *service.AccessService
	Sessions CookieSessionSource
	Cookies  CookieConfig
	Recorder loginRecorder
	Logger   *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) record(step string, err error) {
	if h.Recorder == nil {
		return
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	h.Recorder.Login(metrics.LoginMetric{Step: step, Result: result, Err: err})
}

// Login begins the IdP flow, remembering callbackUrl for the callback.
// A caller who already holds a valid session is sent straight to their destination.
// GET /auth/login?callbackUrl=<target>&error=<code>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	callback := q.Get(access.ParamCallbackURL)

	if q.Get(access.ParamError) == "" {
		if state := h.Sessions.Load(r.Context(), r); state.Authenticated {
			res := h.Access.AfterLogin(r.Context(), state.Session, callback, "")
			writeRedirect(w, r, redirectParams{Target: res.Path, Reason: res.Reason})
			return
		}
	}

	target, ok := h.Access.Resolver().SafeTarget(callback)
	if !ok {
		target = ""
	}

	result, err := h.Svc.BeginLogin(r.Context(), firstNonEmpty(target, "/"))
	h.record("login", err)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteProblem(w, http.StatusBadGateway, "login_failed", "identity provider unavailable")
		return
	}

	h.Cookies.writeFlow(w, r, flowCookies{State: result.State, Nonce: result.Nonce, Callback: target})

	if IsHTMX(r) {
		SetHXRedirect(w, result.AuthURL)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes the IdP flow, writes the session cookies and sends the caller on.
// GET /auth/callback?code=<code>&state=<state>[&redirect_to=<target>].
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	flow := h.Cookies.readFlow(r)
	h.Cookies.clearFlow(w, r)

	if idpErr := q.Get("error"); idpErr != "" {
		h.logger().WarnContext(r.Context(), "identity provider returned an error",
			"error", idpErr,
			"description", q.Get("error_description"),
		)
		h.record("callback", errors.New(idpErr))
		h.loginFailed(w, r, flow.Callback)
		return
	}

	code, state := q.Get("code"), q.Get("state")
	switch {
	case code == "":
		WriteProblem(w, http.StatusBadRequest, "missing_code", "authorization code is required")
		return
	case state == "":
		WriteProblem(w, http.StatusBadRequest, "missing_state", "state parameter is required")
		return
	case flow.State == "" || flow.State != state:
		WriteProblem(w, http.StatusBadRequest, "invalid_state", "invalid or missing state parameter")
		return
	case flow.Nonce == "":
		WriteProblem(w, http.StatusBadRequest, "missing_nonce", "missing nonce parameter")
		return
	}

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: flow.Nonce,
	})
	h.record("callback", err)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "login completion failed", "error", err)
		h.loginFailed(w, r, flow.Callback)
		return
	}

	h.Cookies.WriteSession(w, r, result.Session, result.AccessToken)

	suggested := firstNonEmpty(result.RedirectTo, q.Get("redirect_to"))
	res := h.Access.AfterLogin(r.Context(), &result.Session, flow.Callback, suggested)
	writeRedirect(w, r, redirectParams{Target: res.Path, Reason: res.Reason})
}

// loginFailed sends the caller back to the login page with invalid_token.
func (h *AuthHandlers) loginFailed(w http.ResponseWriter, r *http.Request, callback string) {
	res := h.Access.SessionFailure(r.Context(), callback, access.ErrorInvalidToken)
	writeRedirect(w, r, redirectParams{Target: res.Path, Reason: res.Reason, ToLogin: true})
}

// Logout deletes the session, clears every session cookie and sends the caller to the
// signed-out page. AJAX and htmx callers get JSON.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	var err error
	if sid := cookieValue(r, CookieSessionID); sid != "" {
		if err = h.Svc.Logout(r.Context(), sid); err != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", err)
		}
	}
	h.record("logout", err)
	h.Cookies.ClearSession(w, r)

	res := h.Access.AfterLogout(r.Context())
	if classifyResponse(r) != responseBrowser {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": res.Path,
		})
		return
	}
	http.Redirect(w, r, res.Path, http.StatusSeeOther)
}

// statusUser is the user block of the status response.
type statusUser struct {
	ID        string          `json:"id"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Email     string          `json:"email"`
	ClinicID  string          `json:"clinicId,omitempty"`
	Role      domainauth.Role `json:"role"`
}

type statusResponse struct {
	Authenticated   bool            `json:"authenticated"`
	Error           string          `json:"error,omitempty"`
	User            *statusUser     `json:"user,omitempty"`
	Role            domainauth.Role `json:"role,omitempty"`
	ProfileComplete *bool           `json:"profile_complete,omitempty"`
	ExpiresAt       string          `json:"expires_at,omitempty"`
}

// Status reports the caller's authentication state.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	state := h.Sessions.Load(r.Context(), r)
	if !state.Authenticated {
		if state.ErrorCode != "" {
			h.Cookies.ClearSession(w, r)
		}
		WriteJSON(w, http.StatusOK, statusResponse{Error: state.ErrorCode})
		return
	}

	sess := state.Session
	complete := sess.ProfileComplete
	resp := statusResponse{
		Authenticated: true,
		User: &statusUser{
			ID:        sess.UserID,
			FirstName: sess.FirstName,
			LastName:  sess.LastName,
			Email:     sess.Email,
			ClinicID:  sess.ClinicID,
			Role:      sess.Role,
		},
		Role:            sess.Role,
		ProfileComplete: &complete,
	}
	if !sess.ExpiresAt.IsZero() {
		resp.ExpiresAt = sess.ExpiresAt.UTC().Format(time.RFC3339)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
