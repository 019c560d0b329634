package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"github.com/target/portal-access/internal/service"
)

// ProfileHandlers serves the profile completion endpoints.
type ProfileHandlers struct {
	Svc      AuthServiceInterface
	Access   *service.AccessService
	Sessions CookieSessionSource
	Cookies  CookieConfig
	Gate     *access.ProfileGate
	Logger   *slog.Logger
}

func (h *ProfileHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// session returns the session attached by the gate, or loads it when the route is
// outside the gated tables.
func (h *ProfileHandlers) session(w http.ResponseWriter, r *http.Request) (*domainauth.Session, bool) {
	if sess, ok := SessionFromContext(r.Context()); ok {
		return sess, true
	}
	state := h.Sessions.Load(r.Context(), r)
	if state.Authenticated {
		return state.Session, true
	}

	code := firstNonEmpty(state.ErrorCode, access.ErrorSessionExpired)
	res := h.Access.SessionFailure(r.Context(), h.Access.Resolver().ProfileCompletionPath(), code)
	WriteJSON(w, http.StatusUnauthorized, redirectBody{
		Error:      code,
		RedirectTo: res.Path,
		Reason:     string(res.Reason),
	})
	return nil, false
}

type completenessResponse struct {
	Complete        bool     `json:"complete"`
	Missing         []string `json:"missing"`
	OptionalMissing []string `json:"optional_missing"`
	RequiredFields  []string `json:"required_fields,omitempty"`
	RedirectTo      string   `json:"redirect_to,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}

func newCompletenessResponse(c access.Completeness) completenessResponse {
	resp := completenessResponse{
		Complete:        c.Complete,
		Missing:         c.Missing,
		OptionalMissing: c.OptionalMissing,
	}
	if resp.Missing == nil {
		resp.Missing = []string{}
	}
	if resp.OptionalMissing == nil {
		resp.OptionalMissing = []string{}
	}
	return resp
}

// Status reports which profile fields are still missing.
// GET /profile-completion/status.
func (h *ProfileHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	resp := newCompletenessResponse(h.Svc.ProfileStatus(r.Context(), *sess))
	if h.Gate != nil {
		resp.RequiredFields = h.Gate.RequiredFields()
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Complete re-reads the profile after the frontend saved it, refreshes the session in
// place and sends the caller on to the page they were originally heading for.
// POST /profile-completion/complete?redirect=<target>.
func (h *ProfileHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	updated, completeness, err := h.Svc.RefreshProfile(r.Context(), *sess)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "profile refresh failed", "user_id", sess.UserID, "error", err)
		WriteAppError(w, "profile_refresh_failed", err)
		return
	}
	if updated.ProfileComplete != sess.ProfileComplete {
		h.Cookies.WriteSession(w, r, updated, "")
	}

	res := h.Access.AfterProfileCompletion(r.Context(), &updated, r.FormValue(access.ParamRedirect))

	switch classifyResponse(r) {
	case responseBrowser:
		http.Redirect(w, r, res.Path, http.StatusSeeOther)
	case responseHTMX:
		SetHXRedirect(w, res.Path)
		w.WriteHeader(http.StatusOK)
	default:
		resp := newCompletenessResponse(completeness)
		resp.RedirectTo = res.Path
		resp.Reason = string(res.Reason)
		WriteJSON(w, http.StatusOK, resp)
	}
}
