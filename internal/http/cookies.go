package httpx

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

// Cookie names shared with the portal frontend.
const (
	CookieAccessToken = "access_token"
	CookieSessionID   = "session_id"
	CookieUserRole    = "user_role"
	CookieUserData    = "user_data"

	cookieOAuthState = "oauth_state"
	cookieOAuthNonce = "oauth_nonce"
	cookieCallback   = "post_login_callback"
)

const (
	sessionCookieMaxAge = 7 * 24 * 60 * 60
	flowCookieMaxAge    = 10 * 60
)

// CookieConfig controls the attributes of every cookie the gateway writes.
type CookieConfig struct {
	Domain string
	// Secure forces the Secure attribute; otherwise it follows the request scheme.
	Secure bool
}

// userData is the non-sensitive display payload readable by frontend scripts.
type userData struct {
	ID        string          `json:"id"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Email     string          `json:"email"`
	Role      domainauth.Role `json:"role"`
}

func (c CookieConfig) secure(r *http.Request) bool {
	return c.Secure || r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (c CookieConfig) cookie(r *http.Request, name, value string, maxAge int, httpOnly bool) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: httpOnly,
		Secure:   c.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
	if maxAge < 0 {
		ck.Expires = time.Unix(0, 0).UTC()
	}
	return ck
}

// WriteSession sets the four session cookies. accessToken may be empty when only the
// session record changed, in which case the existing token cookie is left alone.
func (c CookieConfig) WriteSession(w http.ResponseWriter, r *http.Request, sess domainauth.Session, accessToken string) {
	if accessToken != "" {
		http.SetCookie(w, c.cookie(r, CookieAccessToken, accessToken, sessionCookieMaxAge, true))
	}
	http.SetCookie(w, c.cookie(r, CookieSessionID, sess.ID, sessionCookieMaxAge, true))
	http.SetCookie(w, c.cookie(r, CookieUserRole, string(sess.Role), sessionCookieMaxAge, true))

	payload, err := json.Marshal(userData{
		ID:        sess.UserID,
		FirstName: sess.FirstName,
		LastName:  sess.LastName,
		Email:     sess.Email,
		Role:      sess.Role,
	})
	if err != nil {
		return
	}
	http.SetCookie(w, c.cookie(r, CookieUserData, encodeCookieValue(payload), sessionCookieMaxAge, false))
}

// ClearSession expires every session cookie.
func (c CookieConfig) ClearSession(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{CookieAccessToken, CookieSessionID, CookieUserRole} {
		http.SetCookie(w, c.cookie(r, name, "", -1, true))
	}
	http.SetCookie(w, c.cookie(r, CookieUserData, "", -1, false))
}

// flowCookies are the short-lived values that tie a callback to the login that began it.
type flowCookies struct {
	State    string
	Nonce    string
	Callback string
}

func (c CookieConfig) writeFlow(w http.ResponseWriter, r *http.Request, f flowCookies) {
	http.SetCookie(w, c.cookie(r, cookieOAuthState, f.State, flowCookieMaxAge, true))
	http.SetCookie(w, c.cookie(r, cookieOAuthNonce, f.Nonce, flowCookieMaxAge, true))
	if f.Callback != "" {
		http.SetCookie(w, c.cookie(r, cookieCallback, encodeCookieValue([]byte(f.Callback)), flowCookieMaxAge, true))
	}
}

func (c CookieConfig) readFlow(r *http.Request) flowCookies {
	var f flowCookies
	if ck, err := r.Cookie(cookieOAuthState); err == nil {
		f.State = ck.Value
	}
	if ck, err := r.Cookie(cookieOAuthNonce); err == nil {
		f.Nonce = ck.Value
	}
	if ck, err := r.Cookie(cookieCallback); err == nil {
		f.Callback = decodeCookieValue(ck.Value)
	}
	return f
}

func (c CookieConfig) clearFlow(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{cookieOAuthState, cookieOAuthNonce, cookieCallback} {
		http.SetCookie(w, c.cookie(r, name, "", -1, true))
	}
}

// encodeCookieValue percent-encodes b so the value survives net/http cookie sanitizing
// and decodes with decodeURIComponent on the client.
func encodeCookieValue(b []byte) string { return url.PathEscape(string(b)) }

func decodeCookieValue(s string) string {
	out, err := url.PathUnescape(s)
	if err != nil {
		return ""
	}
	return out
}
