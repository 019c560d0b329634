package auth

// Package auth contains domain-level types for portal identities and sessions.
// It is pure and free of framework/adapter concerns.

import "time"

// Identity represents the verified principal returned by an IdP (password, OTP or social login).
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string // stable user identifier (sub)
	FirstName string
	LastName  string
	Email     string
	ClinicID  string
	// RawRole is the role claim as issued by the IdP; it is resolved with ResolveRole.
	RawRole string
	Groups  []string
	// AccessToken is the IdP access token. It is handed to the browser as a cookie and
	// only its hash is kept on the session.
	AccessToken string
	// RedirectTo is a destination suggested by the IdP response, if any.
	RedirectTo string
	ExpiresAt  time.Time // absolute expiry from IdP token
}

// Session is the server-side record for an authenticated portal user.
// ID is an opaque session identifier carried in the session_id cookie.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Email            string    `json:"email"`
	ClinicID         string    `json:"clinic_id,omitempty"`
	Role             Role      `json:"role"`
	ProfileComplete  bool      `json:"profile_complete"`
	CredentialHandle string    `json:"credential_handle"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Expired reports whether the session credential is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// DisplayName joins the identity name claims, falling back to the email.
func (s Session) DisplayName() string {
	switch {
	case s.FirstName != "" && s.LastName != "":
		return s.FirstName + " " + s.LastName
	case s.FirstName != "":
		return s.FirstName
	default:
		return s.Email
	}
}
