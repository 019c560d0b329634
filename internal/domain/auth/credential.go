package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// CredentialHandle returns the value stored on a session in place of the access token.
// An empty token has an empty handle.
func CredentialHandle(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MatchesCredential reports whether token is the credential the session was issued for.
// Sessions without a handle match nothing.
func (s Session) MatchesCredential(token string) bool {
	if s.CredentialHandle == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.CredentialHandle), []byte(CredentialHandle(token))) == 1
}
