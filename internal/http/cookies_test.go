package httpx

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	apperrors "github.com/target/portal-access/internal/errors"
)

func TestCookieConfig_Secure(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	forwarded := httptest.NewRequest(http.MethodGet, "/", nil)
	forwarded.Header.Set("X-Forwarded-Proto", "https")
	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.TLS = &tls.ConnectionState{}

	assert.False(t, CookieConfig{}.secure(plain))
	assert.True(t, CookieConfig{Secure: true}.secure(plain))
	assert.True(t, CookieConfig{}.secure(forwarded))
	assert.True(t, CookieConfig{}.secure(direct))
}

func TestCookieConfig_WriteSession(t *testing.T) {
	cfg := CookieConfig{Domain: "example.com", Secure: true}
	rec := httptest.NewRecorder()
	sess := domainauth.Session{
		ID:        "s-1",
		UserID:    "u-1",
		FirstName: "Ana, María",
		Email:     "ana@example.com",
		Role:      domainauth.RoleSuperAdmin,
	}

	cfg.WriteSession(rec, httptest.NewRequest(http.MethodGet, "/", nil), sess, "tok")

	byName := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		byName[c.Name] = c
	}
	require.Len(t, byName, 4)
	for name, c := range byName {
		assert.Equal(t, "example.com", c.Domain, name)
		assert.True(t, c.Secure, name)
		assert.Equal(t, "/", c.Path, name)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite, name)
		assert.Equal(t, name != CookieUserData, c.HttpOnly, name)
	}
	assert.Equal(t, "SuperAdmin", byName[CookieUserRole].Value)
	assert.Contains(t, decodeCookieValue(byName[CookieUserData].Value), `"firstName":"Ana, María"`)
}

func TestCookieValueRoundTrip(t *testing.T) {
	for _, in := range []string{"/patient/dashboard?tab=a b", `{"a":"b;c"}`, ""} {
		assert.Equal(t, in, decodeCookieValue(encodeCookieValue([]byte(in))))
	}
	assert.Empty(t, decodeCookieValue("%zz"))
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		err  error
		want int
		msg  string
	}{
		{apperrors.ValidationField("user_id", "user ID cannot be empty"), http.StatusBadRequest, "user ID cannot be empty"},
		{apperrors.Unavailable(errors.New("dial tcp: refused"), "profile source unavailable"), http.StatusServiceUnavailable, "profile source unavailable"},
		{fmt.Errorf("save session: %w", errors.New("redis: connection reset")), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		WriteAppError(rec, "profile_refresh_failed", tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
		assert.JSONEq(t, fmt.Sprintf(`{"error":"profile_refresh_failed","message":%q}`, tt.msg), rec.Body.String())
	}
}
