package config

import (
	"fmt"
	"slices"
	"strings"
)

// AuthMode selects the identity provider: a real OIDC IdP or the built-in dev identity.
type AuthMode string

const (
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock signs everyone in as DevAuthConfig. Never enable it in production.
	AuthModeMock AuthMode = "mock"
)

func (a *AuthMode) UnmarshalText(text []byte) error {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(string(text)))); m {
	case AuthModeOAuth, AuthModeMock:
		*a = m
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", m)
	}
}

// OAuthConfig is the client registration at the IdP.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"portal-access"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"portal-access"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// Missing lists the OAUTH_* variables that must be set but are empty.
func (o OAuthConfig) Missing() []string {
	var out []string
	for _, f := range []struct{ name, val string }{
		{"OAUTH_DISCOVERY_URL", o.DiscoveryURL},
		{"OAUTH_CLIENT_ID", o.ClientID},
		{"OAUTH_CLIENT_SECRET", o.ClientSecret},
		{"OAUTH_REDIRECT_URL", o.RedirectURL},
	} {
		if strings.TrimSpace(f.val) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

// Validate reports the first reason this registration cannot serve logins. The
// session credential is the id_token, so the scope must request one.
func (o OAuthConfig) Validate() error {
	if missing := o.Missing(); len(missing) > 0 {
		return fmt.Errorf("oauth mode requires %s", strings.Join(missing, ", "))
	}
	if !slices.Contains(strings.Fields(o.Scope), "openid") {
		return fmt.Errorf("OAUTH_SCOPE %q must include openid", o.Scope)
	}
	return nil
}

// DevAuthConfig is the identity every AUTH_MODE=mock login resolves to.
type DevAuthConfig struct {
	UserID    string `env:"USER_ID"    envDefault:"dev-user"`
	Email     string `env:"EMAIL"      envDefault:"dev@example.com"`
	FirstName string `env:"FIRST_NAME" envDefault:"Dev"`
	LastName  string `env:"LAST_NAME"  envDefault:"User"`
	Role      string `env:"ROLE"       envDefault:"Patient"`
	ClinicID  string `env:"CLINIC_ID"`
}

// AuthConfig covers login and role assignment.
type AuthConfig struct {
	Mode    AuthMode      `env:"AUTH_MODE" envDefault:"oauth"`
	OAuth   OAuthConfig   `envPrefix:"OAUTH_"`
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// RoleClaim names the ID token claim carrying the portal role.
	RoleClaim string `env:"AUTH_ROLE_CLAIM" envDefault:"role"`

	// ClinicClaim names the ID token claim carrying the clinic identifier.
	ClinicClaim string `env:"AUTH_CLINIC_CLAIM" envDefault:"clinic_id"`

	// RoleGroups maps IdP group names to portal roles, used when the role claim is absent.
	// Format: "group=Role;group2=Role2".
	RoleGroups map[string]string `env:"AUTH_ROLE_GROUPS" envSeparator:";" envKeyValSeparator:"="`
}

// Sanitize trims claim names and drops blank group mappings.
func (a *AuthConfig) Sanitize() {
	if a.RoleClaim = strings.TrimSpace(a.RoleClaim); a.RoleClaim == "" {
		a.RoleClaim = "role"
	}
	a.ClinicClaim = strings.TrimSpace(a.ClinicClaim)
	for g, r := range a.RoleGroups {
		tg, tr := strings.TrimSpace(g), strings.TrimSpace(r)
		if tg != g || tr != r || tg == "" || tr == "" {
			delete(a.RoleGroups, g)
			if tg != "" && tr != "" {
				a.RoleGroups[tg] = tr
			}
		}
	}
}
