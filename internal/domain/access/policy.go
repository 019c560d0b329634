// Package access implements the portal's access decision engine: route classification,
// profile completeness and redirect resolution. Everything here is pure and safe for
// concurrent use once constructed.
package access

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

// Policy holds the static routing tables that ship with a deployment.
type Policy struct {
	LoginPath             string
	HomePath              string
	ProfileCompletionPath string
	// SignedOutPath is where callers land after logout. It must be an auth path.
	SignedOutPath string

	AuthPaths             []string
	RoleScopedPrefixes    map[string][]domainauth.Role
	RoleDefaultPaths      map[domainauth.Role]string
	RequiredProfileFields []string
	OptionalProfileFields map[domainauth.Role][]string

	// AppOrigin is the portal's own scheme://host. Absolute redirect targets on this
	// origin are accepted and reduced to their path. Empty means relative targets only.
	AppOrigin string
}

// DefaultPolicy returns the tables used by the portal out of the box.
func DefaultPolicy() Policy {
	return Policy{
		LoginPath:             "/auth/login",
		HomePath:              "/",
		ProfileCompletionPath: "/profile-completion",
		SignedOutPath:         "/auth/signed-out",
		AuthPaths: []string{
			"/auth/login",
			"/auth/register",
			"/auth/forgot-password",
			"/auth/reset-password",
			"/auth/verify-otp",
			"/auth/callback",
			"/auth/signed-out",
		},
		RoleScopedPrefixes: map[string][]domainauth.Role{
			"/super-admin":  {domainauth.RoleSuperAdmin},
			"/clinic-admin": {domainauth.RoleClinicAdmin},
			"/doctor":       {domainauth.RoleDoctor},
			"/receptionist": {domainauth.RoleReceptionist},
			"/pharmacist":   {domainauth.RolePharmacist},
			"/patient":      {domainauth.RolePatient},
		},
		RoleDefaultPaths: map[domainauth.Role]string{
			domainauth.RoleSuperAdmin:   "/super-admin/dashboard",
			domainauth.RoleClinicAdmin:  "/clinic-admin/dashboard",
			domainauth.RoleDoctor:       "/doctor/dashboard",
			domainauth.RoleReceptionist: "/receptionist/dashboard",
			domainauth.RolePharmacist:   "/pharmacist/dashboard",
			domainauth.RolePatient:      "/patient/dashboard",
		},
		RequiredProfileFields: []string{"firstName", "lastName", "phone", "dateOfBirth", "gender", "address"},
		OptionalProfileFields: map[domainauth.Role][]string{
			domainauth.RoleDoctor:      {"specialization", "licenseNumber"},
			domainauth.RoleClinicAdmin: {"clinicName", "clinicAddress"},
		},
	}
}

// Validate checks the static invariants of the tables. A policy that fails validation
// would produce redirect loops or ambiguous classifications and must not be served.
func (p Policy) Validate() error {
	var errs []error

	for name, path := range map[string]string{
		"login path":              p.LoginPath,
		"home path":               p.HomePath,
		"profile completion path": p.ProfileCompletionPath,
	} {
		if err := validateTablePath(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if p.SignedOutPath != "" {
		if err := validateTablePath(p.SignedOutPath); err != nil {
			errs = append(errs, fmt.Errorf("signed-out path: %w", err))
		}
	}
	if len(p.AuthPaths) == 0 {
		errs = append(errs, errors.New("auth paths: at least one entry is required"))
	}
	for _, ap := range p.AuthPaths {
		if err := validateTablePath(ap); err != nil {
			errs = append(errs, fmt.Errorf("auth path %q: %w", ap, err))
		}
	}
	if err := validateRoleScopedPrefixes(p.RoleScopedPrefixes); err != nil {
		errs = append(errs, err)
	}
	if err := validateProfileFields(p.RequiredProfileFields); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseOrigin(p.AppOrigin); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	// Cross-table checks need a classifier over well-formed tables.
	c := newClassifier(p)
	if !c.IsAuthPath(p.LoginPath) {
		errs = append(errs, fmt.Errorf("login path %q must be covered by auth paths", p.LoginPath))
	}
	if p.SignedOutPath != "" && !c.IsAuthPath(p.SignedOutPath) {
		errs = append(errs, fmt.Errorf("signed-out path %q must be covered by auth paths", p.SignedOutPath))
	}
	if c.IsAuthPath(p.ProfileCompletionPath) {
		errs = append(errs, fmt.Errorf("profile completion path %q must not be an auth path", p.ProfileCompletionPath))
	}
	if cl := c.Classify(p.HomePath); cl.Kind == RoleScopedPath || cl.Kind == PublicAuthPath {
		errs = append(errs, fmt.Errorf("home path %q must be reachable by every role, got %s", p.HomePath, cl.Kind))
	}
	errs = append(errs, validateRoleDefaults(p, c)...)

	return errors.Join(errs...)
}

func validateRoleDefaults(p Policy, c *Classifier) []error {
	var errs []error
	for role, path := range p.RoleDefaultPaths {
		if !role.Valid() {
			errs = append(errs, fmt.Errorf("role default paths: unknown role %q", role))
			continue
		}
		if err := validateTablePath(path); err != nil {
			errs = append(errs, fmt.Errorf("default path for %s: %w", role, err))
			continue
		}
		// A default that the role cannot open would bounce the caller forever.
		cl := c.Classify(path)
		switch {
		case cl.Kind == PublicAuthPath:
			errs = append(errs, fmt.Errorf("default path for %s (%q) is an auth path", role, path))
		case cl.Kind == ProfileCompletionPath:
			errs = append(errs, fmt.Errorf("default path for %s (%q) is the profile completion path", role, path))
		case !cl.Allows(role):
			errs = append(errs, fmt.Errorf("default path for %s (%q) is scoped to %v", role, path, cl.AllowedRoles))
		}
	}
	return errs
}

func validateRoleScopedPrefixes(table map[string][]domainauth.Role) error {
	var errs []error
	prefixes := make([]string, 0, len(table))
	for prefix, roles := range table {
		prefixes = append(prefixes, prefix)
		if err := validateTablePath(prefix); err != nil {
			errs = append(errs, fmt.Errorf("role-scoped prefix %q: %w", prefix, err))
		}
		if len(roles) == 0 {
			errs = append(errs, fmt.Errorf("role-scoped prefix %q: no roles allowed", prefix))
		}
		for _, r := range roles {
			if !r.Valid() {
				errs = append(errs, fmt.Errorf("role-scoped prefix %q: unknown role %q", prefix, r))
			}
		}
	}
	sort.Strings(prefixes)

	// Nested prefixes must agree on their role sets, otherwise the winner depends on
	// match order rather than on the table.
	for i, a := range prefixes {
		for _, b := range prefixes[i+1:] {
			if !strings.HasPrefix(a, b) && !strings.HasPrefix(b, a) {
				continue
			}
			if !sameRoles(table[a], table[b]) {
				errs = append(errs, fmt.Errorf(
					"role-scoped prefixes %q and %q overlap with different roles (%v vs %v)",
					a, b, table[a], table[b]))
			}
		}
	}
	return errors.Join(errs...)
}

func validateProfileFields(fields []string) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return errors.New("required profile fields: empty field name")
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("required profile fields: duplicate %q", f)
		}
		seen[f] = struct{}{}
	}
	return nil
}

func validateTablePath(p string) error {
	switch {
	case p == "":
		return errors.New("must not be empty")
	case !strings.HasPrefix(p, "/"), strings.HasPrefix(p, "//"):
		return fmt.Errorf("%q must be an absolute path", p)
	case strings.ContainsAny(p, "?#\\"):
		return fmt.Errorf("%q must not carry a query, fragment or backslash", p)
	}
	return nil
}

func parseOrigin(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("app origin: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("app origin %q must be an http(s) scheme and host", raw)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.User != nil {
		return nil, fmt.Errorf("app origin %q must not carry a path, query or credentials", raw)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

func sameRoles(a, b []domainauth.Role) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}
