package access

import (
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

// RouteKind tags a path with one of four mutually exclusive classes.
type RouteKind int

const (
	Unclassified RouteKind = iota
	PublicAuthPath
	ProfileCompletionPath
	RoleScopedPath
)

func (k RouteKind) String() string {
	switch k {
	case PublicAuthPath:
		return "public_auth"
	case ProfileCompletionPath:
		return "profile_completion"
	case RoleScopedPath:
		return "role_scoped"
	default:
		return "unclassified"
	}
}

// Classification is the result of classifying a path.
type Classification struct {
	Kind RouteKind
	// Prefix is the role-scoped table entry that matched, if any.
	Prefix       string
	AllowedRoles []domainauth.Role
}

// Allows reports whether role may open a path with this classification.
// Only role-scoped paths restrict by role.
func (c Classification) Allows(role domainauth.Role) bool {
	if c.Kind != RoleScopedPath {
		return true
	}
	return slices.Contains(c.AllowedRoles, role)
}

type scopedPrefix struct {
	prefix string
	roles  []domainauth.Role
}

// Classifier maps request paths to a Classification using the policy tables.
type Classifier struct {
	authPaths   []string
	profilePath string
	scoped      []scopedPrefix // longest prefix first
}

// NewClassifier builds a Classifier after checking the role-scoped table invariants.
func NewClassifier(p Policy) (*Classifier, error) {
	if err := validateRoleScopedPrefixes(p.RoleScopedPrefixes); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	return newClassifier(p), nil
}

func newClassifier(p Policy) *Classifier {
	c := &Classifier{
		authPaths:   slices.Clone(p.AuthPaths),
		profilePath: p.ProfileCompletionPath,
		scoped:      make([]scopedPrefix, 0, len(p.RoleScopedPrefixes)),
	}
	for prefix, roles := range p.RoleScopedPrefixes {
		c.scoped = append(c.scoped, scopedPrefix{prefix: prefix, roles: slices.Clone(roles)})
	}
	sort.Slice(c.scoped, func(i, j int) bool {
		if len(c.scoped[i].prefix) != len(c.scoped[j].prefix) {
			return len(c.scoped[i].prefix) > len(c.scoped[j].prefix)
		}
		return c.scoped[i].prefix < c.scoped[j].prefix
	})
	return c
}

// Classify returns the classification of path. Any query or fragment is ignored.
func (c *Classifier) Classify(path string) Classification {
	p := pathOnly(path)
	if c.isAuth(p) {
		return Classification{Kind: PublicAuthPath}
	}
	if p == c.profilePath {
		return Classification{Kind: ProfileCompletionPath}
	}
	for _, sp := range c.scoped {
		if strings.HasPrefix(p, sp.prefix) {
			return Classification{
				Kind:         RoleScopedPath,
				Prefix:       sp.prefix,
				AllowedRoles: slices.Clone(sp.roles),
			}
		}
	}
	return Classification{Kind: Unclassified}
}

// IsAuthPath reports whether path falls in the public auth space.
func (c *Classifier) IsAuthPath(path string) bool {
	return c.isAuth(pathOnly(path))
}

func (c *Classifier) isAuth(p string) bool {
	for _, ap := range c.authPaths {
		if strings.HasPrefix(p, ap) {
			return true
		}
	}
	return false
}

// pathOnly strips the query and fragment from a request target and decodes the
// rest, so "/%64octor" matches the same prefixes as "/doctor".
func pathOnly(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if strings.Contains(target, "%") {
		if decoded, err := url.PathUnescape(target); err == nil {
			return decoded
		}
	}
	return target
}
