package authroles

import (
	"strings"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

// StaticRoleMapper resolves the portal role from the identity's role claim, falling back
// to group membership rules when the IdP issues no role claim.
type StaticRoleMapper struct {
	// GroupRoles maps an IdP group name to a portal role name.
	GroupRoles map[string]string
}

// NewStaticRoleMapper builds a mapper from a group→role table, skipping entries whose
// role is not a portal role.
func NewStaticRoleMapper(groups map[string]string) StaticRoleMapper {
	cleaned := make(map[string]string, len(groups))
	for g, r := range groups {
		if domainauth.Role(r).Valid() {
			cleaned[g] = r
		}
	}
	return StaticRoleMapper{GroupRoles: cleaned}
}

func (m StaticRoleMapper) Map(id domainauth.Identity) domainauth.Role {
	if raw := strings.TrimSpace(id.RawRole); raw != "" {
		return domainauth.ResolveRole(raw)
	}
	// Groups are checked in the order the IdP lists them.
	for _, g := range id.Groups {
		if r, ok := m.GroupRoles[g]; ok {
			return domainauth.ResolveRole(r)
		}
	}
	return domainauth.DefaultRole
}
