package auth

// Role is the capability level a session carries. Roles form a closed set with no
// hierarchy; each maps to exactly one default landing path.
type Role string

const (
	RoleSuperAdmin   Role = "SuperAdmin"
	RoleClinicAdmin  Role = "ClinicAdmin"
	RoleDoctor       Role = "Doctor"
	RoleReceptionist Role = "Receptionist"
	RolePharmacist   Role = "Pharmacist"
	RolePatient      Role = "Patient"
)

// DefaultRole is the least-privileged role, used whenever a role string is not recognized.
const DefaultRole = RolePatient

// AllRoles lists every valid role in declaration order.
func AllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleClinicAdmin,
		RoleDoctor,
		RoleReceptionist,
		RolePharmacist,
		RolePatient,
	}
}

// Valid reports whether r is a member of the role set.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleClinicAdmin, RoleDoctor, RoleReceptionist, RolePharmacist, RolePatient:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// ResolveRole returns raw as a Role when it names a member of the role set and
// DefaultRole otherwise. It never fails.
func ResolveRole(raw string) Role {
	if r := Role(raw); r.Valid() {
		return r
	}
	return DefaultRole
}
