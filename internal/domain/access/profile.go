package access

import (
	"reflect"
	"slices"
	"strings"
	"time"

	domainauth "github.com/target/portal-access/internal/domain/auth"
)

// ProfileRecord is the subset of user data needed to evaluate completeness, keyed by field name.
type ProfileRecord map[string]any

// Completeness is the outcome of evaluating a profile against the gate.
type Completeness struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing"`
	// OptionalMissing lists role-specific fields that are absent. They never affect Complete.
	OptionalMissing []string `json:"optional_missing"`
}

// ProfileGate decides whether a profile satisfies the completeness requirement.
type ProfileGate struct {
	required []string
	optional map[domainauth.Role][]string
}

// NewProfileGate builds a gate from the required and per-role optional field tables.
func NewProfileGate(required []string, optional map[domainauth.Role][]string) *ProfileGate {
	g := &ProfileGate{
		required: slices.Clone(required),
		optional: make(map[domainauth.Role][]string, len(optional)),
	}
	for role, fields := range optional {
		g.optional[role] = slices.Clone(fields)
	}
	return g
}

// NewProfileGateFromPolicy builds a gate from the policy tables.
func NewProfileGateFromPolicy(p Policy) *ProfileGate {
	return NewProfileGate(p.RequiredProfileFields, p.OptionalProfileFields)
}

// Evaluate reports which required and optional fields are absent from profile.
// A nil profile is treated as empty.
func (g *ProfileGate) Evaluate(profile ProfileRecord, role domainauth.Role) Completeness {
	missing := missingFields(profile, g.required)
	return Completeness{
		Complete:        len(missing) == 0,
		Missing:         missing,
		OptionalMissing: missingFields(profile, g.optional[role]),
	}
}

// RequiredFields returns the required field names in table order.
func (g *ProfileGate) RequiredFields() []string {
	return slices.Clone(g.required)
}

// AllFields returns every field the gate reads: required fields in table order,
// then optional fields of each role in role order, without duplicates.
func (g *ProfileGate) AllFields() []string {
	out := slices.Clone(g.required)
	for _, role := range domainauth.AllRoles() {
		for _, f := range g.optional[role] {
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	return out
}

func missingFields(profile ProfileRecord, fields []string) []string {
	missing := make([]string, 0, len(fields))
	for _, f := range fields {
		if !Present(profile[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Present reports whether a profile value counts as filled in. Strings must be
// non-empty after trimming; nil pointers, empty collections and zero times are absent.
func Present(v any) bool {
	switch tv := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(tv) != ""
	case *string:
		return tv != nil && strings.TrimSpace(*tv) != ""
	case time.Time:
		return !tv.IsZero()
	case *time.Time:
		return tv != nil && !tv.IsZero()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Map, reflect.Slice:
		return rv.Len() > 0
	default:
		return true
	}
}
