package authroles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/portal-access/internal/domain/auth"
)

func TestStaticRoleMapper_Map(t *testing.T) {
	mapper := NewStaticRoleMapper(map[string]string{
		"doctors":    "Doctor",
		"front-desk": "Receptionist",
		"bogus":      "Janitor",
	})

	tests := []struct {
		name string
		id   domainauth.Identity
		want domainauth.Role
	}{
		{name: "role claim wins", id: domainauth.Identity{RawRole: "Pharmacist", Groups: []string{"doctors"}}, want: domainauth.RolePharmacist},
		{name: "unknown role claim coerced", id: domainauth.Identity{RawRole: "Nurse"}, want: domainauth.RolePatient},
		{name: "first matching group", id: domainauth.Identity{Groups: []string{"other", "front-desk", "doctors"}}, want: domainauth.RoleReceptionist},
		{name: "invalid group role dropped", id: domainauth.Identity{Groups: []string{"bogus"}}, want: domainauth.RolePatient},
		{name: "nothing known", id: domainauth.Identity{}, want: domainauth.RolePatient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapper.Map(tt.id))
		})
	}
}
