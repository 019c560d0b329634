package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/portal-access/internal/domain/auth"
)

func completeProfile() ProfileRecord {
	return ProfileRecord{
		"firstName":   "Grace",
		"lastName":    "Hopper",
		"phone":       "+1 555 0100",
		"dateOfBirth": time.Date(1906, 12, 9, 0, 0, 0, 0, time.UTC),
		"gender":      "female",
		"address":     "1 Navy Yard",
	}
}

func TestProfileGate_Complete(t *testing.T) {
	g := NewProfileGateFromPolicy(DefaultPolicy())

	res := g.Evaluate(completeProfile(), domainauth.RolePatient)
	assert.True(t, res.Complete)
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.OptionalMissing)
}

func TestProfileGate_WhitespaceIsAbsent(t *testing.T) {
	g := NewProfileGateFromPolicy(DefaultPolicy())

	p := completeProfile()
	p["phone"] = "   \t"
	p["address"] = ""
	empty := ""
	p["gender"] = &empty

	res := g.Evaluate(p, domainauth.RolePatient)
	assert.False(t, res.Complete)
	assert.Equal(t, []string{"phone", "gender", "address"}, res.Missing)
}

func TestProfileGate_NilProfile(t *testing.T) {
	g := NewProfileGateFromPolicy(DefaultPolicy())

	res := g.Evaluate(nil, domainauth.RoleDoctor)
	assert.False(t, res.Complete)
	assert.Equal(t, DefaultPolicy().RequiredProfileFields, res.Missing)
	assert.Equal(t, []string{"specialization", "licenseNumber"}, res.OptionalMissing)
}

func TestProfileGate_OptionalFieldsNeverAffectCompleteness(t *testing.T) {
	g := NewProfileGateFromPolicy(DefaultPolicy())

	res := g.Evaluate(completeProfile(), domainauth.RoleClinicAdmin)
	assert.True(t, res.Complete)
	assert.Equal(t, []string{"clinicName", "clinicAddress"}, res.OptionalMissing)

	p := completeProfile()
	p["clinicName"] = "Northside"
	res = g.Evaluate(p, domainauth.RoleClinicAdmin)
	assert.Equal(t, []string{"clinicAddress"}, res.OptionalMissing)
}

func TestProfileGate_Monotonic(t *testing.T) {
	g := NewProfileGateFromPolicy(DefaultPolicy())
	full := completeProfile()

	p := ProfileRecord{}
	prev := g.Evaluate(p, domainauth.RoleReceptionist)
	for _, field := range g.RequiredFields() {
		p[field] = full[field]
		cur := g.Evaluate(p, domainauth.RoleReceptionist)
		if prev.Complete {
			assert.True(t, cur.Complete, "adding %s must not make the profile incomplete", field)
		}
		assert.Less(t, len(cur.Missing), len(prev.Missing)+1)
		prev = cur
	}
	assert.True(t, prev.Complete)
}

func TestPresent(t *testing.T) {
	var nilTime *time.Time
	var nilInt *int
	n := 0

	assert.False(t, Present(nil))
	assert.False(t, Present(" "))
	assert.True(t, Present("x"))
	assert.False(t, Present(time.Time{}))
	assert.False(t, Present(nilTime))
	assert.False(t, Present(nilInt))
	assert.True(t, Present(&n))
	assert.True(t, Present(0))
	assert.True(t, Present(false))
	assert.False(t, Present([]string{}))
	assert.True(t, Present(map[string]any{"line1": "x"}))
}

func TestProfileGate_AllFields(t *testing.T) {
	g := NewProfileGate([]string{"firstName", "phone"}, map[domainauth.Role][]string{
		domainauth.RoleDoctor:      {"licenseNumber", "phone"},
		domainauth.RoleClinicAdmin: {"clinicName"},
	})
	// AllRoles lists ClinicAdmin before Doctor.
	assert.Equal(t, []string{"firstName", "phone", "clinicName", "licenseNumber"}, g.AllFields())
}
