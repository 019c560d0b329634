package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/target/portal-access/config"
	"github.com/target/portal-access/internal/domain/access"
	domainauth "github.com/target/portal-access/internal/domain/auth"
	"gopkg.in/yaml.v3"
)

// policyDocument is the YAML layout of the access policy tables.
type policyDocument struct {
	LoginPath             string                       `yaml:"login_path"`
	HomePath              string                       `yaml:"home_path"`
	ProfileCompletionPath string                       `yaml:"profile_completion_path"`
	SignedOutPath         string                       `yaml:"signed_out_path"`
	AuthPaths             []string                     `yaml:"auth_paths"`
	RoleScopedPrefixes    map[string][]domainauth.Role `yaml:"role_scoped_prefixes"`
	RoleDefaultPaths      map[domainauth.Role]string   `yaml:"role_default_paths"`
	RequiredProfileFields []string                     `yaml:"required_profile_fields"`
	OptionalProfileFields map[domainauth.Role][]string `yaml:"optional_profile_fields"`
	AppOrigin             string                       `yaml:"app_origin"`
}

func (d policyDocument) policy() access.Policy {
	return access.Policy{
		LoginPath:             d.LoginPath,
		HomePath:              d.HomePath,
		ProfileCompletionPath: d.ProfileCompletionPath,
		SignedOutPath:         d.SignedOutPath,
		AuthPaths:             d.AuthPaths,
		RoleScopedPrefixes:    d.RoleScopedPrefixes,
		RoleDefaultPaths:      d.RoleDefaultPaths,
		RequiredProfileFields: d.RequiredProfileFields,
		OptionalProfileFields: d.OptionalProfileFields,
		AppOrigin:             d.AppOrigin,
	}
}

// ParsePolicy decodes a policy document. Unknown keys are rejected so a typo in a
// table name cannot silently drop a rule. The result is not validated; NewResolver does that.
func ParsePolicy(doc []byte) (access.Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)

	var d policyDocument
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return access.Policy{}, errors.New("access policy document is empty")
		}
		return access.Policy{}, fmt.Errorf("decode access policy: %w", err)
	}
	return d.policy(), nil
}

// LoadPolicy reads the configured policy document and fills AppOrigin from the
// portal base URL when the document leaves it empty.
func LoadPolicy(cfg config.AppConfig) (access.Policy, error) {
	doc, err := cfg.Access.AccessPolicyDocument()
	if err != nil {
		return access.Policy{}, err
	}
	p, err := ParsePolicy(doc)
	if err != nil {
		return access.Policy{}, err
	}
	if p.AppOrigin == "" {
		p.AppOrigin = cfg.HTTP.BaseURL
	}
	return p, nil
}

// BuildAccess loads and validates the access policy and returns the resolver and the
// profile gate built from the same tables.
func BuildAccess(cfg config.AppConfig) (*access.Resolver, *access.ProfileGate, error) {
	p, err := LoadPolicy(cfg)
	if err != nil {
		return nil, nil, err
	}
	r, err := access.NewResolver(p)
	if err != nil {
		return nil, nil, err
	}
	return r, access.NewProfileGateFromPolicy(p), nil
}
