package config

import "strings"

// AccessConfig controls the access policy tables and gate behavior.
type AccessConfig struct {
	// PolicyFile overrides the embedded access_policy.yaml.
	PolicyFile string `env:"ACCESS_POLICY_FILE"`

	// DenyUnclassified treats paths outside every table as protected for all roles.
	DenyUnclassified bool `env:"ACCESS_DENY_UNCLASSIFIED" envDefault:"false"`
}

// Sanitize trims the policy file path.
func (a *AccessConfig) Sanitize() {
	a.PolicyFile = strings.TrimSpace(a.PolicyFile)
}
