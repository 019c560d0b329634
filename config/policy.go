package config

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed access_policy.yaml
var embeddedAccessPolicy []byte

// AccessPolicyDocument returns the raw access policy YAML: the file named by
// PolicyFile when set, otherwise the embedded default.
func (a AccessConfig) AccessPolicyDocument() ([]byte, error) {
	if a.PolicyFile == "" {
		return embeddedAccessPolicy, nil
	}
	b, err := os.ReadFile(a.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("read access policy %s: %w", a.PolicyFile, err)
	}
	return b, nil
}
