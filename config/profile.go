package config

import (
	"fmt"
	"strings"
	"time"
)

// ProfileSourceKind selects where profile records are read from.
type ProfileSourceKind string

const (
	// ProfileSourceAPI reads profiles from the portal's profile HTTP API.
	ProfileSourceAPI ProfileSourceKind = "api"
	// ProfileSourcePostgres reads profiles from the user_profiles table.
	ProfileSourcePostgres ProfileSourceKind = "postgres"
	// ProfileSourceStatic serves a fixed record (development only).
	ProfileSourceStatic ProfileSourceKind = "static"
)

// UnmarshalText implements encoding.TextUnmarshaler for ProfileSourceKind.
func (k *ProfileSourceKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch ProfileSourceKind(v) {
	case ProfileSourceAPI, ProfileSourcePostgres, ProfileSourceStatic:
		*k = ProfileSourceKind(v)
		return nil
	default:
		return fmt.Errorf("invalid ProfileSourceKind: %q (valid options: api, postgres, static)", v)
	}
}

// ProfileAPIConfig configures the HTTP profile source.
type ProfileAPIConfig struct {
	// URL is the base endpoint; the user ID is appended as the last path segment.
	URL   string `env:"URL"`
	Token string `env:"TOKEN"`

	// Root is a JMESPath expression selecting the profile object in the response body.
	Root string `env:"ROOT" envDefault:"data"`

	// Fields overrides the JMESPath expression per profile field, evaluated against Root.
	// Format: "phone=contact.phone;address=contact.address.line1".
	Fields map[string]string `env:"FIELDS" envSeparator:";" envKeyValSeparator:"="`

	Timeout time.Duration `env:"TIMEOUT" envDefault:"3s"`

	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32        `env:"BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
}

// ProfileConfig groups profile source configuration.
type ProfileConfig struct {
	Source ProfileSourceKind `env:"PROFILE_SOURCE" envDefault:"static"`

	API ProfileAPIConfig `envPrefix:"PROFILE_API_"`

	// Static is the record served by the static source. Format: "firstName=Dev;phone=555".
	Static map[string]string `env:"PROFILE_STATIC" envSeparator:";" envKeyValSeparator:"="`
}

// Sanitize applies guardrails to profile configuration.
func (p *ProfileConfig) Sanitize() {
	p.API.URL = strings.TrimRight(strings.TrimSpace(p.API.URL), "/")
	p.API.Root = strings.TrimSpace(p.API.Root)
	if p.API.Timeout <= 0 {
		p.API.Timeout = 3 * time.Second
	}
	if p.API.BreakerFailures == 0 {
		p.API.BreakerFailures = 5
	}
	if p.API.BreakerCooldown <= 0 {
		p.API.BreakerCooldown = 30 * time.Second
	}
	if p.Source == "" {
		p.Source = ProfileSourceStatic
	}
}
