package config

import (
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the public origin of the portal (e.g., "https://portal.example.com").
	// Absolute redirect targets on this origin are accepted.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// ShareCookiesAcrossSubdomains derives CookieDomain from BaseURL's registrable domain
	// when CookieDomain is empty.
	ShareCookiesAcrossSubdomains bool `env:"APP_COOKIE_SHARE_SUBDOMAINS" envDefault:"false"`

	// SecureCookies forces the Secure attribute on every cookie.
	SecureCookies bool `env:"APP_SECURE_COOKIES" envDefault:"false"`

	// UpstreamURL is the portal front end that allowed requests are proxied to.
	// Empty serves a JSON placeholder instead.
	UpstreamURL string `env:"UPSTREAM_URL" envDefault:""`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.UpstreamURL = strings.TrimSpace(h.UpstreamURL)
	h.CookieDomain = strings.TrimSpace(h.CookieDomain)
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
	if h.CookieDomain == "" && h.ShareCookiesAcrossSubdomains {
		h.CookieDomain = registrableDomain(h.BaseURL)
	}
}

// registrableDomain returns eTLD+1 of rawURL's host, or "" for hosts without one
// (localhost, IP literals).
func registrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil {
		return ""
	}
	return d
}
