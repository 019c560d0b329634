package access

import (
	"net/url"
	"strings"
)

// redirectTargets accepts only same-origin redirect targets.
type redirectTargets struct {
	origin *url.URL
}

// normalize returns the target to redirect to and whether raw is acceptable.
// Relative paths are returned verbatim; absolute URLs on the app origin are
// reduced to their request URI. Everything else is rejected.
func (t redirectTargets) normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsRune(raw, '\\') || hasControl(raw) {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
			return "", false
		}
		return raw, true
	}

	// Scheme-relative references ("//host/x") are never same-origin by construction.
	if t.origin == nil || !u.IsAbs() || u.User != nil {
		return "", false
	}
	if !strings.EqualFold(u.Scheme, t.origin.Scheme) || !strings.EqualFold(u.Host, t.origin.Host) {
		return "", false
	}
	target := u.RequestURI()
	if u.Fragment != "" {
		target += "#" + u.EscapedFragment()
	}
	return target, true
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}

// withQuery appends key/value pairs to path in the given order. Slashes in values are
// left unescaped so nested paths stay readable.
func withQuery(path string, kv ...string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(kv[i]))
		b.WriteByte('=')
		b.WriteString(strings.ReplaceAll(url.QueryEscape(kv[i+1]), "%2F", "/"))
		sep = "&"
	}
	return b.String()
}
