package httpx

import (
	"net/http"
	"strings"
)

// responseKind is how a redirect decision is delivered to the caller.
type responseKind int

const (
	responseBrowser responseKind = iota
	responseHTMX
	responseAPI
)

func (k responseKind) String() string {
	switch k {
	case responseHTMX:
		return "htmx"
	case responseAPI:
		return "api"
	default:
		return "browser"
	}
}

// classifyResponse picks the delivery for r. Paths under /api/, XHR callers and
// callers accepting JSON but not HTML get JSON. htmx gets Hx-Redirect.
func classifyResponse(r *http.Request) responseKind {
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/"):
		return responseAPI
	case IsHTMX(r):
		return responseHTMX
	case strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest"):
		return responseAPI
	}
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html") {
		return responseAPI
	}
	return responseBrowser
}

// IsHTMX reports whether htmx sent the request.
func IsHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Hx-Request"), "true")
}

// SetHXRedirect makes htmx do a full page navigation to target.
func SetHXRedirect(w http.ResponseWriter, target string) {
	w.Header().Set("Hx-Redirect", target)
}
