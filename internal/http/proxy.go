package httpx

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// identityHeaders are set from the gated session and never trusted from the client.
var identityHeaders = []string{"X-Portal-User-Id", "X-Portal-Role", "X-Portal-Clinic-Id"}

// NewUpstreamProxy forwards gated requests to the portal frontend/API. The caller's
// identity travels as X-Portal-* headers.
func NewUpstreamProxy(target *url.URL, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			for _, h := range identityHeaders {
				pr.Out.Header.Del(h)
			}
			if sess, ok := SessionFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set("X-Portal-User-Id", sess.UserID)
				pr.Out.Header.Set("X-Portal-Role", string(sess.Role))
				if sess.ClinicID != "" {
					pr.Out.Header.Set("X-Portal-Clinic-Id", sess.ClinicID)
				}
			}
			if id := GetRequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(RequestIDHeader, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "upstream request failed", "path", r.URL.Path, "error", err)
			WriteProblem(w, http.StatusBadGateway, "upstream_unavailable", "upstream unavailable")
		},
	}
}

// placeholderHandler answers gated requests when no upstream is configured.
func placeholderHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"path": r.URL.Path, "allowed": true}
	if sess, ok := SessionFromContext(r.Context()); ok {
		body["user_id"] = sess.UserID
		body["role"] = sess.Role
	}
	WriteJSON(w, http.StatusOK, body)
}
