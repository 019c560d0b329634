package httpx

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/target/portal-access/internal/domain/access"
	"github.com/target/portal-access/internal/service"
)

// RouterServices holds everything the HTTP router wires together.
type RouterServices struct {
	Auth    AuthServiceInterface
	Access  *service.AccessService
	Gate    *access.ProfileGate
	Cookies CookieConfig
	// Metrics serves the Prometheus exposition at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	Recorder    loginRecorder
	// Upstream receives every request the access gate lets through. Nil serves a JSON placeholder.
	Upstream  *url.URL
	Readiness map[string]ReadinessCheck
	Logger    *slog.Logger
}

// NewRouter creates the gateway handler: auth and profile endpoints handled locally,
// everything else through the access gate.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	sessions := CookieSessionSource{Sessions: services.Auth}

	authHandlers := &AuthHandlers{
		Svc:      services.Auth,
		Access:   services.Access,
		Sessions: sessions,
		Cookies:  services.Cookies,
		Recorder: services.Recorder,
		Logger:   logger,
	}
	profileHandlers := &ProfileHandlers{
		Svc:      services.Auth,
		Access:   services.Access,
		Sessions: sessions,
		Cookies:  services.Cookies,
		Gate:     services.Gate,
		Logger:   logger,
	}

	registerAuthRoutes(mux, authHandlers)
	registerProfileRoutes(mux, profileHandlers, services.Access.Resolver().ProfileCompletionPath())

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readinessHandler(services.Readiness, logger))
	if services.Metrics != nil {
		path := services.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, services.Metrics)
	}

	var fallback http.Handler = http.HandlerFunc(placeholderHandler)
	if services.Upstream != nil {
		fallback = NewUpstreamProxy(services.Upstream, logger)
	}
	mux.Handle("/", AccessGate(AccessGateOptions{
		Access:   services.Access,
		Sessions: sessions,
		Cookies:  services.Cookies,
		Logger:   logger,
	})(fallback))

	return Chain(mux, RequestID(), Recover(logger), Logging(logger))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
}

// registerProfileRoutes mounts the completion API under the completion page path. The
// handlers check the session themselves: the gate would bounce an incomplete profile
// away from the very endpoint that completes it.
func registerProfileRoutes(mux *http.ServeMux, h *ProfileHandlers, base string) {
	mux.HandleFunc("GET "+base+"/status", h.Status)
	mux.HandleFunc("POST "+base+"/complete", h.Complete)
}
