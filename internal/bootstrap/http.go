package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/target/portal-access/config"
	"github.com/target/portal-access/internal/domain/access"
	httpx "github.com/target/portal-access/internal/http"
	"github.com/target/portal-access/internal/observability/metrics"
	"github.com/target/portal-access/internal/observability/statsd"
	"github.com/target/portal-access/internal/service"
	"golang.org/x/sync/errgroup"
)

// MetricsNamespace prefixes every Prometheus and StatsD metric the gateway emits.
const MetricsNamespace = "portal_access"

// BuildRecorder creates the decision recorder. The returned StatsD client must be
// closed on shutdown; it drops metrics when StatsD is disabled.
func BuildRecorder(cfg config.ObservabilityConfig, logger *slog.Logger) (*metrics.AccessRecorder, *statsd.Client, error) {
	sink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  MetricsNamespace,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("statsd client: %w", err)
	}
	return metrics.NewAccessRecorder(MetricsNamespace, sink), sink, nil
}

// GatewayDeps contains the assembled services the HTTP surface is built from.
type GatewayDeps struct {
	Config    config.AppConfig
	Resolver  *access.Resolver
	Auth      *service.AuthService
	Gate      *access.ProfileGate
	Recorder  *metrics.AccessRecorder
	Readiness map[string]httpx.ReadinessCheck
	Logger    *slog.Logger
}

// BuildHandler wires the access service and router into one handler.
func BuildHandler(deps GatewayDeps) (http.Handler, error) {
	if deps.Resolver == nil || deps.Auth == nil {
		return nil, errors.New("gateway: resolver and auth service are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	upstream, err := parseUpstream(deps.Config.HTTP.UpstreamURL)
	if err != nil {
		return nil, err
	}
	if upstream == nil {
		logger.Warn("UPSTREAM_URL not set; allowed requests get a placeholder response")
	}

	accessSvc := service.NewAccessService(service.AccessServiceOptions{
		Resolver:         deps.Resolver,
		DenyUnclassified: deps.Config.Access.DenyUnclassified,
		Logger:           logger,
		Recorder:         deps.Recorder,
	})

	rs := httpx.RouterServices{
		Auth:   deps.Auth,
		Access: accessSvc,
		Gate:   deps.Gate,
		Cookies: httpx.CookieConfig{
			Domain: deps.Config.HTTP.CookieDomain,
			Secure: deps.Config.HTTP.SecureCookies,
		},
		Recorder:  deps.Recorder,
		Upstream:  upstream,
		Readiness: deps.Readiness,
		Logger:    logger,
	}
	if prom := deps.Config.Observability.Prometheus; prom.Enabled && deps.Recorder != nil {
		rs.Metrics = deps.Recorder.Handler()
		rs.MetricsPath = prom.Path
	}
	return httpx.NewRouter(rs), nil
}

func parseUpstream(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil //nolint:nilnil // no upstream configured
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse UPSTREAM_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("UPSTREAM_URL %q must be an absolute http(s) URL", raw)
	}
	return u, nil
}

// NewServer returns the gateway server with its timeouts applied.
func NewServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled or the server fails, then shuts it down
// within shutdownTimeout. A nil ln listens on srv.Addr.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if ln != nil {
			logger.InfoContext(ctx, "starting HTTP server", "addr", ln.Addr().String())
			err = srv.Serve(ln)
		} else {
			logger.InfoContext(ctx, "starting HTTP server", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.InfoContext(ctx, "shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.InfoContext(ctx, "HTTP server stopped")
		return nil
	})

	return g.Wait()
}
