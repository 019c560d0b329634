package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/portal-access/config"
	"github.com/target/portal-access/internal/adapters/authroles"
	"github.com/target/portal-access/internal/adapters/devauth"
	"github.com/target/portal-access/internal/adapters/oidc"
	redisadapter "github.com/target/portal-access/internal/adapters/redis"
	"github.com/target/portal-access/internal/domain/access"
	"github.com/target/portal-access/internal/ports"
	"github.com/target/portal-access/internal/service"
)

// AuthDeps contains the dependencies of the auth service.
type AuthDeps struct {
	Auth        config.AuthConfig
	RedisClient redis.UniversalClient
	// SessionPrefix namespaces session keys; empty uses the adapter default.
	SessionPrefix string
	Profiles      ports.ProfileSource
	Gate          *access.ProfileGate
	Logger        *slog.Logger
}

// BuildAuthService creates an auth service for the configured auth mode.
// Sessions live in Redis for both modes.
func BuildAuthService(deps AuthDeps) (*service.AuthService, error) {
	if deps.RedisClient == nil {
		return nil, errors.New("auth service: redis client is required for sessions")
	}
	if deps.Profiles == nil {
		return nil, errors.New("auth service: profile source is required")
	}

	prov, err := buildAuthProvider(deps.Auth)
	if err != nil {
		return nil, err
	}

	prefix := deps.SessionPrefix
	if prefix == "" {
		prefix = redisadapter.DefaultSessionPrefix
	}
	return service.NewAuthService(service.AuthServiceOptions{
		Provider: prov,
		Sessions: redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, prefix),
		Roles:    authroles.NewStaticRoleMapper(deps.Auth.RoleGroups),
		Profiles: deps.Profiles,
		Gate:     deps.Gate,
		Logger:   deps.Logger,
	}), nil
}

//nolint:ireturn // the provider is selected by AUTH_MODE.
func buildAuthProvider(cfg config.AuthConfig) (ports.AuthProvider, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		dev := cfg.DevAuth
		prov, err := devauth.NewProvider(devauth.Config{
			UserID:    dev.UserID,
			Email:     dev.Email,
			FirstName: dev.FirstName,
			LastName:  dev.LastName,
			Role:      dev.Role,
			ClinicID:  dev.ClinicID,
		})
		if err != nil {
			return nil, fmt.Errorf("dev auth provider: %w", err)
		}
		return prov, nil

	case config.AuthModeOAuth:
		oauth := cfg.OAuth
		if err := oauth.Validate(); err != nil {
			return nil, err
		}
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			DiscoveryURL: oauth.DiscoveryURL,
			Claims: oidc.ClaimNames{
				Role:   cfg.RoleClaim,
				Clinic: cfg.ClinicClaim,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("oidc provider: %w", err)
		}
		return prov, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
