package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/portal-access/config"
	"github.com/target/portal-access/internal/adapters/profileapi"
	"github.com/target/portal-access/internal/adapters/profilepg"
	redisadapter "github.com/target/portal-access/internal/adapters/redis"
	"github.com/target/portal-access/internal/adapters/staticprofile"
	"github.com/target/portal-access/internal/domain/access"
	"github.com/target/portal-access/internal/ports"
)

// ProfileDeps contains what the profile source may need, depending on its kind.
type ProfileDeps struct {
	Profile     config.ProfileConfig
	Cache       config.CacheConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Gate        *access.ProfileGate
	Logger      *slog.Logger
}

// BuildProfileSource selects the configured profile source and, when a TTL is set,
// fronts it with the Redis cache.
//
//nolint:ireturn // the source kind is chosen at runtime.
func BuildProfileSource(deps ProfileDeps) (ports.ProfileSource, error) {
	var src ports.ProfileSource
	switch deps.Profile.Source {
	case config.ProfileSourceAPI:
		api := deps.Profile.API
		var fields []string
		if deps.Gate != nil {
			fields = deps.Gate.AllFields()
		}
		client, err := profileapi.New(profileapi.Config{
			BaseURL:         api.URL,
			Token:           api.Token,
			Root:            api.Root,
			FieldNames:      fields,
			Fields:          api.Fields,
			Timeout:         api.Timeout,
			BreakerFailures: api.BreakerFailures,
			BreakerCooldown: api.BreakerCooldown,
			Logger:          deps.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("profile api source: %w", err)
		}
		src = client
	case config.ProfileSourcePostgres:
		if deps.DB == nil {
			return nil, errors.New("postgres profile source: database is not connected")
		}
		src = profilepg.NewRepo(deps.DB)
	case config.ProfileSourceStatic:
		src = staticprofile.New(deps.Profile.Static)
	default:
		return nil, fmt.Errorf("unsupported profile source %q", deps.Profile.Source)
	}

	// The static source never changes, so caching it only adds a Redis round trip.
	if deps.Cache.ProfileTTL <= 0 || deps.RedisClient == nil || deps.Profile.Source == config.ProfileSourceStatic {
		return src, nil
	}
	cached, err := redisadapter.NewCachedProfileSource(redisadapter.ProfileCacheOptions{
		Client:       deps.RedisClient,
		Source:       src,
		TTL:          deps.Cache.ProfileTTL,
		Prefix:       deps.Cache.ProfilePrefix,
		FetchTimeout: deps.Profile.API.Timeout,
		Logger:       deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}
	return cached, nil
}
