package bootstrap

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/portal-access/config"
	"github.com/target/portal-access/internal/adapters/profileapi"
	redisadapter "github.com/target/portal-access/internal/adapters/redis"
	"github.com/target/portal-access/internal/adapters/staticprofile"
	"github.com/target/portal-access/internal/domain/access"
)

func TestBuildProfileSource(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	gate := access.NewProfileGateFromPolicy(access.DefaultPolicy())

	apiConfig := config.ProfileConfig{
		Source: config.ProfileSourceAPI,
		API: config.ProfileAPIConfig{
			URL:             "https://profiles.example.com/v1/users",
			Root:            "data",
			Timeout:         time.Second,
			BreakerFailures: 3,
			BreakerCooldown: time.Second,
		},
	}

	t.Run("static is never cached", func(t *testing.T) {
		src, err := BuildProfileSource(ProfileDeps{
			Profile:     config.ProfileConfig{Source: config.ProfileSourceStatic},
			Cache:       config.CacheConfig{ProfileTTL: time.Minute},
			RedisClient: client,
			Logger:      discardLogger(),
		})
		require.NoError(t, err)
		assert.IsType(t, staticprofile.Source{}, src)
	})

	t.Run("api behind cache", func(t *testing.T) {
		src, err := BuildProfileSource(ProfileDeps{
			Profile:     apiConfig,
			Cache:       config.CacheConfig{ProfileTTL: time.Minute, ProfilePrefix: "profile:"},
			RedisClient: client,
			Gate:        gate,
			Logger:      discardLogger(),
		})
		require.NoError(t, err)
		assert.IsType(t, &redisadapter.CachedProfileSource{}, src)
	})

	t.Run("api without ttl", func(t *testing.T) {
		src, err := BuildProfileSource(ProfileDeps{
			Profile:     apiConfig,
			RedisClient: client,
			Gate:        gate,
			Logger:      discardLogger(),
		})
		require.NoError(t, err)
		assert.IsType(t, &profileapi.Client{}, src)
	})

	t.Run("api without url", func(t *testing.T) {
		cfg := apiConfig
		cfg.API.URL = ""
		_, err := BuildProfileSource(ProfileDeps{Profile: cfg, Gate: gate, Logger: discardLogger()})
		assert.Error(t, err)
	})

	t.Run("postgres without database", func(t *testing.T) {
		_, err := BuildProfileSource(ProfileDeps{
			Profile: config.ProfileConfig{Source: config.ProfileSourcePostgres},
			Logger:  discardLogger(),
		})
		assert.ErrorContains(t, err, "database is not connected")
	})
}
