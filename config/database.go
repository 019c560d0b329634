package config

import (
	"net"
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"portal"`
	Password string `env:"PASSWORD"                envDefault:"portal"`
	Name     string `env:"NAME"                    envDefault:"portal"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// SessionPrefix namespaces session keys and the per-user session index.
	SessionPrefix string `env:"SESSION_PREFIX" envDefault:"portal:session:"`
}

// Sanitize trims node lists and gives bare sentinel hosts the sentinel port.
func (c *RedisConfig) Sanitize() {
	c.SessionPrefix = strings.TrimSpace(c.SessionPrefix)
	if c.SessionPrefix == "" {
		c.SessionPrefix = "portal:session:"
	}
	c.SentinelPort = strings.TrimSpace(c.SentinelPort)
	nodes := make([]string, 0, len(c.SentinelNodes))
	for _, n := range c.SentinelNodes {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(n); err != nil && c.SentinelPort != "" {
			n = net.JoinHostPort(n, c.SentinelPort)
		}
		nodes = append(nodes, n)
	}
	c.SentinelNodes = nodes
}

// CacheConfig contains cache configuration (Redis-based).
type CacheConfig struct {
	// ProfileTTL is how long a fetched profile record is reused. Zero disables caching.
	ProfileTTL time.Duration `env:"CACHE_PROFILE_TTL" envDefault:"5m"`

	// ProfilePrefix namespaces cached profile keys.
	ProfilePrefix string `env:"CACHE_PROFILE_PREFIX" envDefault:"profile:"`
}

// Sanitize clamps negative TTLs to zero (disabled).
func (c *CacheConfig) Sanitize() {
	if c.ProfileTTL < 0 {
		c.ProfileTTL = 0
	}
	if c.ProfilePrefix == "" {
		c.ProfilePrefix = "profile:"
	}
}
