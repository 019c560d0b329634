package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME", "DB_SSL_MODE"} {
			t.Setenv(k, "")
		}
		cfg := DefaultTestDBConfig()
		assert.Equal(t, TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "portal",
			Password: "portal",
			DBName:   "portal",
			SSLMode:  "disable",
		}, cfg)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "db")
		t.Setenv("TEST_DB_PORT", "5432")
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "db", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
	})
}

func TestTestDBConfigDSN(t *testing.T) {
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p:w", DBName: "portal", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%3Aw@db:5432/portal?sslmode=disable", cfg.DSN(""))
	assert.Equal(t, "postgres://u:p%3Aw@db:5432/portal?search_path=t_1%2Cpublic&sslmode=disable", cfg.DSN("t_1"))
}

func TestEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		t.Setenv("TESTUTIL_FLAG", v)
		assert.True(t, envBool("TESTUTIL_FLAG"), v)
	}
	t.Setenv("TESTUTIL_FLAG", "nope")
	assert.False(t, envBool("TESTUTIL_FLAG"))
}
