package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testRedisCandidates lists addresses probed in order when REDIS_ADDR is unset.
var testRedisCandidates = []string{"redis:6379", "localhost:6379", "localhost:56379"}

// GetTestRedisAddr returns the first reachable Redis address.
func GetTestRedisAddr(t testing.TB) (string, bool) {
	t.Helper()
	candidates := testRedisCandidates
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		candidates = []string{addr}
	}
	for _, addr := range candidates {
		if pingRedis(addr, 0) == nil {
			return addr, true
		}
		t.Logf("redis not available at %s", addr)
	}
	return "", false
}

func pingRedis(addr string, db int) error {
	c := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.Ping(ctx).Err()
}

// SetupTestRedis returns a client on a flushed Redis DB reserved for t. Test
// packages run in parallel, so each reserves its own DB index through a lock key
// in DB 0.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()
	addr, ok := GetTestRedisAddr(t)
	if !ok {
		if requireInfra("TEST_REQUIRE_REDIS") {
			t.Fatal("redis not available for testing")
		}
		t.Skip("redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: reserveRedisDB(t, addr)})
	t.Cleanup(func() { closeAndLog(t, "redis client", client) })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush test redis db: %v", err)
	}
	return client
}

// reserveRedisDB honours TEST_REDIS_DB, otherwise claims a free index in 1..15.
func reserveRedisDB(t testing.TB, addr string) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
		t.Logf("invalid TEST_REDIS_DB=%q, auto-selecting", v)
	}

	meta := redis.NewClient(&redis.Options{Addr: addr})
	defer closeAndLog(t, "redis meta client", meta)

	for i := 1; i <= 15; i++ {
		lockKey := fmt.Sprintf("portal-access:testutil:db_lock:%d", i)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok, err := meta.SetNX(ctx, lockKey, strconv.Itoa(os.Getpid()), 30*time.Minute).Result()
		cancel()
		if err != nil || !ok {
			continue
		}
		t.Cleanup(func() {
			c := redis.NewClient(&redis.Options{Addr: addr})
			defer closeAndLog(t, "redis cleanup client", c)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.Del(ctx, lockKey).Err(); err != nil {
				t.Logf("warning: release redis db lock %s: %v", lockKey, err)
			}
		})
		return i
	}
	t.Logf("no free redis db index; falling back to DB 1")
	return 1
}
