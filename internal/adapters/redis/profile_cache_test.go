package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/portal-access/internal/domain/access"
	mocks "github.com/target/portal-access/internal/mocks/auth"
)

func TestCachedProfileSource_ReadThrough(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	src := &mocks.StaticProfileSource{Profiles: map[string]access.ProfileRecord{
		"u-1": {"firstName": "Ada", "phone": "555"},
	}}
	cache, err := NewCachedProfileSource(ProfileCacheOptions{Client: client, Source: src, TTL: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := cache.GetProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec["firstName"])
	assert.Equal(t, 1, src.Calls)

	rec, err = cache.GetProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "555", rec["phone"])
	assert.Equal(t, 1, src.Calls, "second read should be served from redis")

	require.NoError(t, cache.Invalidate(ctx, "u-1"))
	_, err = cache.GetProfile(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls)
}

func TestCachedProfileSource_ErrorsAreNotCached(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	src := &mocks.StaticProfileSource{Err: errors.New("upstream down")}
	cache, err := NewCachedProfileSource(ProfileCacheOptions{Client: client, Source: src, TTL: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cache.GetProfile(ctx, "u-2")
	require.Error(t, err)

	src.Err = nil
	src.Profiles = map[string]access.ProfileRecord{"u-2": {"firstName": "Grace"}}
	rec, err := cache.GetProfile(ctx, "u-2")
	require.NoError(t, err)
	assert.Equal(t, "Grace", rec["firstName"])

	exists := client.Exists(ctx, DefaultProfilePrefix+"u-2").Val()
	assert.Equal(t, int64(1), exists)
}

func TestCachedProfileSource_ZeroTTLBypassesRedis(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	src := &mocks.StaticProfileSource{Profiles: map[string]access.ProfileRecord{"u-3": {"firstName": "Lin"}}}
	cache, err := NewCachedProfileSource(ProfileCacheOptions{Client: client, Source: src})
	require.NoError(t, err)
	ctx := context.Background()

	for range 3 {
		_, err = cache.GetProfile(ctx, "u-3")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.Calls)
	assert.Equal(t, int64(0), client.Exists(ctx, DefaultProfilePrefix+"u-3").Val())
}

// blockingSource releases every caller at once so singleflight can collapse them.
type blockingSource struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (b *blockingSource) GetProfile(_ context.Context, _ string) (access.ProfileRecord, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return access.ProfileRecord{"firstName": "Sam"}, nil
}

func TestCachedProfileSource_CollapsesConcurrentMisses(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	src := &blockingSource{release: make(chan struct{})}
	cache, err := NewCachedProfileSource(ProfileCacheOptions{Client: client, Source: src, TTL: time.Minute})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := cache.GetProfile(context.Background(), "u-4")
			assert.NoError(t, err)
			assert.Equal(t, "Sam", rec["firstName"])
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(src.release)
	wg.Wait()

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 1, src.calls)
}

func TestNewCachedProfileSource_Validation(t *testing.T) {
	_, err := NewCachedProfileSource(ProfileCacheOptions{})
	require.Error(t, err)
}

// ctxSource blocks until released and remembers whether its context was still live.
type ctxSource struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
	ctxErr  atomic.Value
}

func (s *ctxSource) GetProfile(ctx context.Context, _ string) (access.ProfileRecord, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	<-s.release
	s.ctxErr.Store(fmt.Sprint(ctx.Err()))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return access.ProfileRecord{"firstName": "Kim"}, nil
}

func TestCachedProfileSource_CancelledCallerDoesNotFailOthers(t *testing.T) {
	// TTL 0 keeps Redis out of the path; the client never dials.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	src := &ctxSource{started: make(chan struct{}), release: make(chan struct{})}
	cache, err := NewCachedProfileSource(ProfileCacheOptions{Client: client, Source: src})
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.GetProfile(firstCtx, "u-5")
		firstErr <- err
	}()
	<-src.started

	type result struct {
		rec access.ProfileRecord
		err error
	}
	second := make(chan result, 1)
	go func() {
		rec, err := cache.GetProfile(context.Background(), "u-5")
		second <- result{rec, err}
	}()
	time.Sleep(100 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(src.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Kim", got.rec["firstName"])
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, "<nil>", src.ctxErr.Load())
}
