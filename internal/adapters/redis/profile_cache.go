package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/portal-access/internal/domain/access"
	"github.com/target/portal-access/internal/ports"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultProfilePrefix namespaces cached profile keys.
	DefaultProfilePrefix = "profile:"

	defaultFetchTimeout = 5 * time.Second
)

// ProfileCacheOptions configures CachedProfileSource.
type ProfileCacheOptions struct {
	Client redis.UniversalClient
	Source ports.ProfileSource
	TTL    time.Duration
	Prefix string
	// FetchTimeout bounds a shared upstream fetch; 5s when zero.
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// CachedProfileSource decorates a ProfileSource with a Redis read-through cache.
// Concurrent misses for the same user share one upstream fetch. Cache failures
// degrade to the upstream source.
type CachedProfileSource struct {
	client redis.UniversalClient
	source ports.ProfileSource
	ttl    time.Duration
	prefix string
	fetch  time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

var _ ports.ProfileSource = (*CachedProfileSource)(nil)

// NewCachedProfileSource builds the decorator. Client and Source are required.
func NewCachedProfileSource(opts ProfileCacheOptions) (*CachedProfileSource, error) {
	if opts.Client == nil {
		return nil, errors.New("profile cache: redis client is required")
	}
	if opts.Source == nil {
		return nil, errors.New("profile cache: source is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultProfilePrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fetch := opts.FetchTimeout
	if fetch <= 0 {
		fetch = defaultFetchTimeout
	}
	return &CachedProfileSource{
		client: opts.Client,
		source: opts.Source,
		ttl:    opts.TTL,
		prefix: prefix,
		fetch:  fetch,
		logger: logger.With("component", "profile_cache"),
	}, nil
}

func (c *CachedProfileSource) key(userID string) string { return c.prefix + userID }

// GetProfile returns the cached record for userID, fetching it on a miss.
func (c *CachedProfileSource) GetProfile(ctx context.Context, userID string) (access.ProfileRecord, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	if rec, ok := c.lookup(ctx, userID); ok {
		return rec, nil
	}

	// The shared fetch outlives any one caller: a cancelled request must not fail
	// the others waiting on the same user.
	ch := c.group.DoChan(userID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetch)
		defer cancel()
		rec, err := c.source.GetProfile(fctx, userID)
		if err != nil {
			return nil, err
		}
		c.store(fctx, userID, rec)
		return rec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rec, _ := res.Val.(access.ProfileRecord)
		return rec, nil
	}
}

// Invalidate drops the cached record so the next read refetches it.
func (c *CachedProfileSource) Invalidate(ctx context.Context, userID string) error {
	return InvalidateProfile(ctx, c.client, c.prefix, userID)
}

// InvalidateProfile drops a cached record without a CachedProfileSource, for tools that
// write profiles out of band. An empty prefix means DefaultProfilePrefix.
func InvalidateProfile(ctx context.Context, client redis.UniversalClient, prefix, userID string) error {
	if userID == "" {
		return nil
	}
	if prefix == "" {
		prefix = DefaultProfilePrefix
	}
	if err := client.Del(ctx, prefix+userID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *CachedProfileSource) lookup(ctx context.Context, userID string) (access.ProfileRecord, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "profile cache read failed", "user_id", userID, "error", err)
		}
		return nil, false
	}
	var rec access.ProfileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.WarnContext(ctx, "profile cache entry corrupt", "user_id", userID, "error", err)
		return nil, false
	}
	return rec, true
}

func (c *CachedProfileSource) store(ctx context.Context, userID string, rec access.ProfileRecord) {
	if c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		c.logger.WarnContext(ctx, "profile cache encode failed", "user_id", userID, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(userID), data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "profile cache write failed", "user_id", userID, "error", err)
	}
}
