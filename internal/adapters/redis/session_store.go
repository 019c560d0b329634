package redis

// Package redis provides Redis-backed adapters for sessions and cached profiles.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/portal-access/internal/domain/auth"
)

const (
	// DefaultSessionPrefix namespaces session keys.
	DefaultSessionPrefix = "portal:session:"
	userIndexSegment     = "user:"
)

// ErrNotFound is returned when a session is absent or expired.
var ErrNotFound = errors.New("session not found")

// SessionStore keeps sessions as JSON strings that expire with the session
// credential. A set per user indexes that user's live session IDs so an
// operator can revoke them together.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewSessionStore returns a store using DefaultSessionPrefix.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, DefaultSessionPrefix)
}

// NewSessionStoreWithPrefix returns a store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *SessionStore) sessionKey(id string) string { return s.prefix + id }

func (s *SessionStore) userKey(userID string) string { return s.prefix + userIndexSegment + userID }

// Save writes sess, replacing any previous record with the same ID.
func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("session is expired")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(sess.ID), data, ttl)
		if sess.UserID != "" {
			idx := s.userKey(sess.UserID)
			pipe.SAdd(ctx, idx, sess.ID)
			// The index lives as long as the longest session it names.
			pipe.ExpireNX(ctx, idx, ttl)
			pipe.ExpireGT(ctx, idx, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Get returns the stored session, or ErrNotFound when it is absent or expired.
func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}
	sess, err := s.load(ctx, id)
	if err != nil {
		return domainauth.Session{}, err
	}

	// Key TTL and ExpiresAt can drift by clock skew between writers.
	if sess.Expired(s.now()) {
		if deleteErr := s.remove(ctx, sess.ID, sess.UserID); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	sess, err := s.load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		// An unreadable record is still removed; only the index entry is left behind.
		return s.client.Del(ctx, s.sessionKey(id)).Err()
	}
	return s.remove(ctx, id, sess.UserID)
}

// ListUser returns the live sessions of userID, pruning index entries whose
// session has already expired.
func (s *SessionStore) ListUser(ctx context.Context, userID string) ([]domainauth.Session, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list user sessions: %w", err)
	}

	out := make([]domainauth.Session, 0, len(ids))
	var stale []any
	for _, id := range ids {
		sess, getErr := s.Get(ctx, id)
		switch {
		case errors.Is(getErr, ErrNotFound):
			stale = append(stale, id)
		case getErr != nil:
			return nil, getErr
		default:
			out = append(out, sess)
		}
	}
	if len(stale) > 0 {
		if remErr := s.client.SRem(ctx, s.userKey(userID), stale...).Err(); remErr != nil {
			return nil, fmt.Errorf("redis prune user sessions: %w", remErr)
		}
	}
	return out, nil
}

// RevokeUser deletes every session of userID and reports how many were live.
func (s *SessionStore) RevokeUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, errors.New("user ID cannot be empty")
	}
	idx := s.userKey(userID)
	ids, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// One DEL per key keeps cluster deployments free of cross-slot commands.
	dels := make([]*redis.IntCmd, 0, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			dels = append(dels, pipe.Del(ctx, s.sessionKey(id)))
		}
		pipe.Del(ctx, idx)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis revoke user sessions: %w", err)
	}
	revoked := 0
	for _, d := range dels {
		revoked += int(d.Val())
	}
	return revoked, nil
}

func (s *SessionStore) load(ctx context.Context, id string) (domainauth.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}
	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) remove(ctx context.Context, id, userID string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(id))
		if userID != "" {
			pipe.SRem(ctx, s.userKey(userID), id)
		}
		return nil
	})
	return err
}
