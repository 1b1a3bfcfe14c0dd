// Package redis implements the session.Store contract (C9) over a Redis
// key-value store with per-session TTL, proving the abstract contract
// supports a real KV backend as spec.md's reference deployment names.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentkit-go/agentkit/session"
)

const keyPrefix = "agentkit:session:"

// Store is a session.Store backed by a redis.Client.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a Store. ttl, if non-zero, is applied to every session key
// on write so idle sessions expire server-side; CleanupExpired still works
// independently for callers that manage expiry application-side instead.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func key(sessionID string) string { return keyPrefix + sessionID }

func (s *Store) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	raw, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.Session{}, session.ErrSessionNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("redis: get session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return session.Session{}, fmt.Errorf("redis: decode session: %w", err)
	}
	return sess, nil
}

func (s *Store) SaveSession(ctx context.Context, sess session.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis: encode session: %w", err)
	}
	if err := s.client.Set(ctx, key(sess.SessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save session: %w", err)
	}
	return nil
}

// AddRun uses an optimistic WATCH/MULTI transaction so concurrent writers
// on the same session id never clobber each other's appended run: each
// retry re-reads the current value, appends, and commits only if nothing
// else wrote to the key in between.
func (s *Store) AddRun(ctx context.Context, sessionID string, run session.RunRecord) error {
	k := key(sessionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		var sess session.Session
		switch {
		case errors.Is(err, redis.Nil):
			sess = session.Session{SessionID: sessionID, CreatedAt: run.Timestamp}
		case err != nil:
			return fmt.Errorf("redis: get session for add_run: %w", err)
		default:
			if err := json.Unmarshal(raw, &sess); err != nil {
				return fmt.Errorf("redis: decode session for add_run: %w", err)
			}
		}

		sess.Runs = append(sess.Runs, run)
		sess.LastActive = run.Timestamp

		encoded, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("redis: encode session for add_run: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, encoded, s.ttl)
			return nil
		})
		return err
	}

	const maxRetries = 10
	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("redis: add_run: %w", err)
	}
	return fmt.Errorf("redis: add_run: exceeded %d retries on concurrent writers", maxRetries)
}

func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: list sessions: %w", err)
	}
	return ids, nil
}

// CleanupExpired scans every session key and deletes those whose
// LastActive exceeds maxAge. Prefer a non-zero ttl in New for server-side
// expiry; this method remains for callers who want application-controlled
// cleanup on a different cadence.
func (s *Store) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := s.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			continue
		}
		if sess.LastActive.Before(cutoff) {
			if err := s.client.Del(ctx, key(id)).Err(); err != nil {
				return removed, fmt.Errorf("redis: delete expired session %q: %w", id, err)
			}
			removed++
		}
	}
	return removed, nil
}
