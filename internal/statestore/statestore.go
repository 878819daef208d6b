// Package statestore implements session.StateStore against Redis, the
// colocated durable store for a session's opaque runtime-state blob
// (§4.2). Keys are name-spaced per session. A resident session's blob
// carries no TTL, since the owning actor is the only writer and keeps
// refreshing it for as long as the session runs; only once a session
// reaches the completed phase does a write get a bounded expiry.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classroomgames/tugquiz/internal/session"
)

const keyPrefix = "tugquiz:session:"

// blobTTL bounds how long a completed session's blob survives once no
// further mutation is possible.
const blobTTL = 24 * time.Hour

// Store implements session.StateStore over a redis.Client.
type Store struct {
	rdb *redis.Client
}

// New builds a Store over an already-connected client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Connect opens a redis client against addr and verifies connectivity.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *Store) Get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get session blob %s: %w", sessionID, err)
	}
	return val, true, nil
}

func (s *Store) Put(ctx context.Context, sessionID string, blob []byte, phase session.Phase) error {
	ttl := time.Duration(0)
	if phase == session.PhaseCompleted {
		ttl = blobTTL
	}
	if err := s.rdb.Set(ctx, key(sessionID), blob, ttl).Err(); err != nil {
		return fmt.Errorf("put session blob %s: %w", sessionID, err)
	}
	return nil
}

var _ session.StateStore = (*Store)(nil)
