package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix is the Redis key prefix for session snapshots.
const sessionKeyPrefix = "session:"

// Session store sentinel errors. The service maps them onto the domain
// error taxonomy; the store itself stays transport-agnostic.
var (
	// ErrSessionMissing means no snapshot exists for the user id. A refresh
	// token whose session is missing has been revoked, whatever its own
	// expiry says.
	ErrSessionMissing = errors.New("session not found")

	// ErrSessionCorrupt means the stored snapshot failed to deserialize.
	// The store deletes the poisoned entry before returning this, so the
	// failure does not recur on retry.
	ErrSessionCorrupt = errors.New("session corrupted")
)

// SessionStore keeps the serialized user snapshot that represents a live
// session, keyed by user id. The entry is the source of truth for whether a
// refresh token is still valid: deleting it revokes the session immediately,
// regardless of token cryptographic validity. Entries carry no TTL -- the
// refresh token's own expiry is the secondary bound.
type SessionStore struct {
	redis *redis.Client
}

// NewSessionStore creates a session store backed by the given Redis client.
func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{redis: rdb}
}

// Save writes the full user snapshot at the user's session key,
// overwriting any previous snapshot (last write wins; one live session
// per user). The password hash is excluded by the User JSON tags.
func (s *SessionStore) Save(ctx context.Context, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshaling session snapshot: %w", err)
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+user.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("storing session in redis: %w", err)
	}

	return nil
}

// Get returns the snapshot for the given user id. Returns ErrSessionMissing
// when no entry exists and ErrSessionCorrupt when the entry fails to
// deserialize; in the latter case the poisoned entry is deleted first so a
// retry does not hit the same corruption.
func (s *SessionStore) Get(ctx context.Context, userID string) (*User, error) {
	key := sessionKeyPrefix + userID

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionMissing
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from redis: %w", err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		// Self-heal: drop the poisoned entry instead of looping on it.
		if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
			slog.Warn("failed to delete corrupted session",
				slog.String("user_id", userID),
				slog.Any("error", delErr),
			)
		}
		return nil, ErrSessionCorrupt
	}

	return &user, nil
}

// Delete removes the session entry, revoking the user's refresh capability.
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, sessionKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}
