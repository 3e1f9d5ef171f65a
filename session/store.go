// Package session persists refresh-token lineages in redis. One session
// row corresponds to exactly one currently valid refresh token; rotation
// atomically replaces the row so a replayed token can be detected by its
// now-missing session id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session is absent, expired, or bound to a
// different user than claimed. Callers cannot distinguish the three cases.
var ErrNotFound = errors.New("session not found")

// ErrStoreUnavailable wraps redis failures.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Session anchors one refresh-token lineage to a user. Its ID doubles as
// the refresh token's session claim.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// rotateScript atomically verifies the old session is live and owned by
// the claimed user, deletes it, and installs the replacement. Two
// concurrent rotations of one session id see exactly one winner; the loser
// finds the old key gone.
const rotateScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local sess = cjson.decode(data)
if sess.user_id ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", ARGV[6] .. sess.user_id, ARGV[4])
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[3], ARGV[4])
redis.call("SET", KEYS[2], ARGV[2], "PX", tonumber(ARGV[3]))
redis.call("SADD", KEYS[3], ARGV[5])
redis.call("PEXPIRE", KEYS[3], tonumber(ARGV[3]))
return 1
`

// deleteScript removes a session and its index entry together.
const deleteScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local sess = cjson.decode(data)
redis.call("DEL", KEYS[1])
redis.call("SREM", ARGV[1] .. sess.user_id, ARGV[2])
return 1
`

var (
	rotateLua = redis.NewScript(rotateScript)
	deleteLua = redis.NewScript(deleteScript)
)

// Store is a redis-backed session store. Safe for concurrent use.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	lifetime time.Duration
	now      func() time.Time
}

// NewStore returns a Store whose sessions live for lifetime (the refresh
// token lifetime). prefix namespaces the redis keys.
func NewStore(client redis.UniversalClient, prefix string, lifetime time.Duration) *Store {
	if prefix == "" {
		prefix = "sess"
	}
	if lifetime <= 0 {
		lifetime = 30 * 24 * time.Hour
	}
	return &Store{
		redis:    client,
		prefix:   prefix,
		lifetime: lifetime,
		now:      time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// userPrefix is the namespace of the per-user session index sets.
func (s *Store) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

// Create persists a new session for userID with expiry now + lifetime.
func (s *Store) Create(ctx context.Context, userID, ip, userAgent string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
		IP:        ip,
		UserAgent: userAgent,
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, s.lifetime)
		pipe.SAdd(ctx, s.userKey(userID), sess.ID)
		pipe.PExpire(ctx, s.userKey(userID), s.lifetime)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return sess, nil
}

// GetLive returns the session for sessionID if it exists and has not
// expired. An expired row is deleted on sight and reported exactly like a
// missing one.
func (s *Store) GetLive(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, ErrNotFound
	}

	// Redis key TTL normally handles expiry; the explicit check covers
	// rows restored from a dump without their TTLs.
	if !sess.ExpiresAt.After(s.now()) {
		_ = s.Delete(ctx, sessionID)
		return nil, ErrNotFound
	}

	return &sess, nil
}

// Rotate atomically replaces the session oldSessionID with a fresh one
// bound to the same user. userID is the refresh token's subject claim; a
// mismatch with the stored owner invalidates the row and fails exactly
// like a missing session. Exactly one of two concurrent rotations of the
// same id succeeds.
func (s *Store) Rotate(ctx context.Context, oldSessionID, userID, ip, userAgent string) (*Session, error) {
	now := s.now()
	next := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
		IP:        ip,
		UserAgent: userAgent,
	}
	data, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}

	res, err := rotateLua.Run(ctx, s.redis,
		[]string{s.key(oldSessionID), s.key(next.ID), s.userKey(userID)},
		userID, data, s.lifetime.Milliseconds(), oldSessionID, next.ID, s.userPrefix(),
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if res != 1 {
		return nil, ErrNotFound
	}
	return next, nil
}

// Delete removes sessionID. Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	err := deleteLua.Run(ctx, s.redis,
		[]string{s.key(sessionID)},
		s.userPrefix(), sessionID,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAll deletes every session belonging to userID. Used on password
// reset and on suspected refresh-token replay.
func (s *Store) RevokeAll(ctx context.Context, userID string) error {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.userKey(userID))

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CountLive returns the number of live sessions for userID. Exposed for
// observability and tests.
func (s *Store) CountLive(ctx context.Context, userID string) (int, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	live := 0
	for _, id := range ids {
		n, err := s.redis.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		live += int(n)
	}
	return live, nil
}
