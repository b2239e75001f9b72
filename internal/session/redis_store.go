// Package session holds short-lived per-draft state shared between HTTP
// requests: turn locks and in-progress section drafting threads.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"counsel/api/internal/section"
	"counsel/api/internal/util"
)

var (
	// ErrDraftBusy is returned when another turn holds the draft's lock.
	ErrDraftBusy = errors.New("draft is busy")
	// ErrStateNotFound is returned for unknown or expired section threads.
	ErrStateNotFound = errors.New("section state not found")
	// ErrTurnLost is returned when a turn lock expired or changed hands.
	ErrTurnLost = errors.New("turn lock lost")
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisStore keeps turn locks and section states in Redis.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	lockTTL  time.Duration
	stateTTL time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, lockTTL, stateTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, lockTTL, stateTTL), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, lockTTL, stateTTL time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		prefix:   "counsel:",
		lockTTL:  lockTTL,
		stateTTL: stateTTL,
	}
}

func (s *RedisStore) lockKey(draftID int64) string {
	return s.prefix + "turn:" + strconv.FormatInt(draftID, 10)
}

func (s *RedisStore) stateKey(draftID int64, generationID string) string {
	return s.prefix + "section:" + strconv.FormatInt(draftID, 10) + ":" + generationID
}

// AcquireTurn takes the draft's turn lock and returns the token needed to
// release it. The lock expires on its own after the lock TTL.
func (s *RedisStore) AcquireTurn(ctx context.Context, draftID int64) (string, error) {
	token := util.NewID("lock")
	ok, err := s.client.SetNX(ctx, s.lockKey(draftID), token, s.lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return "", ErrDraftBusy
	}
	return token, nil
}

// ReleaseTurn releases the lock if token still owns it.
func (s *RedisStore) ReleaseTurn(ctx context.Context, draftID int64, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.lockKey(draftID)}, token).Err(); err != nil {
		return fmt.Errorf("release turn lock: %w", err)
	}
	return nil
}

// RefreshTurn extends the lock held by token by another lock TTL.
func (s *RedisStore) RefreshTurn(ctx context.Context, draftID int64, token string) error {
	n, err := refreshScript.Run(ctx, s.client, []string{s.lockKey(draftID)}, token, s.lockTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh turn lock: %w", err)
	}
	if n == 0 {
		return ErrTurnLost
	}
	return nil
}

func (s *RedisStore) LockTTL() time.Duration {
	return s.lockTTL
}

// SaveSectionState stores state under its generation id, refreshing the TTL.
func (s *RedisStore) SaveSectionState(ctx context.Context, draftID int64, state section.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal section state: %w", err)
	}
	if err := s.client.Set(ctx, s.stateKey(draftID, state.GenerationID), data, s.stateTTL).Err(); err != nil {
		return fmt.Errorf("save section state: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadSectionState(ctx context.Context, draftID int64, generationID string) (section.State, error) {
	data, err := s.client.Get(ctx, s.stateKey(draftID, generationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return section.State{}, ErrStateNotFound
	}
	if err != nil {
		return section.State{}, fmt.Errorf("load section state: %w", err)
	}
	var state section.State
	if err := json.Unmarshal(data, &state); err != nil {
		return section.State{}, fmt.Errorf("unmarshal section state: %w", err)
	}
	return state, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
