package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopmate-be/pkg/store"

	"github.com/redis/go-redis/v9"
)

// SessionRepository persists conversation sessions as JSON blobs in Redis.
// One key per (user, session) pair; the TTL slides on every save so active
// conversations never expire mid-dialog. Writes are last-write-wins: turns
// for one session are expected to arrive sequentially from the client.
type SessionRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionRepository(rdb *redis.Client, ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &SessionRepository{rdb: rdb, ttl: ttl}
}

func (r *SessionRepository) Save(ctx context.Context, session *store.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redisstore: marshal session: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKey(session.UserID, session.SessionID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, userID, sessionID string) (*store.Session, bool, error) {
	payload, err := r.rdb.Get(ctx, sessionKey(userID, sessionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get session: %w", err)
	}
	var session store.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, false, fmt.Errorf("redisstore: unmarshal session: %w", err)
	}
	return &session, true, nil
}

func (r *SessionRepository) Delete(ctx context.Context, userID, sessionID string) error {
	if err := r.rdb.Del(ctx, sessionKey(userID, sessionID)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete session: %w", err)
	}
	return nil
}

func sessionKey(userID, sessionID string) string {
	return "chat:session:" + userID + ":" + sessionID
}
