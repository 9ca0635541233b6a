package memory

import (
	"context"
	"time"

	"shopmate-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps conversation sessions in process memory. Used for
// local development and tests; production deployments use the Redis store.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &SessionRepository{
		cache: cache.New(ttl, 10*time.Minute),
	}
}

func (r *SessionRepository) Save(_ context.Context, session *store.Session) error {
	r.cache.Set(sessionKey(session.UserID, session.SessionID), session, cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) Get(_ context.Context, userID, sessionID string) (*store.Session, bool, error) {
	if x, found := r.cache.Get(sessionKey(userID, sessionID)); found {
		return x.(*store.Session), true, nil
	}
	return nil, false, nil
}

func (r *SessionRepository) Delete(_ context.Context, userID, sessionID string) error {
	r.cache.Delete(sessionKey(userID, sessionID))
	return nil
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}
