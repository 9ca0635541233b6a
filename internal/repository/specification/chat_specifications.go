package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByChatSessionID struct {
	ChatSessionID uuid.UUID
}

func (s ByChatSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("chat_session_id = ?", s.ChatSessionID)
}

// BySessionKey resolves the durable row for one (user, session) pair.
type BySessionKey struct {
	UserId     string
	SessionKey string
}

func (s BySessionKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ? AND session_key = ?", s.UserId, s.SessionKey)
}

type ByChatUserId struct {
	UserId string
}

func (s ByChatUserId) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserId)
}
