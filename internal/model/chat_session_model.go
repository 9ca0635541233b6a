package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatSession struct {
	Id         uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserId     string         `gorm:"type:varchar(255);not null;index:idx_chat_sessions_user_key"`
	SessionKey string         `gorm:"type:varchar(255);not null;index:idx_chat_sessions_user_key"`
	Domain     string         `gorm:"type:varchar(50);not null;default:'unknown'"`
	CreatedAt  time.Time      `gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
