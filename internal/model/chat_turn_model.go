package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatTurn struct {
	Id            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ChatSessionId uuid.UUID      `gorm:"type:uuid;not null;index"`
	UserText      string         `gorm:"type:text;not null"`
	BotSummary    string         `gorm:"type:text;not null"`
	State         string         `gorm:"type:varchar(50);not null"`
	ContentType   string         `gorm:"type:varchar(20);not null"`
	DataSource    string         `gorm:"type:varchar(20);not null"`
	ProductIds    string         `gorm:"type:text"` // JSON-encoded []string
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime"`
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

func (ChatTurn) TableName() string {
	return "chat_turns"
}
