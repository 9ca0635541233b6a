package entity

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is the durable record of one conversation. The live working
// state lives in the session store; this row anchors the transcript.
type ChatSession struct {
	Id         uuid.UUID
	UserId     string
	SessionKey string
	Domain     string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	DeletedAt  *time.Time
	IsDeleted  bool
}

// ChatTurn is one completed user/assistant exchange.
type ChatTurn struct {
	Id            uuid.UUID
	ChatSessionId uuid.UUID
	UserText      string
	BotSummary    string
	State         string
	ContentType   string
	DataSource    string
	ProductIds    []string
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	DeletedAt     *time.Time
	IsDeleted     bool
}
