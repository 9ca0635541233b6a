package mapper

import (
	"encoding/json"
	"time"

	"shopmate-be/internal/entity"
	"shopmate-be/internal/model"

	"gorm.io/gorm"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

// Session Mappers

func (m *ChatMapper) ChatSessionToEntity(s *model.ChatSession) *entity.ChatSession {
	if s == nil {
		return nil
	}

	var deletedAt *time.Time
	if s.DeletedAt.Valid {
		t := s.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.ChatSession{
		Id:         s.Id,
		UserId:     s.UserId,
		SessionKey: s.SessionKey,
		Domain:     s.Domain,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  updatedAt,
		DeletedAt:  deletedAt,
		IsDeleted:  s.DeletedAt.Valid,
	}
}

func (m *ChatMapper) ChatSessionToModel(s *entity.ChatSession) *model.ChatSession {
	if s == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if s.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *s.DeletedAt, Valid: true}
	} else if s.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.ChatSession{
		Id:         s.Id,
		UserId:     s.UserId,
		SessionKey: s.SessionKey,
		Domain:     s.Domain,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  updatedAt,
		DeletedAt:  deletedAt,
	}
}

// Turn Mappers

func (m *ChatMapper) ChatTurnToEntity(t *model.ChatTurn) *entity.ChatTurn {
	if t == nil {
		return nil
	}

	var deletedAt *time.Time
	if t.DeletedAt.Valid {
		dt := t.DeletedAt.Time
		deletedAt = &dt
	}

	var updatedAt *time.Time
	if !t.UpdatedAt.IsZero() {
		ut := t.UpdatedAt
		updatedAt = &ut
	}

	var productIds []string
	if t.ProductIds != "" {
		// A malformed blob degrades to an empty list rather than failing the read.
		_ = json.Unmarshal([]byte(t.ProductIds), &productIds)
	}

	return &entity.ChatTurn{
		Id:            t.Id,
		ChatSessionId: t.ChatSessionId,
		UserText:      t.UserText,
		BotSummary:    t.BotSummary,
		State:         t.State,
		ContentType:   t.ContentType,
		DataSource:    t.DataSource,
		ProductIds:    productIds,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     updatedAt,
		DeletedAt:     deletedAt,
		IsDeleted:     t.DeletedAt.Valid,
	}
}

func (m *ChatMapper) ChatTurnToModel(t *entity.ChatTurn) *model.ChatTurn {
	if t == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if t.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *t.DeletedAt, Valid: true}
	} else if t.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if t.UpdatedAt != nil {
		updatedAt = *t.UpdatedAt
	}

	var productIds string
	if len(t.ProductIds) > 0 {
		if b, err := json.Marshal(t.ProductIds); err == nil {
			productIds = string(b)
		}
	}

	return &model.ChatTurn{
		Id:            t.Id,
		ChatSessionId: t.ChatSessionId,
		UserText:      t.UserText,
		BotSummary:    t.BotSummary,
		State:         t.State,
		ContentType:   t.ContentType,
		DataSource:    t.DataSource,
		ProductIds:    productIds,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     updatedAt,
		DeletedAt:     deletedAt,
	}
}
