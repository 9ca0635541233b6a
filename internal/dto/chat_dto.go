package dto

import (
	"time"

	"shopmate-be/pkg/store"

	"github.com/google/uuid"
)

type SendChatRequest struct {
	SessionId string `json:"session_id" validate:"required,max=128"`
	Message   string `json:"message" validate:"required,max=2000"`
}

type ProductDTO struct {
	Id         string            `json:"id"`
	Name       string            `json:"name"`
	Brand      string            `json:"brand,omitempty"`
	PriceMinor int64             `json:"price_minor"`
	Rating     float64           `json:"rating,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type SendChatResponse struct {
	SessionId    string       `json:"session_id"`
	State        string       `json:"state"`
	Reply        string       `json:"reply"`
	QuickReplies []string     `json:"quick_replies,omitempty"`
	ProductIds   []string     `json:"product_ids,omitempty"`
	Products     []ProductDTO `json:"products,omitempty"`
	DataSource   string       `json:"data_source"`
	AwaitingSlot string       `json:"awaiting_slot,omitempty"`
}

type GetSessionStateResponse struct {
	SessionId  string           `json:"session_id"`
	Domain     string           `json:"domain"`
	Category   []string         `json:"category,omitempty"`
	Slots      map[string]any   `json:"slots"`
	Assessment *AssessmentDTO   `json:"assessment,omitempty"`
	History    []TurnHistoryDTO `json:"history"`
}

type AssessmentDTO struct {
	OriginalQuery   string   `json:"original_query"`
	Phase           string   `json:"phase"`
	CurrentlyAsking string   `json:"currently_asking,omitempty"`
	Remaining       []string `json:"remaining,omitempty"`
}

type TranscriptTurnDTO struct {
	Id          uuid.UUID `json:"id"`
	UserText    string    `json:"user_text"`
	BotSummary  string    `json:"bot_summary"`
	State       string    `json:"state"`
	ContentType string    `json:"content_type"`
	DataSource  string    `json:"data_source"`
	ProductIds  []string  `json:"product_ids,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type TurnHistoryDTO struct {
	UserText    string    `json:"user_text"`
	BotSummary  string    `json:"bot_summary"`
	ContentType string    `json:"content_type"`
	DataSource  string    `json:"data_source"`
	CreatedAt   time.Time `json:"created_at"`
}

func ProductDTOFromSnapshot(p store.ProductSnapshot) ProductDTO {
	return ProductDTO{
		Id:         p.ID,
		Name:       p.Name,
		Brand:      p.Brand,
		PriceMinor: p.Price,
		Rating:     p.Rating,
		Attributes: p.Attributes,
	}
}
