package dto

import "time"

// PublishTurnMessage is the internal bus payload emitted after each
// completed conversation turn. The consumer persists it as transcript rows.
type PublishTurnMessage struct {
	UserId      string    `json:"user_id"`
	SessionKey  string    `json:"session_key"`
	Domain      string    `json:"domain"`
	State       string    `json:"state"`
	UserText    string    `json:"user_text"`
	BotSummary  string    `json:"bot_summary"`
	ContentType string    `json:"content_type"`
	DataSource  string    `json:"data_source"`
	ProductIds  []string  `json:"product_ids,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
