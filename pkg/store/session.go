package store

import (
	"context"
	"time"
)

// SlotKey identifies one constraint dimension the assistant may need filled
// before searching.
type SlotKey string

const (
	SlotBudget      SlotKey = "BUDGET"
	SlotDietary     SlotKey = "DIETARY"
	SlotPreferences SlotKey = "PREFERENCES"
	SlotBrand       SlotKey = "BRAND"
	SlotCategory    SlotKey = "CATEGORY"
)

// Provenance records where a slot value came from. Values answered by the
// user are protected during merges; system suggestions are not.
type Provenance string

const (
	ProvenanceUser      Provenance = "user"
	ProvenanceSuggested Provenance = "suggested"
)

const (
	DomainFoodAndBeverage = "f_and_b"
	DomainPersonalCare    = "personal_care"
	DomainUnknown         = "unknown"
)

// Assessment phases
const (
	PhaseAsking   = "asking"
	PhaseComplete = "complete"
)

// Turn content types
const (
	TurnProduct = "PRODUCT"
	TurnCasual  = "CASUAL"
	TurnSupport = "SUPPORT"
)

// Turn data sources
const (
	DataSourceSearch = "es_fetch"
	DataSourceMemory = "memory_only"
	DataSourceNone   = "none"
)

const (
	// MaxHistoryTurns bounds conversation history kept in the session blob.
	MaxHistoryTurns = 8
	// MaxSnapshotProducts bounds the products captured per recommendation.
	MaxSnapshotProducts = 8
)

// ListValue is a list-valued slot with provenance tagging.
type ListValue struct {
	Values     []string   `json:"values"`
	Provenance Provenance `json:"provenance"`
}

// StringValue is a scalar string slot with provenance tagging.
type StringValue struct {
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// PriceRange is a budget slot in minor currency units. Zero means unset.
type PriceRange struct {
	Min        int64      `json:"min"`
	Max        int64      `json:"max"`
	Provenance Provenance `json:"provenance"`
}

// Slots holds the fulfilled constraint values for the current anchor product.
// All of these are category-scoped: they must never survive a category change.
type Slots struct {
	Budget       *PriceRange  `json:"budget,omitempty"`
	Dietary      *ListValue   `json:"dietary,omitempty"`
	Preferences  *ListValue   `json:"preferences,omitempty"`
	Brand        *StringValue `json:"brand,omitempty"`
	CategoryPath []string     `json:"category_path,omitempty"`
}

// ClearCategoryScoped resets every category-scoped slot. Run before merging
// constraints for a new anchor product so values from a previous search can
// never leak into an unrelated one.
func (s *Slots) ClearCategoryScoped() {
	s.Budget = nil
	s.Dietary = nil
	s.Preferences = nil
	s.Brand = nil
	s.CategoryPath = nil
}

// Assessment is one in-progress clarification dialog.
type Assessment struct {
	OriginalQuery   string           `json:"original_query"`
	PriorityOrder   []SlotKey        `json:"priority_order"`
	Fulfilled       map[SlotKey]bool `json:"fulfilled"`
	UserProvided    map[SlotKey]bool `json:"user_provided"`
	CurrentlyAsking SlotKey          `json:"currently_asking,omitempty"`
	Phase           string           `json:"phase"`
}

// Turn is one stored exchange in the bounded conversation history.
type Turn struct {
	UserText    string    `json:"user_text"`
	BotSummary  string    `json:"bot_summary"`
	ContentType string    `json:"content_type"`
	DataSource  string    `json:"data_source"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProductSnapshot is an immutable per-turn capture of a returned product.
type ProductSnapshot struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Brand      string            `json:"brand"`
	Price      int64             `json:"price"`
	Rating     float64           `json:"rating"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Recommendation is the last set of products shown to the user.
type Recommendation struct {
	Query     string            `json:"query"`
	Timestamp time.Time         `json:"timestamp"`
	Products  []ProductSnapshot `json:"products"`
}

// Session is the per-(user, session) conversation state blob. It is read once
// at turn start, mutated on an in-memory copy, and written back at most once
// by the orchestrator.
type Session struct {
	UserID             string          `json:"user_id"`
	SessionID          string          `json:"session_id"`
	Domain             string          `json:"domain"`
	Slots              Slots           `json:"slots"`
	Assessment         *Assessment     `json:"assessment,omitempty"`
	History            []Turn          `json:"history,omitempty"`
	LastRecommendation *Recommendation `json:"last_recommendation,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewSession returns a fresh session for a (user, session) pair.
func NewSession(userID, sessionID string) *Session {
	return &Session{
		UserID:    userID,
		SessionID: sessionID,
		Domain:    DomainUnknown,
	}
}

// AppendTurn adds a turn to history, dropping the oldest beyond the bound.
func (s *Session) AppendTurn(t Turn) {
	s.History = append(s.History, t)
	if len(s.History) > MaxHistoryTurns {
		s.History = s.History[len(s.History)-MaxHistoryTurns:]
	}
}

// SessionStore is the durable per-(user, session) state store. Get returning
// found=false means "start fresh": entries expire via an externally
// configured TTL.
type SessionStore interface {
	Get(ctx context.Context, userID, sessionID string) (*Session, bool, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, userID, sessionID string) error
}
