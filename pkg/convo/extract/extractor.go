package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"shopmate-be/pkg/llm"
	"shopmate-be/pkg/store"
)

// Constraints is the set of search parameters extracted from one query.
// Keys flagged in Hard are must-match filters; everything else is a ranking
// preference. Empty fields mean "no information", never "clear".
type Constraints struct {
	Query        string                 `json:"query"`
	Keywords     []string               `json:"keywords,omitempty"`
	CategoryPath []string               `json:"category_path,omitempty"`
	Dietary      []string               `json:"dietary,omitempty"`
	Preferences  []string               `json:"preferences,omitempty"`
	Brand        string                 `json:"brand,omitempty"`
	MinPrice     int64                  `json:"min_price,omitempty"`
	MaxPrice     int64                  `json:"max_price,omitempty"`
	Hard         map[store.SlotKey]bool `json:"-"`
	IsFollowUp   bool                   `json:"-"`
}

// HasCategory reports whether the extraction carries an anchor category.
func (c *Constraints) HasCategory() bool {
	return len(c.CategoryPath) > 0
}

// Extractor turns a query plus session context into search constraints via
// the LLM. Pure call, no session mutation.
type Extractor struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

// NewExtractor creates a constraint extractor.
func NewExtractor(llmProvider llm.LLMProvider, logger *log.Logger) *Extractor {
	return &Extractor{llmProvider: llmProvider, logger: logger}
}

// Extract resolves the query into constraints. When isFollowUp is set the
// prompt instructs the model to treat the query as a delta against the
// anchor: the anchor category is passed in and must come back unchanged.
func (e *Extractor) Extract(ctx context.Context, query string, sess *store.Session, isFollowUp bool) (*Constraints, error) {
	prompt := e.buildPrompt(query, sess, isFollowUp)

	response, err := e.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	cons, err := parseConstraints(response)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	cons.IsFollowUp = isFollowUp

	// Follow-up deltas never re-derive the anchor from the delta text.
	if isFollowUp && len(sess.Slots.CategoryPath) > 0 {
		cons.CategoryPath = append([]string(nil), sess.Slots.CategoryPath...)
		if cons.Query == "" && sess.LastRecommendation != nil {
			cons.Query = sess.LastRecommendation.Query
		}
	}

	e.logger.Printf("[EXTRACT] query=%q followup=%v category=%v hard=%v",
		query, isFollowUp, cons.CategoryPath, cons.Hard)
	return cons, nil
}

func (e *Extractor) buildPrompt(query string, sess *store.Session, isFollowUp bool) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You extract product search parameters from shopping queries.\n")
	sb.WriteString("You do NOT answer the user. You only emit parameters.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString("<session_state>\n")
	if len(sess.Slots.CategoryPath) > 0 {
		sb.WriteString(fmt.Sprintf("ANCHOR_CATEGORY: %s\n", strings.Join(sess.Slots.CategoryPath, "/")))
	}
	if sess.LastRecommendation != nil {
		sb.WriteString(fmt.Sprintf("LAST_SEARCH: %q\n", sess.LastRecommendation.Query))
	}
	if isFollowUp {
		sb.WriteString("MODE: FOLLOW_UP - the query refines the anchor search.\n")
		sb.WriteString("Keep category_path equal to ANCHOR_CATEGORY. Extract only the new constraints.\n")
	} else {
		sb.WriteString("MODE: NEW_SEARCH - derive everything from the query itself.\n")
	}
	sb.WriteString("</session_state>\n\n")

	sb.WriteString("<user_query>\n")
	sb.WriteString(query)
	sb.WriteString("\n</user_query>\n\n")

	sb.WriteString("<output_format>\n")
	sb.WriteString("Respond with ONLY valid JSON:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"query\": \"normalized product query\",\n")
	sb.WriteString("  \"keywords\": [\"...\"],\n")
	sb.WriteString("  \"category_path\": [\"snacks\", \"chips\"],\n")
	sb.WriteString("  \"dietary\": [\"vegan\"],\n")
	sb.WriteString("  \"preferences\": [\"spicy\"],\n")
	sb.WriteString("  \"brand\": \"\",\n")
	sb.WriteString("  \"min_price\": 0,\n")
	sb.WriteString("  \"max_price\": 5000,\n")
	sb.WriteString("  \"hard_keys\": [\"DIETARY\", \"BUDGET\"]\n")
	sb.WriteString("}\n")
	sb.WriteString("Prices are minor currency units. hard_keys lists the keys the user\n")
	sb.WriteString("stated explicitly; suggested defaults are NOT hard.\n")
	sb.WriteString("</output_format>")

	return sb.String()
}

// rawConstraints mirrors the LLM output with loose typing; numbers come back
// as float64 or strings depending on the model.
type rawConstraints struct {
	Query        string   `json:"query"`
	Keywords     any      `json:"keywords"`
	CategoryPath any      `json:"category_path"`
	Dietary      any      `json:"dietary"`
	Preferences  any      `json:"preferences"`
	Brand        string   `json:"brand"`
	MinPrice     any      `json:"min_price"`
	MaxPrice     any      `json:"max_price"`
	HardKeys     []string `json:"hard_keys"`
}

func parseConstraints(response string) (*Constraints, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var raw rawConstraints
	if err := json.Unmarshal([]byte(jsonContent), &raw); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	cons := &Constraints{
		Query:        strings.TrimSpace(raw.Query),
		Keywords:     toStringSlice(raw.Keywords),
		CategoryPath: toStringSlice(raw.CategoryPath),
		Dietary:      toStringSlice(raw.Dietary),
		Preferences:  toStringSlice(raw.Preferences),
		Brand:        strings.TrimSpace(raw.Brand),
		Hard:         make(map[store.SlotKey]bool, len(raw.HardKeys)),
	}
	if v, ok := toInt64(raw.MinPrice); ok {
		cons.MinPrice = v
	}
	if v, ok := toInt64(raw.MaxPrice); ok {
		cons.MaxPrice = v
	}
	for _, k := range raw.HardKeys {
		cons.Hard[store.SlotKey(strings.ToUpper(strings.TrimSpace(k)))] = true
	}
	return cons, nil
}

func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}
	return response[startIdx : endIdx+1]
}

func toStringSlice(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			s := strings.ToLower(strings.TrimSpace(fmt.Sprint(item)))
			if s != "" {
				result = append(result, s)
			}
		}
		return result
	default:
		s := strings.ToLower(strings.TrimSpace(fmt.Sprint(val)))
		if s == "" {
			return nil
		}
		return []string{s}
	}
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return int64(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	case json.Number:
		parsed, err := val.Int64()
		return parsed, err == nil
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, false
		}
		var parsed float64
		if _, err := fmt.Sscanf(trimmed, "%f", &parsed); err != nil {
			return 0, false
		}
		return int64(parsed), true
	default:
		return 0, false
	}
}
