package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"shopmate-be/pkg/llm"
	"shopmate-be/pkg/store"
)

// Routes
const (
	RouteProduct = "product"
	RouteSupport = "support"
	RouteGeneral = "general"
)

// Data strategies
const (
	StrategyNone        = "none"
	StrategyFreshSearch = "fresh_search"
	StrategyMemoryOnly  = "memory_only"
)

// Classification is the structured turn decision. It is a read-only output:
// classification never mutates the session.
type Classification struct {
	Route         string          `json:"route"`
	DataStrategy  string          `json:"data_strategy"`
	Domain        string          `json:"domain"`
	CategoryPath  []string        `json:"category_path,omitempty"`
	ProposedSlots []store.SlotKey `json:"proposed_slots,omitempty"`
	IsFollowUp    bool            `json:"is_follow_up"`
	SimpleReply   string          `json:"simple_reply,omitempty"`
	Confidence    float32         `json:"confidence"`
	Reasoning     string          `json:"reasoning,omitempty"`
}

// Classifier resolves the route for a turn via the LLM, with a deterministic
// state-based fallback when the model is unavailable. The fallback is the
// only place keyword heuristics are allowed.
type Classifier struct {
	llmProvider llm.LLMProvider
	logger      *log.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(llmProvider llm.LLMProvider, logger *log.Logger) *Classifier {
	return &Classifier{llmProvider: llmProvider, logger: logger}
}

// Classify analyzes the query against a read-only session snapshot.
func (c *Classifier) Classify(ctx context.Context, query string, sess *store.Session) (*Classification, error) {
	prompt := c.buildPrompt(query, sess)

	response, err := c.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0))
	if err != nil {
		c.logger.Printf("[CLASSIFY] LLM unavailable, using fallback: %v", err)
		return c.fallbackClassification(query, sess), nil
	}

	result, err := parseClassification(response)
	if err != nil {
		c.logger.Printf("[CLASSIFY] Parse failed, using fallback: %v", err)
		return c.fallbackClassification(query, sess), nil
	}

	c.logger.Printf("[CLASSIFY] route=%s strategy=%s followup=%v slots=%v confidence=%.2f",
		result.Route, result.DataStrategy, result.IsFollowUp, result.ProposedSlots, result.Confidence)
	return result, nil
}

func (c *Classifier) buildPrompt(query string, sess *store.Session) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You are a routing analyzer for a shopping assistant. Your ONLY job is\n")
	sb.WriteString("to decide how to handle the user's message. You do NOT answer it.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString("<session_state>\n")
	if len(sess.Slots.CategoryPath) > 0 {
		sb.WriteString(fmt.Sprintf("ANCHOR_CATEGORY: %s\n", strings.Join(sess.Slots.CategoryPath, "/")))
	}
	if sess.LastRecommendation != nil && len(sess.LastRecommendation.Products) > 0 {
		sb.WriteString(fmt.Sprintf("LAST_SEARCH: %q returned these products:\n", sess.LastRecommendation.Query))
		for i, p := range sess.LastRecommendation.Products {
			sb.WriteString(fmt.Sprintf("  %d. %s (%s)\n", i+1, p.Name, p.Brand))
		}
	} else {
		sb.WriteString("NO_PRIOR_SEARCH: nothing has been recommended yet.\n")
	}
	sb.WriteString(fmt.Sprintf("DOMAIN: %s\n", sess.Domain))
	sb.WriteString("</session_state>\n\n")

	sb.WriteString("<user_query>\n")
	sb.WriteString(query)
	sb.WriteString("\n</user_query>\n\n")

	sb.WriteString("<route_definitions>\n")
	sb.WriteString("product: the user wants to find, compare or ask about products\n")
	sb.WriteString("support: order status, refunds, delivery, account problems\n")
	sb.WriteString("general: greetings, small talk, anything else\n")
	sb.WriteString("</route_definitions>\n\n")

	sb.WriteString("<strategy_definitions>\n")
	sb.WriteString("fresh_search: a product lookup is needed\n")
	sb.WriteString("memory_only: answerable purely from LAST_SEARCH products shown above\n")
	sb.WriteString("  (user refers to 'those', a shown product name or brand)\n")
	sb.WriteString("none: no product data needed\n")
	sb.WriteString("</strategy_definitions>\n\n")

	sb.WriteString("<rules>\n")
	sb.WriteString("is_follow_up is true ONLY when the query refines LAST_SEARCH for the\n")
	sb.WriteString("same kind of product (e.g. 'under 50' after a chips search). A new\n")
	sb.WriteString("product noun means a NEW search, not a follow-up.\n")
	sb.WriteString("proposed_slots lists clarifications worth asking for a NEW vague\n")
	sb.WriteString("product query, in priority order, from: BUDGET, DIETARY, PREFERENCES,\n")
	sb.WriteString("BRAND. Leave it empty when the query is specific enough to search.\n")
	sb.WriteString("</rules>\n\n")

	sb.WriteString("<output_format>\n")
	sb.WriteString("Respond with ONLY valid JSON:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"route\": \"product|support|general\",\n")
	sb.WriteString("  \"data_strategy\": \"none|fresh_search|memory_only\",\n")
	sb.WriteString("  \"domain\": \"f_and_b|personal_care|unknown\",\n")
	sb.WriteString("  \"category_path\": [\"snacks\", \"chips\"],\n")
	sb.WriteString("  \"proposed_slots\": [\"BUDGET\", \"DIETARY\"],\n")
	sb.WriteString("  \"is_follow_up\": false,\n")
	sb.WriteString("  \"simple_reply\": \"text for non-product routes, else empty\",\n")
	sb.WriteString("  \"confidence\": 0.95,\n")
	sb.WriteString("  \"reasoning\": \"Brief explanation\"\n")
	sb.WriteString("}\n")
	sb.WriteString("</output_format>")

	return sb.String()
}

func parseClassification(response string) (*Classification, error) {
	jsonContent := extractJSON(response)
	if jsonContent == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var result Classification
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, fmt.Errorf("JSON unmarshal failed: %w", err)
	}

	// Normalize
	result.Route = strings.ToLower(strings.TrimSpace(result.Route))
	result.DataStrategy = strings.ToLower(strings.TrimSpace(result.DataStrategy))
	switch result.Route {
	case RouteProduct, RouteSupport, RouteGeneral:
	default:
		result.Route = RouteGeneral
	}
	switch result.DataStrategy {
	case StrategyNone, StrategyFreshSearch, StrategyMemoryOnly:
	default:
		if result.Route == RouteProduct {
			result.DataStrategy = StrategyFreshSearch
		} else {
			result.DataStrategy = StrategyNone
		}
	}
	if result.Domain == "" {
		result.Domain = store.DomainUnknown
	}
	for i, s := range result.ProposedSlots {
		result.ProposedSlots[i] = store.SlotKey(strings.ToUpper(string(s)))
	}
	return &result, nil
}

// fallbackClassification is the documented degraded path: deterministic,
// session-state driven, with keyword matching only for follow-up and memory
// references since no model output is available.
func (c *Classifier) fallbackClassification(query string, sess *store.Session) *Classification {
	lower := strings.ToLower(query)

	hasMemory := sess.LastRecommendation != nil && len(sess.LastRecommendation.Products) > 0
	if hasMemory && containsAny(lower, "those", "these", "the first", "the second", "above", "you showed") {
		return &Classification{
			Route:        RouteProduct,
			DataStrategy: StrategyMemoryOnly,
			Domain:       sess.Domain,
			Confidence:   0.5,
			Reasoning:    "Fallback: reference keywords with prior recommendation",
		}
	}

	if hasMemory && len(sess.Slots.CategoryPath) > 0 && looksLikeDelta(lower) {
		return &Classification{
			Route:        RouteProduct,
			DataStrategy: StrategyFreshSearch,
			Domain:       sess.Domain,
			IsFollowUp:   true,
			Confidence:   0.5,
			Reasoning:    "Fallback: refinement phrasing against existing anchor",
		}
	}

	return &Classification{
		Route:        RouteProduct,
		DataStrategy: StrategyFreshSearch,
		Domain:       sess.Domain,
		Confidence:   0.5,
		Reasoning:    "Fallback: defaulting to fresh product search",
	}
}

// looksLikeDelta spots refinement-only phrasing: a constraint with no
// product noun, e.g. "under 50" or "cheaper ones".
func looksLikeDelta(lower string) bool {
	return containsAny(lower, "under", "below", "cheaper", "less than", "over", "above") &&
		len(strings.Fields(lower)) <= 4
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func extractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}
	return response[startIdx : endIdx+1]
}
