package memory

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"shopmate-be/pkg/store"
)

// Formatter builds the tagged memory representation consumed by the
// answer-from-memory capability and decides whether that path is usable.
type Formatter struct {
	logger *log.Logger
}

// NewFormatter creates a memory formatter.
func NewFormatter(logger *log.Logger) *Formatter {
	return &Formatter{logger: logger}
}

// ClassifyTurnType tags a finished turn by what its answer carried.
func ClassifyTurnType(dataSource string, productCount int) string {
	switch {
	case productCount > 0:
		return store.TurnProduct
	case dataSource == store.DataSourceMemory:
		return store.TurnProduct
	case dataSource == store.DataSourceNone:
		return store.TurnCasual
	default:
		return store.TurnCasual
	}
}

// IsEligible reports whether the session has memory worth answering from:
// a last recommendation with at least one product. Callers must fall back
// to a fresh search when this is false; an eligibility miss is a routing
// outcome, not an error.
func (f *Formatter) IsEligible(sess *store.Session) bool {
	return sess != nil &&
		sess.LastRecommendation != nil &&
		len(sess.LastRecommendation.Products) > 0
}

// FormatForAnswering serializes the most recent maxTurns history entries and
// the last recommended products into tagged key/value blocks. Older turns
// are dropped, never truncated mid-entry, and every field is emitted even
// when empty so the consumer never has to guess.
func (f *Formatter) FormatForAnswering(history []store.Turn, rec *store.Recommendation, maxTurns int) string {
	var sb strings.Builder

	turns := history
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	sb.WriteString("<conversation_memory>\n")
	sb.WriteString(fmt.Sprintf("turn_count: %d\n", len(turns)))
	for i, t := range turns {
		sb.WriteString(fmt.Sprintf("<turn index=\"%d\">\n", i+1))
		sb.WriteString(fmt.Sprintf("user: %s\n", t.UserText))
		sb.WriteString(fmt.Sprintf("assistant: %s\n", t.BotSummary))
		sb.WriteString(fmt.Sprintf("content_type: %s\n", t.ContentType))
		sb.WriteString(fmt.Sprintf("data_source: %s\n", t.DataSource))
		sb.WriteString("</turn>\n")
	}
	sb.WriteString("</conversation_memory>\n")

	sb.WriteString("<last_recommendation>\n")
	if rec == nil || len(rec.Products) == 0 {
		sb.WriteString("has_products: false\n")
	} else {
		sb.WriteString("has_products: true\n")
		sb.WriteString(fmt.Sprintf("query: %s\n", rec.Query))
		for i, p := range rec.Products {
			sb.WriteString(fmt.Sprintf("<product index=\"%d\">\n", i+1))
			sb.WriteString(fmt.Sprintf("id: %s\n", p.ID))
			sb.WriteString(fmt.Sprintf("name: %s\n", p.Name))
			sb.WriteString(fmt.Sprintf("brand: %s\n", p.Brand))
			sb.WriteString(fmt.Sprintf("price_minor: %d\n", p.Price))
			sb.WriteString(fmt.Sprintf("rating: %.2f\n", p.Rating))
			attrKeys := make([]string, 0, len(p.Attributes))
			for k := range p.Attributes {
				attrKeys = append(attrKeys, k)
			}
			sort.Strings(attrKeys)
			for _, k := range attrKeys {
				sb.WriteString(fmt.Sprintf("attr_%s: %s\n", k, p.Attributes[k]))
			}
			sb.WriteString("</product>\n")
		}
	}
	sb.WriteString("</last_recommendation>")

	return sb.String()
}
