package memory

import (
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"shopmate-be/pkg/store"
)

func testFormatter() *Formatter {
	return NewFormatter(log.New(io.Discard, "", 0))
}

func TestIsEligible(t *testing.T) {
	f := testFormatter()

	if f.IsEligible(nil) {
		t.Error("nil session cannot be eligible")
	}
	if f.IsEligible(store.NewSession("u1", "s1")) {
		t.Error("session without recommendation cannot be eligible")
	}

	sess := store.NewSession("u1", "s1")
	sess.LastRecommendation = &store.Recommendation{Query: "chips"}
	if f.IsEligible(sess) {
		t.Error("empty product list cannot be eligible")
	}

	sess.LastRecommendation.Products = []store.ProductSnapshot{{ID: "p1", Name: "Salted Chips"}}
	if !f.IsEligible(sess) {
		t.Error("recommendation with products should be eligible")
	}
}

func TestClassifyTurnType(t *testing.T) {
	if got := ClassifyTurnType(store.DataSourceSearch, 3); got != store.TurnProduct {
		t.Errorf("search turn with products = %s, want PRODUCT", got)
	}
	if got := ClassifyTurnType(store.DataSourceSearch, 0); got != store.TurnCasual {
		t.Errorf("search turn with no products = %s, want CASUAL", got)
	}
	if got := ClassifyTurnType(store.DataSourceMemory, 0); got != store.TurnProduct {
		t.Errorf("memory turn = %s, want PRODUCT", got)
	}
	if got := ClassifyTurnType(store.DataSourceNone, 0); got != store.TurnCasual {
		t.Errorf("no-data turn = %s, want CASUAL", got)
	}
}

func TestFormatForAnsweringTruncatesOldestFirst(t *testing.T) {
	f := testFormatter()

	history := make([]store.Turn, 0, 12)
	for i := 0; i < 12; i++ {
		history = append(history, store.Turn{
			UserText:    fmt.Sprintf("question %d", i),
			BotSummary:  fmt.Sprintf("answer %d", i),
			ContentType: store.TurnCasual,
			DataSource:  store.DataSourceNone,
		})
	}

	out := f.FormatForAnswering(history, nil, 8)

	if !strings.Contains(out, "turn_count: 8") {
		t.Errorf("expected 8 turns kept, got:\n%s", out)
	}
	if strings.Contains(out, "question 3") {
		t.Error("oldest turns should be dropped")
	}
	if !strings.Contains(out, "question 11") {
		t.Error("most recent turn missing")
	}
}

func TestFormatForAnsweringEmptyRecommendation(t *testing.T) {
	f := testFormatter()

	out := f.FormatForAnswering(nil, nil, 8)
	if !strings.Contains(out, "has_products: false") {
		t.Errorf("missing explicit empty-recommendation marker:\n%s", out)
	}
	if !strings.Contains(out, "turn_count: 0") {
		t.Errorf("missing explicit empty turn count:\n%s", out)
	}
}

func TestFormatForAnsweringProducts(t *testing.T) {
	f := testFormatter()

	rec := &store.Recommendation{
		Query: "low sodium chips",
		Products: []store.ProductSnapshot{
			{
				ID:     "p1",
				Name:   "Lightly Salted Chips",
				Brand:  "Crunchy Co",
				Price:  4500,
				Rating: 4.3,
				Attributes: map[string]string{
					"sodium_mg": "90",
					"flavor":    "sea salt",
				},
			},
		},
	}

	out := f.FormatForAnswering(nil, rec, 8)

	for _, want := range []string{
		"has_products: true",
		"query: low sodium chips",
		"id: p1",
		"name: Lightly Salted Chips",
		"price_minor: 4500",
		"rating: 4.30",
		"attr_flavor: sea salt",
		"attr_sodium_mg: 90",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	// Attribute emission is sorted, so output is stable across runs.
	if strings.Index(out, "attr_flavor") > strings.Index(out, "attr_sodium_mg") {
		t.Error("attributes not emitted in sorted order")
	}
}
