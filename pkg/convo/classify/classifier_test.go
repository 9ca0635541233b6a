package classify

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"shopmate-be/pkg/llm"
	"shopmate-be/pkg/store"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Chat(_ context.Context, _ []llm.Message, _ ...llm.Option) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) Generate(_ context.Context, _ string, _ ...llm.Option) (string, error) {
	return s.response, s.err
}

func testClassifier(response string, err error) *Classifier {
	return NewClassifier(&stubLLM{response: response, err: err}, log.New(io.Discard, "", 0))
}

func TestClassifyParsesModelOutput(t *testing.T) {
	c := testClassifier(`Here is my analysis:
{
  "route": "Product",
  "data_strategy": "fresh_search",
  "domain": "f_and_b",
  "category_path": ["snacks", "chips"],
  "proposed_slots": ["budget", "DIETARY"],
  "is_follow_up": false,
  "confidence": 0.92
}`, nil)

	got, err := c.Classify(context.Background(), "I want chips", store.NewSession("u1", "s1"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Route != RouteProduct {
		t.Errorf("route = %s, want product", got.Route)
	}
	if got.DataStrategy != StrategyFreshSearch {
		t.Errorf("strategy = %s", got.DataStrategy)
	}
	if len(got.ProposedSlots) != 2 || got.ProposedSlots[0] != store.SlotBudget {
		t.Errorf("slot keys not normalized: %v", got.ProposedSlots)
	}
}

func TestClassifyDefaultsBadValues(t *testing.T) {
	c := testClassifier(`{"route": "buy-stuff", "data_strategy": "magic"}`, nil)

	got, err := c.Classify(context.Background(), "hello", store.NewSession("u1", "s1"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got.Route != RouteGeneral {
		t.Errorf("unknown route should default to general, got %s", got.Route)
	}
	if got.DataStrategy != StrategyNone {
		t.Errorf("unknown strategy for general route should be none, got %s", got.DataStrategy)
	}
	if got.Domain != store.DomainUnknown {
		t.Errorf("missing domain should default to unknown, got %s", got.Domain)
	}
}

// The classifier never fails the turn: model errors and garbage output both
// degrade to the deterministic fallback.
func TestClassifyFallsBackOnLLMError(t *testing.T) {
	c := testClassifier("", errors.New("connection refused"))

	got, err := c.Classify(context.Background(), "salty snacks", store.NewSession("u1", "s1"))
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if got.Route != RouteProduct || got.DataStrategy != StrategyFreshSearch {
		t.Errorf("default fallback should be fresh product search: %+v", got)
	}
}

func TestClassifyFallsBackOnGarbageOutput(t *testing.T) {
	c := testClassifier("I am sorry, I cannot help with that.", nil)

	got, err := c.Classify(context.Background(), "chips", store.NewSession("u1", "s1"))
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if got.Route != RouteProduct {
		t.Errorf("fallback route = %s", got.Route)
	}
}

func TestFallbackMemoryReference(t *testing.T) {
	c := testClassifier("", errors.New("down"))

	sess := store.NewSession("u1", "s1")
	sess.LastRecommendation = &store.Recommendation{
		Query:    "chips",
		Products: []store.ProductSnapshot{{ID: "p1", Name: "Salted Chips"}},
	}

	got, _ := c.Classify(context.Background(), "which of those is cheapest?", sess)
	if got.DataStrategy != StrategyMemoryOnly {
		t.Errorf("reference to shown products should use memory, got %s", got.DataStrategy)
	}
}

func TestFallbackRefinementIsFollowUp(t *testing.T) {
	c := testClassifier("", errors.New("down"))

	sess := store.NewSession("u1", "s1")
	sess.Slots.CategoryPath = []string{"snacks", "chips"}
	sess.LastRecommendation = &store.Recommendation{
		Query:    "chips",
		Products: []store.ProductSnapshot{{ID: "p1", Name: "Salted Chips"}},
	}

	got, _ := c.Classify(context.Background(), "under 30", sess)
	if !got.IsFollowUp {
		t.Error("short refinement against an anchor should be a follow-up")
	}
	if got.DataStrategy != StrategyFreshSearch {
		t.Errorf("follow-up still needs a search, got %s", got.DataStrategy)
	}

	// Without an anchor the same text is a plain new search.
	got, _ = c.Classify(context.Background(), "under 30", store.NewSession("u1", "s2"))
	if got.IsFollowUp {
		t.Error("no anchor, no follow-up")
	}
}
