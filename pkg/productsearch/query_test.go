package productsearch

import (
	"testing"

	"shopmate-be/pkg/convo/extract"
	"shopmate-be/pkg/store"
)

func boolSection(t *testing.T, q map[string]any, section string) []map[string]any {
	t.Helper()
	boolQuery := q["query"].(map[string]any)["bool"].(map[string]any)
	raw, ok := boolQuery[section]
	if !ok {
		return nil
	}
	return raw.([]map[string]any)
}

func TestBuildQueryHardConstraintsFilter(t *testing.T) {
	cons := &extract.Constraints{
		Query:        "chips",
		CategoryPath: []string{"snacks", "chips"},
		Dietary:      []string{"low sodium"},
		Brand:        "Lays",
		MaxPrice:     5000,
		Hard: map[store.SlotKey]bool{
			store.SlotDietary: true,
			store.SlotBrand:   true,
		},
	}

	q := BuildQuery(cons, 10)

	if q["size"] != 10 {
		t.Errorf("size = %v", q["size"])
	}

	filter := boolSection(t, q, "filter")
	// category terms + dietary terms + brand term + price range
	if len(filter) != 4 {
		t.Fatalf("expected 4 filters, got %d: %v", len(filter), filter)
	}

	should := boolSection(t, q, "should")
	if len(should) != 0 {
		t.Errorf("hard constraints must not appear as should clauses: %v", should)
	}

	must := boolSection(t, q, "must")
	if len(must) != 1 {
		t.Fatalf("expected one multi_match, got %v", must)
	}
	mm := must[0]["multi_match"].(map[string]any)
	if mm["query"] != "chips" {
		t.Errorf("multi_match query = %v", mm["query"])
	}
}

func TestBuildQuerySoftConstraintsRank(t *testing.T) {
	cons := &extract.Constraints{
		Query:       "chips",
		Dietary:     []string{"vegan"},
		Brand:       "Lays",
		Preferences: []string{"spicy", "crunchy"},
		Hard:        map[store.SlotKey]bool{},
	}

	q := BuildQuery(cons, 5)

	if filter := boolSection(t, q, "filter"); len(filter) != 0 {
		t.Errorf("soft constraints must not filter: %v", filter)
	}
	// dietary + brand + 2 preferences
	if should := boolSection(t, q, "should"); len(should) != 4 {
		t.Errorf("expected 4 should clauses, got %v", should)
	}
}

func TestBuildQueryPriceBounds(t *testing.T) {
	cons := &extract.Constraints{
		Query:    "chips",
		MinPrice: 1000,
		MaxPrice: 5000,
		Hard:     map[store.SlotKey]bool{store.SlotBudget: true},
	}

	q := BuildQuery(cons, 5)
	filter := boolSection(t, q, "filter")
	if len(filter) != 1 {
		t.Fatalf("expected a single range filter, got %v", filter)
	}
	bounds := filter[0]["range"].(map[string]any)["price"].(map[string]any)
	if bounds["gte"] != int64(1000) || bounds["lte"] != int64(5000) {
		t.Errorf("price bounds = %v", bounds)
	}
}

func TestBuildQueryFallsBackToKeywordsAndMatchAll(t *testing.T) {
	q := BuildQuery(&extract.Constraints{
		Keywords: []string{"salty", "snack"},
		Hard:     map[store.SlotKey]bool{},
	}, 5)
	must := boolSection(t, q, "must")
	mm := must[0]["multi_match"].(map[string]any)
	if mm["query"] != "salty snack" {
		t.Errorf("keyword fallback = %v", mm["query"])
	}

	q = BuildQuery(&extract.Constraints{Hard: map[store.SlotKey]bool{}}, 5)
	must = boolSection(t, q, "must")
	if _, ok := must[0]["match_all"]; !ok {
		t.Errorf("empty constraints should produce match_all, got %v", must)
	}
}
