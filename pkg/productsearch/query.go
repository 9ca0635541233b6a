package productsearch

import (
	"strings"

	"shopmate-be/pkg/convo/extract"
	"shopmate-be/pkg/store"
)

// BuildQuery maps merged constraints onto an ES bool query. Hard constraints
// become filters; soft preferences become should clauses so they rank rather
// than exclude.
func BuildQuery(cons *extract.Constraints, limit int) map[string]any {
	must := make([]map[string]any, 0, 2)
	filter := make([]map[string]any, 0, 4)
	should := make([]map[string]any, 0, 2)

	if text := searchText(cons); text != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  text,
				"fields": []string{"name^3", "brand", "description"},
			},
		})
	}

	if len(cons.CategoryPath) > 0 {
		filter = append(filter, map[string]any{
			"terms": map[string]any{"categories": cons.CategoryPath},
		})
	}

	if len(cons.Dietary) > 0 {
		clause := map[string]any{
			"terms": map[string]any{"dietary_tags": cons.Dietary},
		}
		if cons.Hard[store.SlotDietary] {
			filter = append(filter, clause)
		} else {
			should = append(should, clause)
		}
	}

	if cons.Brand != "" {
		clause := map[string]any{
			"term": map[string]any{"brand.keyword": strings.ToLower(cons.Brand)},
		}
		if cons.Hard[store.SlotBrand] {
			filter = append(filter, clause)
		} else {
			should = append(should, clause)
		}
	}

	if cons.MinPrice > 0 || cons.MaxPrice > 0 {
		bounds := map[string]any{}
		if cons.MinPrice > 0 {
			bounds["gte"] = cons.MinPrice
		}
		if cons.MaxPrice > 0 {
			bounds["lte"] = cons.MaxPrice
		}
		filter = append(filter, map[string]any{
			"range": map[string]any{"price": bounds},
		})
	}

	for _, pref := range cons.Preferences {
		should = append(should, map[string]any{
			"match": map[string]any{"description": pref},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(should) > 0 {
		boolQuery["should"] = should
	}
	if len(boolQuery) == 0 {
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}

	return map[string]any{
		"size":  limit,
		"query": map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{"_score": map[string]any{"order": "desc"}},
			{"rating": map[string]any{"order": "desc", "unmapped_type": "float"}},
		},
	}
}

func searchText(cons *extract.Constraints) string {
	if cons.Query != "" {
		return cons.Query
	}
	return strings.Join(cons.Keywords, " ")
}
