package assess

import (
	"regexp"
	"strconv"
	"strings"

	"shopmate-be/pkg/store"
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// parsePriceRange turns a free-text budget answer into a price range in
// minor currency units. "under ₹50" sets only the ceiling, "over 100" only
// the floor, "between 50 and 200" sets both. A bare number is a ceiling,
// matching how shoppers phrase budgets.
func parsePriceRange(raw string) *store.PriceRange {
	lower := strings.ToLower(raw)
	nums := numberPattern.FindAllString(lower, 2)
	if len(nums) == 0 {
		return &store.PriceRange{Provenance: store.ProvenanceUser}
	}

	toMinor := func(s string) int64 {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return int64(f * 100)
	}

	pr := &store.PriceRange{Provenance: store.ProvenanceUser}
	if len(nums) >= 2 {
		pr.Min = toMinor(nums[0])
		pr.Max = toMinor(nums[1])
		if pr.Min > pr.Max {
			pr.Min, pr.Max = pr.Max, pr.Min
		}
		return pr
	}

	value := toMinor(nums[0])
	switch {
	case containsAny(lower, "over", "above", "at least", "minimum", "more than"):
		pr.Min = value
	case containsAny(lower, "under", "below", "less than", "within", "max", "up to"):
		pr.Max = value
	default:
		pr.Max = value
	}
	return pr
}

// splitTerms breaks a free-text answer into normalized terms on commas and
// connective words.
func splitTerms(raw string) []string {
	replacer := strings.NewReplacer(" and ", ",", " or ", ",", "/", ",")
	raw = replacer.Replace(strings.ToLower(raw))

	parts := strings.Split(raw, ",")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := normalizeTerm(p); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func normalizeTerm(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
