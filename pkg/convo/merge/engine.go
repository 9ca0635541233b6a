package merge

import (
	"log"
	"strings"

	"shopmate-be/pkg/convo/extract"
	"shopmate-be/pkg/store"
)

// Engine decides, per extracted constraint, whether to adopt, union-merge or
// discard against the session's prior state. Pure and state-local: it
// mutates only the in-memory session copy handed to it.
type Engine struct {
	logger *log.Logger
}

// NewEngine creates a merge engine.
func NewEngine(logger *log.Logger) *Engine {
	return &Engine{logger: logger}
}

// BeginScope opens the merge scope for a NEW (non-follow-up) product query.
// When the anchor category differs from the session's current one, every
// category-scoped slot is cleared before any value is merged in. This runs
// unconditionally for new queries, whether or not the query mentions those
// slots; it is the mechanical guarantee that one product's constraints never
// filter another product's search, and no classifier output can override it.
func (e *Engine) BeginScope(sess *store.Session, newCategory []string) {
	if sameCategory(sess.Slots.CategoryPath, newCategory) {
		return
	}
	e.logger.Printf("[MERGE] Category change %v -> %v, clearing scoped slots",
		sess.Slots.CategoryPath, newCategory)
	sess.Slots.ClearCategoryScoped()
	if len(newCategory) > 0 {
		sess.Slots.CategoryPath = append([]string(nil), newCategory...)
	}
}

// Apply merges extracted constraints into the session slots.
//
// List-valued slots: an incoming value for a slot the user explicitly
// answered this conversation is union-merged with the user's value, never a
// plain overwrite. Without a user-provided value the incoming list replaces
// whatever suggestion was there. Empty incoming lists carry no information
// and leave the existing value alone.
//
// Scalar slots (budget, brand): incoming values overwrite within the current
// scope; BeginScope has already cleared stale scope for new anchors.
//
// Follow-up deltas never touch the anchor category.
func (e *Engine) Apply(sess *store.Session, cons *extract.Constraints) {
	if !cons.IsFollowUp && cons.HasCategory() {
		sess.Slots.CategoryPath = append([]string(nil), cons.CategoryPath...)
	}

	sess.Slots.Dietary = mergeList(sess.Slots.Dietary, cons.Dietary, cons.Hard[store.SlotDietary])
	sess.Slots.Preferences = mergeList(sess.Slots.Preferences, cons.Preferences, cons.Hard[store.SlotPreferences])

	if cons.Brand != "" {
		prov := store.ProvenanceSuggested
		if cons.Hard[store.SlotBrand] {
			prov = store.ProvenanceUser
		}
		sess.Slots.Brand = &store.StringValue{Value: strings.ToLower(cons.Brand), Provenance: prov}
	}

	if cons.MinPrice > 0 || cons.MaxPrice > 0 {
		prov := store.ProvenanceSuggested
		if cons.Hard[store.SlotBudget] {
			prov = store.ProvenanceUser
		}
		sess.Slots.Budget = &store.PriceRange{Min: cons.MinPrice, Max: cons.MaxPrice, Provenance: prov}
	}
}

// mergeList implements the provenance-aware list merge. The user's explicit
// answer is never dropped: suggestions are unioned into it. A hard incoming
// value is itself user intent and keeps user provenance.
func mergeList(existing *store.ListValue, incoming []string, hard bool) *store.ListValue {
	if len(incoming) == 0 {
		// No information; preserve, never clear.
		return existing
	}

	prov := store.ProvenanceSuggested
	if hard {
		prov = store.ProvenanceUser
	}

	if existing == nil || existing.Provenance != store.ProvenanceUser {
		return &store.ListValue{Values: dedupe(incoming), Provenance: prov}
	}

	// Existing value was an explicit user answer: union, user wins.
	return &store.ListValue{
		Values:     dedupe(append(append([]string(nil), existing.Values...), incoming...)),
		Provenance: store.ProvenanceUser,
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func sameCategory(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
