package slot

import (
	"fmt"

	"shopmate-be/pkg/store"
)

// Definition describes one slot: how it is stored on the session and how the
// assistant asks for it.
type Definition struct {
	Key           store.SlotKey
	SessionField  string // stable storage key, used in memory blocks and logs
	Question      string // clarification question template
	ListValued    bool   // union-merge semantics apply
	CategoryBound bool   // cleared on anchor product change
}

// Registry is the static slot table. Pure data; loaded once at startup.
type Registry struct {
	defs map[store.SlotKey]Definition
}

// Default returns the registry for the shopping assistant's slot set.
func Default() *Registry {
	defs := []Definition{
		{
			Key:           store.SlotBudget,
			SessionField:  "budget",
			Question:      "Do you have a budget in mind?",
			CategoryBound: true,
		},
		{
			Key:           store.SlotDietary,
			SessionField:  "dietary_requirements",
			Question:      "Any dietary requirements I should keep in mind (vegan, low sodium, sugar free)?",
			ListValued:    true,
			CategoryBound: true,
		},
		{
			Key:           store.SlotPreferences,
			SessionField:  "preferences",
			Question:      "Any preferences on flavour, texture or ingredients?",
			ListValued:    true,
			CategoryBound: true,
		},
		{
			Key:           store.SlotBrand,
			SessionField:  "brand",
			Question:      "Is there a brand you prefer?",
			CategoryBound: true,
		},
		{
			Key:           store.SlotCategory,
			SessionField:  "category_path",
			Question:      "What kind of product are you looking for?",
			CategoryBound: true,
		},
	}

	m := make(map[store.SlotKey]Definition, len(defs))
	for _, d := range defs {
		m[d.Key] = d
	}
	return &Registry{defs: m}
}

// Lookup returns the definition for a key.
func (r *Registry) Lookup(key store.SlotKey) (Definition, bool) {
	d, ok := r.defs[key]
	return d, ok
}

// Question returns the clarification question for a key, or a generic one
// for unknown keys (unknown keys are rejected at startup, so this is only a
// belt for values arriving from an older session blob).
func (r *Registry) Question(key store.SlotKey) string {
	if d, ok := r.defs[key]; ok {
		return d.Question
	}
	return "Could you tell me a bit more about what you're looking for?"
}

// Keys returns all registered slot keys.
func (r *Registry) Keys() []store.SlotKey {
	keys := make([]store.SlotKey, 0, len(r.defs))
	for k := range r.defs {
		keys = append(keys, k)
	}
	return keys
}

// Validate checks the registry is internally complete: every definition
// carries a storage key and a question. Run once at container build.
func (r *Registry) Validate() error {
	if len(r.defs) == 0 {
		return fmt.Errorf("slot registry: no slots registered")
	}
	for key, d := range r.defs {
		if d.SessionField == "" {
			return fmt.Errorf("slot registry: slot %q has no session field", key)
		}
		if d.Question == "" {
			return fmt.Errorf("slot registry: slot %q has no question", key)
		}
	}
	return nil
}

// ValidateOrder checks that every key in a priority order is registered.
// A miss is a configuration error and must abort startup, not a turn.
func (r *Registry) ValidateOrder(order []store.SlotKey) error {
	for _, key := range order {
		if _, ok := r.defs[key]; !ok {
			return fmt.Errorf("slot registry: unknown slot key %q", key)
		}
	}
	return nil
}

// FilterKnown drops unregistered keys from a proposed priority order. Used on
// classifier output, which may propose keys outside the registry.
func (r *Registry) FilterKnown(order []store.SlotKey) []store.SlotKey {
	known := make([]store.SlotKey, 0, len(order))
	for _, key := range order {
		if _, ok := r.defs[key]; ok {
			known = append(known, key)
		}
	}
	return known
}
