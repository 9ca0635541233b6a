package slot

import (
	"testing"

	"shopmate-be/pkg/store"
)

func TestDefaultRegistryCoversAllSlots(t *testing.T) {
	r := Default()

	for _, key := range []store.SlotKey{
		store.SlotBudget,
		store.SlotDietary,
		store.SlotPreferences,
		store.SlotBrand,
		store.SlotCategory,
	} {
		def, ok := r.Lookup(key)
		if !ok {
			t.Errorf("slot %s not registered", key)
			continue
		}
		if def.Question == "" {
			t.Errorf("slot %s has no question", key)
		}
		if def.SessionField == "" {
			t.Errorf("slot %s has no session field", key)
		}
	}

	if len(r.Keys()) != 5 {
		t.Errorf("expected 5 slots, got %d", len(r.Keys()))
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default registry must validate: %v", err)
	}

	broken := &Registry{defs: map[store.SlotKey]Definition{
		store.SlotBudget: {Key: store.SlotBudget, SessionField: "budget"},
	}}
	if err := broken.Validate(); err == nil {
		t.Error("expected error for definition without a question")
	}

	empty := &Registry{defs: map[store.SlotKey]Definition{}}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty registry")
	}
}

func TestValidateOrder(t *testing.T) {
	r := Default()

	if err := r.ValidateOrder([]store.SlotKey{store.SlotBudget, store.SlotDietary}); err != nil {
		t.Errorf("valid order rejected: %v", err)
	}
	if err := r.ValidateOrder([]store.SlotKey{store.SlotBudget, "SHOE_SIZE"}); err == nil {
		t.Error("unknown key must fail validation")
	}
}

func TestFilterKnown(t *testing.T) {
	r := Default()

	got := r.FilterKnown([]store.SlotKey{"SHOE_SIZE", store.SlotBrand, "COLOR", store.SlotBudget})
	if len(got) != 2 || got[0] != store.SlotBrand || got[1] != store.SlotBudget {
		t.Errorf("FilterKnown = %v", got)
	}
}

func TestQuestionFallsBackForUnknownKey(t *testing.T) {
	r := Default()

	if q := r.Question("SHOE_SIZE"); q == "" {
		t.Error("unknown key must still produce a question")
	}
	if q := r.Question(store.SlotBudget); q != "Do you have a budget in mind?" {
		t.Errorf("budget question = %q", q)
	}
}
