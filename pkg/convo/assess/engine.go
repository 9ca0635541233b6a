package assess

import (
	"errors"
	"fmt"
	"log"

	"shopmate-be/pkg/convo/slot"
	"shopmate-be/pkg/store"
)

// ErrNoActiveQuestion is returned when RecordAnswer is called without an
// active question. This is a caller-contract violation: swallowing it
// silently loses user answers, so it must surface loudly.
var ErrNoActiveQuestion = errors.New("assess: no active question to answer")

// ErrNoSlotsProposed is returned by Begin when the proposed slot list is
// empty after registry filtering; the caller should skip assessment and
// search directly.
var ErrNoSlotsProposed = errors.New("assess: no slots proposed")

// Engine drives the ASK-phase slot-filling dialog for one query.
type Engine struct {
	registry *slot.Registry
	logger   *log.Logger
}

// NewEngine creates an assessment engine.
func NewEngine(registry *slot.Registry, logger *log.Logger) *Engine {
	return &Engine{registry: registry, logger: logger}
}

// Begin constructs an Assessment for a query with the proposed slots to ask,
// in order. Unknown slot keys are dropped.
func (e *Engine) Begin(query string, proposed []store.SlotKey) (*store.Assessment, error) {
	order := e.registry.FilterKnown(proposed)
	if len(order) == 0 {
		return nil, ErrNoSlotsProposed
	}

	a := &store.Assessment{
		OriginalQuery:   query,
		PriorityOrder:   order,
		Fulfilled:       make(map[store.SlotKey]bool),
		UserProvided:    make(map[store.SlotKey]bool),
		CurrentlyAsking: order[0],
		Phase:           store.PhaseAsking,
	}
	e.logger.Printf("[ASSESS] Begin: query=%q slots=%v", query, order)
	return a, nil
}

// RecordAnswer parses the user's raw answer into the session slot for the
// given key and marks the slot fulfilled and user-provided. Re-answering a
// fulfilled slot overwrites the value; Fulfilled and UserProvided are sets,
// so no duplicates arise. Fails when no question is active.
func (e *Engine) RecordAnswer(sess *store.Session, a *store.Assessment, key store.SlotKey, raw string) error {
	if a == nil || a.Phase != store.PhaseAsking || a.CurrentlyAsking == "" {
		return ErrNoActiveQuestion
	}
	def, ok := e.registry.Lookup(key)
	if !ok {
		return fmt.Errorf("assess: slot %q not registered", key)
	}

	applyAnswer(sess, def, raw)
	a.Fulfilled[key] = true
	a.UserProvided[key] = true
	a.CurrentlyAsking = ""

	e.logger.Printf("[ASSESS] Recorded answer: slot=%s fulfilled=%d/%d", key, len(a.Fulfilled), len(a.PriorityOrder))
	return nil
}

// NextSlot returns the first slot in priority order not yet fulfilled.
// ok=false means the assessment is complete.
func (e *Engine) NextSlot(a *store.Assessment) (store.SlotKey, bool) {
	for _, key := range a.PriorityOrder {
		if !a.Fulfilled[key] {
			return key, true
		}
	}
	return "", false
}

// IsComplete reports whether every slot in the priority order is fulfilled.
func (e *Engine) IsComplete(a *store.Assessment) bool {
	for _, key := range a.PriorityOrder {
		if !a.Fulfilled[key] {
			return false
		}
	}
	return true
}

// Advance moves the assessment to its next question, or flips it to the
// complete phase when nothing is left to ask. Returns the question to ask
// and whether one exists.
func (e *Engine) Advance(a *store.Assessment) (string, bool) {
	next, ok := e.NextSlot(a)
	if !ok {
		a.Phase = store.PhaseComplete
		a.CurrentlyAsking = ""
		return "", false
	}
	a.CurrentlyAsking = next
	return e.registry.Question(next), true
}

// applyAnswer writes the parsed answer value into the session slots. Answers
// always carry user provenance.
func applyAnswer(sess *store.Session, def slot.Definition, raw string) {
	switch def.Key {
	case store.SlotBudget:
		sess.Slots.Budget = parsePriceRange(raw)
	case store.SlotDietary:
		sess.Slots.Dietary = &store.ListValue{
			Values:     splitTerms(raw),
			Provenance: store.ProvenanceUser,
		}
	case store.SlotPreferences:
		sess.Slots.Preferences = &store.ListValue{
			Values:     splitTerms(raw),
			Provenance: store.ProvenanceUser,
		}
	case store.SlotBrand:
		sess.Slots.Brand = &store.StringValue{
			Value:      normalizeTerm(raw),
			Provenance: store.ProvenanceUser,
		}
	case store.SlotCategory:
		sess.Slots.CategoryPath = splitTerms(raw)
	}
}
