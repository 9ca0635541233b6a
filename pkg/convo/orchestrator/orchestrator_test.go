package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"shopmate-be/pkg/convo/assess"
	"shopmate-be/pkg/convo/classify"
	"shopmate-be/pkg/convo/extract"
	"shopmate-be/pkg/convo/memory"
	"shopmate-be/pkg/convo/merge"
	"shopmate-be/pkg/convo/slot"
	"shopmate-be/pkg/productsearch"
	"shopmate-be/pkg/store"
)

// fakeStore is an in-memory SessionStore that counts writes.
type fakeStore struct {
	sessions map[string]*store.Session
	saves    int
	getErr   error
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*store.Session)}
}

func (f *fakeStore) Get(_ context.Context, userID, sessionID string) (*store.Session, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	s, ok := f.sessions[userID+":"+sessionID]
	return s, ok, nil
}

func (f *fakeStore) Save(_ context.Context, s *store.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.sessions[s.UserID+":"+s.SessionID] = s
	return nil
}

func (f *fakeStore) Delete(_ context.Context, userID, sessionID string) error {
	delete(f.sessions, userID+":"+sessionID)
	return nil
}

type fakeClassifier struct {
	result *classify.Classification
	err    error
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, _ *store.Session) (*classify.Classification, error) {
	return f.result, f.err
}

type fakeExtractor struct {
	result     *extract.Constraints
	err        error
	gotQuery   string
	gotFollows []bool
}

func (f *fakeExtractor) Extract(_ context.Context, query string, sess *store.Session, isFollowUp bool) (*extract.Constraints, error) {
	f.gotQuery = query
	f.gotFollows = append(f.gotFollows, isFollowUp)
	if f.err != nil {
		return nil, f.err
	}
	cons := *f.result
	cons.IsFollowUp = isFollowUp
	if isFollowUp && len(sess.Slots.CategoryPath) > 0 {
		cons.CategoryPath = append([]string(nil), sess.Slots.CategoryPath...)
	}
	return &cons, nil
}

type fakeSearcher struct {
	products []productsearch.Product
	err      error
	gotCons  *extract.Constraints
}

func (f *fakeSearcher) Search(_ context.Context, cons *extract.Constraints) ([]productsearch.Product, error) {
	f.gotCons = cons
	return f.products, f.err
}

type fakeAnswers struct {
	memoryErr error
}

func (f *fakeAnswers) FromProducts(_ context.Context, query string, products []productsearch.Product) *Answer {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return &Answer{Summary: "answer for " + query, ProductIDs: ids}
}

func (f *fakeAnswers) FromMemory(_ context.Context, query, _ string) (*Answer, error) {
	if f.memoryErr != nil {
		return nil, f.memoryErr
	}
	return &Answer{Summary: "memory answer for " + query}, nil
}

type fixture struct {
	orch       *Orchestrator
	store      *fakeStore
	classifier *fakeClassifier
	extractor  *fakeExtractor
	searcher   *fakeSearcher
	answers    *fakeAnswers
}

func newFixture() *fixture {
	logger := log.New(io.Discard, "", 0)
	registry := slot.Default()

	f := &fixture{
		store: newFakeStore(),
		classifier: &fakeClassifier{result: &classify.Classification{
			Route:        classify.RouteProduct,
			DataStrategy: classify.StrategyFreshSearch,
			Domain:       store.DomainFoodAndBeverage,
		}},
		extractor: &fakeExtractor{result: &extract.Constraints{
			Query: "chips",
			Hard:  map[store.SlotKey]bool{},
		}},
		searcher: &fakeSearcher{products: []productsearch.Product{
			{ID: "p1", Name: "Salted Chips", Brand: "Crunchy Co", Price: 3500, Rating: 4.2},
			{ID: "p2", Name: "Masala Chips", Brand: "Crunchy Co", Price: 4200, Rating: 4.0},
		}},
		answers: &fakeAnswers{},
	}
	f.orch = New(
		f.store,
		f.classifier,
		f.extractor,
		f.searcher,
		f.answers,
		assess.NewEngine(registry, logger),
		merge.NewEngine(logger),
		memory.NewFormatter(logger),
		registry,
		logger,
	)
	return f
}

func TestFreshSearchTurn(t *testing.T) {
	f := newFixture()

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "I want chips")
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	if result.State != StateFreshSearch {
		t.Errorf("state = %s", result.State)
	}
	if result.DataSource != store.DataSourceSearch {
		t.Errorf("data source = %s", result.DataSource)
	}
	if result.Domain != store.DomainFoodAndBeverage {
		t.Errorf("domain = %s", result.Domain)
	}
	if len(result.Products) != 2 || result.Products[0].ID != "p1" {
		t.Errorf("products = %+v", result.Products)
	}
	if !result.Saved || f.store.saves != 1 {
		t.Errorf("expected exactly one save, got %d", f.store.saves)
	}

	sess := f.store.sessions["u1:s1"]
	if sess.LastRecommendation == nil || len(sess.LastRecommendation.Products) != 2 {
		t.Fatalf("recommendation not captured: %+v", sess.LastRecommendation)
	}
	if len(sess.History) != 1 || sess.History[0].ContentType != store.TurnProduct {
		t.Errorf("history turn wrong: %+v", sess.History)
	}
}

func TestAssessmentAsksThenSearchesOriginalQuery(t *testing.T) {
	f := newFixture()
	f.classifier.result.ProposedSlots = []store.SlotKey{store.SlotBudget, store.SlotDietary}
	f.classifier.result.CategoryPath = []string{"snacks", "chips"}

	// Turn 1: vague query opens the dialog.
	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "I want chips")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.State != StateNewQuery {
		t.Errorf("state = %s", result.State)
	}
	if result.AwaitingSlot != store.SlotBudget {
		t.Errorf("awaiting = %s", result.AwaitingSlot)
	}
	if result.Reply != "Do you have a budget in mind?" {
		t.Errorf("reply = %q", result.Reply)
	}

	// Turn 2: budget answered, dietary asked next.
	result, err = f.orch.HandleTurn(context.Background(), "u1", "s1", "Under 50")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if result.State != StateContinuingAssessment {
		t.Errorf("state = %s", result.State)
	}
	if result.AwaitingSlot != store.SlotDietary {
		t.Errorf("awaiting = %s", result.AwaitingSlot)
	}

	// Turn 3: last answer completes the assessment and triggers the search.
	result, err = f.orch.HandleTurn(context.Background(), "u1", "s1", "Low sodium")
	if err != nil {
		t.Fatalf("turn 3: %v", err)
	}
	if result.State != StateContinuingAssessment {
		t.Errorf("state = %s", result.State)
	}
	if result.DataSource != store.DataSourceSearch {
		t.Errorf("expected a search, got %s", result.DataSource)
	}

	// The search is anchored on the original query, never the final answer.
	if f.extractor.gotQuery != "I want chips" {
		t.Errorf("extraction query = %q, want original query", f.extractor.gotQuery)
	}
	if f.searcher.gotCons == nil {
		t.Fatal("search never ran")
	}
	if f.searcher.gotCons.MaxPrice != 5000 {
		t.Errorf("budget answer missing from search: %+v", f.searcher.gotCons)
	}
	if len(f.searcher.gotCons.Dietary) != 1 || f.searcher.gotCons.Dietary[0] != "low sodium" {
		t.Errorf("dietary answer missing from search: %v", f.searcher.gotCons.Dietary)
	}
	if !f.searcher.gotCons.Hard[store.SlotDietary] {
		t.Error("user-answered dietary must be a hard constraint")
	}

	sess := f.store.sessions["u1:s1"]
	if sess.Assessment != nil {
		t.Error("assessment must be cleared after completion")
	}
	if f.store.saves != 3 {
		t.Errorf("expected one save per turn, got %d", f.store.saves)
	}
}

func TestFollowUpKeepsAnchorConstraints(t *testing.T) {
	f := newFixture()

	// Seed a completed chips search with user-provided slots.
	sess := store.NewSession("u1", "s1")
	sess.Slots.CategoryPath = []string{"snacks", "chips"}
	sess.Slots.Dietary = &store.ListValue{Values: []string{"low sodium"}, Provenance: store.ProvenanceUser}
	sess.LastRecommendation = &store.Recommendation{
		Query:    "I want chips",
		Products: []store.ProductSnapshot{{ID: "p1", Name: "Salted Chips"}},
	}
	f.store.sessions["u1:s1"] = sess

	f.classifier.result.IsFollowUp = true
	f.extractor.result = &extract.Constraints{
		Query:    "chips",
		MaxPrice: 3000,
		Hard:     map[store.SlotKey]bool{store.SlotBudget: true},
	}

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "under 30")
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if result.State != StateFollowUp {
		t.Errorf("state = %s", result.State)
	}
	if len(f.extractor.gotFollows) != 1 || !f.extractor.gotFollows[0] {
		t.Error("extraction must run in follow-up mode")
	}

	cons := f.searcher.gotCons
	if cons.MaxPrice != 3000 {
		t.Errorf("new budget not applied: %+v", cons)
	}
	if len(cons.Dietary) != 1 || cons.Dietary[0] != "low sodium" {
		t.Errorf("anchor dietary dropped on follow-up: %v", cons.Dietary)
	}
	if len(cons.CategoryPath) != 2 || cons.CategoryPath[0] != "snacks" {
		t.Errorf("anchor category dropped: %v", cons.CategoryPath)
	}
}

func TestMemoryAnswerTurn(t *testing.T) {
	f := newFixture()

	sess := store.NewSession("u1", "s1")
	sess.LastRecommendation = &store.Recommendation{
		Query:    "chips",
		Products: []store.ProductSnapshot{{ID: "p1", Name: "Salted Chips", Price: 3500}},
	}
	f.store.sessions["u1:s1"] = sess

	f.classifier.result.DataStrategy = classify.StrategyMemoryOnly

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "which was cheapest?")
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if result.State != StateMemoryAnswer {
		t.Errorf("state = %s", result.State)
	}
	if result.DataSource != store.DataSourceMemory {
		t.Errorf("data source = %s", result.DataSource)
	}
	if f.searcher.gotCons != nil {
		t.Error("memory answer must not hit the search backend")
	}
	if !strings.Contains(result.Reply, "memory answer") {
		t.Errorf("reply = %q", result.Reply)
	}
	if f.store.saves != 1 {
		t.Errorf("saves = %d", f.store.saves)
	}
}

// A failed memory answer gets the generic fallback like any other external
// fault. It must not turn into a search against this turn's empty
// extraction, which would clear the anchor and everything the user answered.
func TestMemoryFailureLeavesSlotsIntact(t *testing.T) {
	f := newFixture()

	sess := store.NewSession("u1", "s1")
	sess.Slots.CategoryPath = []string{"snacks", "chips"}
	sess.Slots.Dietary = &store.ListValue{Values: []string{"vegan"}, Provenance: store.ProvenanceUser}
	sess.LastRecommendation = &store.Recommendation{
		Query:    "chips",
		Products: []store.ProductSnapshot{{ID: "p1", Name: "Salted Chips"}},
	}
	f.store.sessions["u1:s1"] = sess

	f.classifier.result.DataStrategy = classify.StrategyMemoryOnly
	f.answers.memoryErr = errors.New("model timeout")
	f.extractor.result = &extract.Constraints{Query: "", Hard: map[store.SlotKey]bool{}}

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "which was cheapest?")
	if err != nil {
		t.Fatalf("external failures must not surface as errors: %v", err)
	}
	if result.State != StateMemoryAnswer || result.Reply != FallbackReply {
		t.Errorf("result = %+v", result)
	}
	if result.Saved || f.store.saves != 0 {
		t.Errorf("failed turn must not save, saves = %d", f.store.saves)
	}
	if f.searcher.gotCons != nil {
		t.Error("failed memory answer must not fall through to a search")
	}

	if d := sess.Slots.Dietary; d == nil || len(d.Values) != 1 || d.Values[0] != "vegan" {
		t.Errorf("user-provided dietary slot lost: %+v", sess.Slots.Dietary)
	}
	if len(sess.Slots.CategoryPath) != 2 || sess.Slots.CategoryPath[0] != "snacks" {
		t.Errorf("anchor category lost: %v", sess.Slots.CategoryPath)
	}
}

// Memory strategy without anything to answer from degrades to a fresh
// search instead of hallucinating or failing.
func TestMemoryIneligibleFallsBackToSearch(t *testing.T) {
	f := newFixture()
	f.classifier.result.DataStrategy = classify.StrategyMemoryOnly

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "which was cheapest?")
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if result.State != StateFreshSearch {
		t.Errorf("state = %s", result.State)
	}
	if f.searcher.gotCons == nil {
		t.Error("expected a fresh search")
	}
}

func TestSimpleReplyTurn(t *testing.T) {
	f := newFixture()
	f.classifier.result = &classify.Classification{
		Route:       classify.RouteGeneral,
		SimpleReply: "Hi! What are you shopping for today?",
	}

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "hello")
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if result.State != StateSimpleReply {
		t.Errorf("state = %s", result.State)
	}
	if result.Reply != "Hi! What are you shopping for today?" {
		t.Errorf("reply = %q", result.Reply)
	}

	sess := f.store.sessions["u1:s1"]
	if len(sess.History) != 1 || sess.History[0].ContentType != store.TurnCasual {
		t.Errorf("history = %+v", sess.History)
	}
	if sess.Slots.Budget != nil || sess.Assessment != nil {
		t.Error("simple reply must not touch slots or assessment")
	}
}

func TestExtractionFailureLeavesSessionUnsaved(t *testing.T) {
	f := newFixture()
	f.extractor.err = errors.New("model timeout")

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "I want chips")
	if err != nil {
		t.Fatalf("external failures must not surface as errors: %v", err)
	}
	if result.Reply != FallbackReply {
		t.Errorf("reply = %q", result.Reply)
	}
	if result.Saved || f.store.saves != 0 {
		t.Errorf("failed turn must not save, saves = %d", f.store.saves)
	}
}

func TestSearchFailureLeavesSessionUnsaved(t *testing.T) {
	f := newFixture()
	f.searcher.err = errors.New("cluster unavailable")

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "I want chips")
	if err != nil {
		t.Fatalf("external failures must not surface as errors: %v", err)
	}
	if result.Reply != FallbackReply || result.Saved {
		t.Errorf("result = %+v", result)
	}
	if f.store.saves != 0 {
		t.Errorf("saves = %d", f.store.saves)
	}
}

func TestCancelledContextRefusesSave(t *testing.T) {
	f := newFixture()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.HandleTurn(ctx, "u1", "s1", "I want chips")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if f.store.saves != 0 {
		t.Errorf("cancelled turn must not save, saves = %d", f.store.saves)
	}
}

func TestStaleAssessmentIsDropped(t *testing.T) {
	f := newFixture()

	sess := store.NewSession("u1", "s1")
	sess.Assessment = &store.Assessment{
		OriginalQuery: "old query",
		Phase:         store.PhaseAsking,
		// CurrentlyAsking left empty: corrupt state from an older writer.
		Fulfilled:    map[store.SlotKey]bool{},
		UserProvided: map[store.SlotKey]bool{},
	}
	f.store.sessions["u1:s1"] = sess

	result, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "I want chips")
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}
	if result.State != StateFreshSearch {
		t.Errorf("stale assessment should not swallow the turn, state = %s", result.State)
	}
	if f.extractor.gotQuery != "I want chips" {
		t.Errorf("query = %q", f.extractor.gotQuery)
	}
}

func TestNewCategoryClearsPreviousScope(t *testing.T) {
	f := newFixture()

	sess := store.NewSession("u1", "s1")
	sess.Slots.CategoryPath = []string{"snacks", "chips"}
	sess.Slots.Dietary = &store.ListValue{Values: []string{"low sodium"}, Provenance: store.ProvenanceUser}
	sess.Slots.Budget = &store.PriceRange{Max: 5000, Provenance: store.ProvenanceUser}
	f.store.sessions["u1:s1"] = sess

	f.classifier.result.CategoryPath = []string{"personal_care", "shampoo"}
	f.extractor.result = &extract.Constraints{
		Query:        "shampoo",
		CategoryPath: []string{"personal_care", "shampoo"},
		Hard:         map[store.SlotKey]bool{},
	}

	_, err := f.orch.HandleTurn(context.Background(), "u1", "s1", "now I need shampoo")
	if err != nil {
		t.Fatalf("handle turn: %v", err)
	}

	cons := f.searcher.gotCons
	if len(cons.Dietary) != 0 {
		t.Errorf("chips dietary leaked into shampoo search: %v", cons.Dietary)
	}
	if cons.MaxPrice != 0 {
		t.Errorf("chips budget leaked into shampoo search: %d", cons.MaxPrice)
	}
	if len(cons.CategoryPath) != 2 || cons.CategoryPath[0] != "personal_care" {
		t.Errorf("new category not applied: %v", cons.CategoryPath)
	}
}
