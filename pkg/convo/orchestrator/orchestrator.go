package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"shopmate-be/pkg/convo/assess"
	"shopmate-be/pkg/convo/classify"
	"shopmate-be/pkg/convo/extract"
	"shopmate-be/pkg/convo/memory"
	"shopmate-be/pkg/convo/merge"
	"shopmate-be/pkg/convo/slot"
	"shopmate-be/pkg/productsearch"
	"shopmate-be/pkg/store"
)

// Turn states. One is chosen per turn; transitions are decided up front, not
// scattered across nested branches.
const (
	StateNewQuery             = "NEW_QUERY"
	StateContinuingAssessment = "CONTINUING_ASSESSMENT"
	StateFollowUp             = "FOLLOW_UP"
	StateMemoryAnswer         = "MEMORY_ANSWER"
	StateFreshSearch          = "FRESH_SEARCH"
	StateSimpleReply          = "SIMPLE_REPLY"
)

// FallbackReply is the one generic user-facing message for unrecovered
// external faults. Internal detail never leaks to the user.
const FallbackReply = "Sorry, I couldn't work that one out. Could you rephrase what you're looking for?"

// Classifier decides the route for a turn against a read-only snapshot.
type Classifier interface {
	Classify(ctx context.Context, query string, sess *store.Session) (*classify.Classification, error)
}

// Extractor turns a query into search constraints.
type Extractor interface {
	Extract(ctx context.Context, query string, sess *store.Session, isFollowUp bool) (*extract.Constraints, error)
}

// Searcher executes a product search. Opaque to the core; it only needs
// stable product ids back.
type Searcher interface {
	Search(ctx context.Context, cons *extract.Constraints) ([]productsearch.Product, error)
}

// AnswerGenerator produces the natural-language answer plus UX metadata.
type AnswerGenerator interface {
	FromProducts(ctx context.Context, query string, products []productsearch.Product) *Answer
	FromMemory(ctx context.Context, query, memoryBlock string) (*Answer, error)
}

// Answer is the response contract of answer generation.
type Answer struct {
	Summary      string   `json:"summary"`
	ProductIDs   []string `json:"product_ids,omitempty"`
	QuickReplies []string `json:"quick_replies,omitempty"`
}

// TurnResult is what one orchestrated turn hands back to the transport.
type TurnResult struct {
	State        string
	Reply        string
	QuickReplies []string
	ProductIDs   []string
	Products     []store.ProductSnapshot
	DataSource   string
	Domain       string
	AwaitingSlot store.SlotKey // set when the turn ended on a clarification question
	Saved        bool
}

// Orchestrator is the single entry point per turn and the only component
// that persists session state. All other components work on the in-memory
// copy it hands them.
type Orchestrator struct {
	sessions   store.SessionStore
	classifier Classifier
	extractor  Extractor
	searcher   Searcher
	answers    AnswerGenerator
	assessEng  *assess.Engine
	mergeEng   *merge.Engine
	memFmt     *memory.Formatter
	registry   *slot.Registry
	logger     *log.Logger
}

// New wires the orchestrator.
func New(
	sessions store.SessionStore,
	classifier Classifier,
	extractor Extractor,
	searcher Searcher,
	answers AnswerGenerator,
	assessEng *assess.Engine,
	mergeEng *merge.Engine,
	memFmt *memory.Formatter,
	registry *slot.Registry,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessions:   sessions,
		classifier: classifier,
		extractor:  extractor,
		searcher:   searcher,
		answers:    answers,
		assessEng:  assessEng,
		mergeEng:   mergeEng,
		memFmt:     memFmt,
		registry:   registry,
		logger:     logger,
	}
}

// HandleTurn processes one user turn. The session entry is read once here
// and saved at most once, after the full result is assembled; a failed or
// cancelled turn leaves the stored session exactly as it was.
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, sessionID, query string) (*TurnResult, error) {
	sess, found, err := o.sessions.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load session: %w", err)
	}
	if !found {
		sess = store.NewSession(userID, sessionID)
	}

	// An active clarification dialog takes priority over classification:
	// the user's message is the answer to the open question.
	if a := sess.Assessment; a != nil && a.Phase == store.PhaseAsking && a.CurrentlyAsking != "" {
		return o.continueAssessment(ctx, sess, query)
	}
	// An assessment without an open question is a stale artifact; drop it
	// rather than feed an answer into nothing.
	if sess.Assessment != nil {
		o.logger.Printf("[ORCH] Dropping stale assessment for session %s", sessionID)
		sess.Assessment = nil
	}

	cls, err := o.classifier.Classify(ctx, query, sess)
	if err != nil {
		o.logger.Printf("[ORCH] Classification failed: %v", err)
		return o.fallbackResult(StateSimpleReply), nil
	}

	if cls.Route != classify.RouteProduct {
		return o.simpleReply(ctx, sess, query, cls)
	}

	switch {
	case cls.IsFollowUp:
		return o.followUp(ctx, sess, query)
	case cls.DataStrategy == classify.StrategyMemoryOnly && o.memFmt.IsEligible(sess):
		return o.memoryAnswer(ctx, sess, query)
	case cls.DataStrategy == classify.StrategyMemoryOnly:
		// Eligibility miss is a routing outcome, not an error: degrade to
		// a fresh search.
		o.logger.Printf("[ORCH] Memory path ineligible, degrading to fresh search")
		return o.newQuery(ctx, sess, query, cls)
	default:
		return o.newQuery(ctx, sess, query, cls)
	}
}

// continueAssessment records the user's answer to the open question and
// either asks the next question or, when the assessment completes, searches
// anchored on the assessment's ORIGINAL query. The final answer text is
// usually just a constraint ("Under 50") and must never become the product
// noun.
func (o *Orchestrator) continueAssessment(ctx context.Context, sess *store.Session, rawAnswer string) (*TurnResult, error) {
	a := sess.Assessment
	key := a.CurrentlyAsking

	if err := o.assessEng.RecordAnswer(sess, a, key, rawAnswer); err != nil {
		return nil, fmt.Errorf("orchestrator: record answer: %w", err)
	}

	if question, more := o.assessEng.Advance(a); more {
		sess.AppendTurn(store.Turn{
			UserText:    rawAnswer,
			BotSummary:  question,
			ContentType: store.TurnCasual,
			DataSource:  store.DataSourceNone,
			Timestamp:   time.Now(),
		})
		result := &TurnResult{
			State:        StateContinuingAssessment,
			Reply:        question,
			DataSource:   store.DataSourceNone,
			Domain:       sess.Domain,
			AwaitingSlot: a.CurrentlyAsking,
		}
		if err := o.commit(ctx, sess); err != nil {
			return nil, err
		}
		result.Saved = true
		return result, nil
	}

	return o.freshSearch(ctx, sess, a.OriginalQuery, rawAnswer, StateContinuingAssessment, false)
}

// newQuery opens a fresh anchor. Category-scoped slots are cleared before
// any merge, unconditionally; then either a clarification dialog starts or
// the search runs directly.
func (o *Orchestrator) newQuery(ctx context.Context, sess *store.Session, query string, cls *classify.Classification) (*TurnResult, error) {
	o.mergeEng.BeginScope(sess, cls.CategoryPath)
	if cls.Domain != "" {
		sess.Domain = cls.Domain
	}

	if len(cls.ProposedSlots) > 0 {
		a, err := o.assessEng.Begin(query, cls.ProposedSlots)
		if err == nil {
			sess.Assessment = a
			question, _ := o.assessEng.Advance(a)
			sess.AppendTurn(store.Turn{
				UserText:    query,
				BotSummary:  question,
				ContentType: store.TurnCasual,
				DataSource:  store.DataSourceNone,
				Timestamp:   time.Now(),
			})
			result := &TurnResult{
				State:        StateNewQuery,
				Reply:        question,
				DataSource:   store.DataSourceNone,
				Domain:       sess.Domain,
				AwaitingSlot: a.CurrentlyAsking,
			}
			if err := o.commit(ctx, sess); err != nil {
				return nil, err
			}
			result.Saved = true
			return result, nil
		}
		// No usable slots proposed; fall through to searching directly.
		o.logger.Printf("[ORCH] Assessment skipped: %v", err)
	}

	return o.freshSearch(ctx, sess, query, query, StateFreshSearch, false)
}

// followUp refines the existing anchor: delta extraction only, no scope
// clearing, anchor category preserved.
func (o *Orchestrator) followUp(ctx context.Context, sess *store.Session, query string) (*TurnResult, error) {
	return o.freshSearch(ctx, sess, query, query, StateFollowUp, true)
}

// freshSearch runs extraction, merge, search and answer generation, then
// commits the turn. anchorQuery parameterizes extraction and the stored
// recommendation; userText is what the user literally typed this turn.
func (o *Orchestrator) freshSearch(ctx context.Context, sess *store.Session, anchorQuery, userText, state string, isFollowUp bool) (*TurnResult, error) {
	cons, err := o.extractor.Extract(ctx, anchorQuery, sess, isFollowUp)
	if err != nil {
		o.logger.Printf("[ORCH] Extraction failed: %v", err)
		return o.fallbackResult(state), nil
	}

	if state == StateFreshSearch && !isFollowUp {
		// Direct searches that never went through an assessment still get
		// scope isolation against the extracted category.
		o.mergeEng.BeginScope(sess, cons.CategoryPath)
	}
	o.mergeEng.Apply(sess, cons)

	searchCons := buildSearchConstraints(sess, cons, anchorQuery)
	products, err := o.searcher.Search(ctx, searchCons)
	if err != nil {
		o.logger.Printf("[ORCH] Search failed: %v", err)
		return o.fallbackResult(state), nil
	}

	answer := o.answers.FromProducts(ctx, anchorQuery, products)

	snapshots := snapshotProducts(products)
	if len(snapshots) > 0 {
		sess.LastRecommendation = &store.Recommendation{
			Query:     anchorQuery,
			Timestamp: time.Now(),
			Products:  snapshots,
		}
	}
	sess.Assessment = nil
	sess.AppendTurn(store.Turn{
		UserText:    userText,
		BotSummary:  answer.Summary,
		ContentType: memory.ClassifyTurnType(store.DataSourceSearch, len(snapshots)),
		DataSource:  store.DataSourceSearch,
		Timestamp:   time.Now(),
	})

	result := &TurnResult{
		State:        state,
		Reply:        answer.Summary,
		QuickReplies: answer.QuickReplies,
		ProductIDs:   answer.ProductIDs,
		Products:     snapshots,
		DataSource:   store.DataSourceSearch,
		Domain:       sess.Domain,
	}
	if err := o.commit(ctx, sess); err != nil {
		return nil, err
	}
	result.Saved = true
	return result, nil
}

// memoryAnswer answers from stored state without a search.
func (o *Orchestrator) memoryAnswer(ctx context.Context, sess *store.Session, query string) (*TurnResult, error) {
	block := o.memFmt.FormatForAnswering(sess.History, sess.LastRecommendation, store.MaxHistoryTurns)

	answer, err := o.answers.FromMemory(ctx, query, block)
	if err != nil {
		// Same contract as extraction/search failures: generic reply, no
		// mutation, no save. Degrading into a search from here would merge
		// against a failed turn's empty extraction and wipe the anchor.
		o.logger.Printf("[ORCH] Memory answer failed: %v", err)
		return o.fallbackResult(StateMemoryAnswer), nil
	}

	sess.Assessment = nil
	sess.AppendTurn(store.Turn{
		UserText:    query,
		BotSummary:  answer.Summary,
		ContentType: store.TurnProduct,
		DataSource:  store.DataSourceMemory,
		Timestamp:   time.Now(),
	})

	result := &TurnResult{
		State:        StateMemoryAnswer,
		Reply:        answer.Summary,
		QuickReplies: answer.QuickReplies,
		ProductIDs:   answer.ProductIDs,
		Products:     sess.LastRecommendation.Products,
		DataSource:   store.DataSourceMemory,
		Domain:       sess.Domain,
	}
	if err := o.commit(ctx, sess); err != nil {
		return nil, err
	}
	result.Saved = true
	return result, nil
}

// simpleReply handles non-product routes: history append only, no slot or
// assessment mutation.
func (o *Orchestrator) simpleReply(ctx context.Context, sess *store.Session, query string, cls *classify.Classification) (*TurnResult, error) {
	reply := cls.SimpleReply
	if reply == "" {
		reply = "Happy to help with your shopping - what product are you after?"
	}

	contentType := store.TurnCasual
	if cls.Route == classify.RouteSupport {
		contentType = store.TurnSupport
	}
	sess.AppendTurn(store.Turn{
		UserText:    query,
		BotSummary:  reply,
		ContentType: contentType,
		DataSource:  store.DataSourceNone,
		Timestamp:   time.Now(),
	})

	result := &TurnResult{
		State:      StateSimpleReply,
		Reply:      reply,
		DataSource: store.DataSourceNone,
		Domain:     sess.Domain,
	}
	if err := o.commit(ctx, sess); err != nil {
		return nil, err
	}
	result.Saved = true
	return result, nil
}

// commit is the single save point per turn. A cancelled context refuses the
// write, leaving the stored session untouched for the turn.
func (o *Orchestrator) commit(ctx context.Context, sess *store.Session) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("orchestrator: turn cancelled before save: %w", err)
	}
	sess.UpdatedAt = time.Now()
	if err := o.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("orchestrator: save session: %w", err)
	}
	return nil
}

func (o *Orchestrator) fallbackResult(state string) *TurnResult {
	return &TurnResult{
		State:      state,
		Reply:      FallbackReply,
		DataSource: store.DataSourceNone,
	}
}

// buildSearchConstraints combines the extraction with the merged session
// slots so the search always reflects everything the user has answered, not
// just this turn's text.
func buildSearchConstraints(sess *store.Session, cons *extract.Constraints, anchorQuery string) *extract.Constraints {
	out := &extract.Constraints{
		Query:      cons.Query,
		Keywords:   cons.Keywords,
		Hard:       make(map[store.SlotKey]bool, len(cons.Hard)),
		IsFollowUp: cons.IsFollowUp,
	}
	if out.Query == "" {
		out.Query = anchorQuery
	}
	for k, v := range cons.Hard {
		out.Hard[k] = v
	}

	out.CategoryPath = append([]string(nil), sess.Slots.CategoryPath...)
	if d := sess.Slots.Dietary; d != nil {
		out.Dietary = append([]string(nil), d.Values...)
		if d.Provenance == store.ProvenanceUser {
			out.Hard[store.SlotDietary] = true
		}
	}
	if p := sess.Slots.Preferences; p != nil {
		out.Preferences = append([]string(nil), p.Values...)
	}
	if b := sess.Slots.Brand; b != nil {
		out.Brand = b.Value
		if b.Provenance == store.ProvenanceUser {
			out.Hard[store.SlotBrand] = true
		}
	}
	if pr := sess.Slots.Budget; pr != nil {
		out.MinPrice = pr.Min
		out.MaxPrice = pr.Max
		if pr.Provenance == store.ProvenanceUser {
			out.Hard[store.SlotBudget] = true
		}
	}
	return out
}

func snapshotProducts(products []productsearch.Product) []store.ProductSnapshot {
	limit := len(products)
	if limit > store.MaxSnapshotProducts {
		limit = store.MaxSnapshotProducts
	}
	snapshots := make([]store.ProductSnapshot, 0, limit)
	for _, p := range products[:limit] {
		snapshots = append(snapshots, store.ProductSnapshot{
			ID:         p.ID,
			Name:       p.Name,
			Brand:      p.Brand,
			Price:      p.Price,
			Rating:     p.Rating,
			Attributes: p.Attributes,
		})
	}
	return snapshots
}
