package orchestration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/compose"
	"github.com/heroes-chatbot/orchestrator/internal/historical"
	"github.com/heroes-chatbot/orchestrator/internal/llm"
	"github.com/heroes-chatbot/orchestrator/internal/market"
	"github.com/heroes-chatbot/orchestrator/internal/metrics"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
	"github.com/heroes-chatbot/orchestrator/internal/rag"
	"github.com/heroes-chatbot/orchestrator/internal/router"
)

const (
	noEvidenceAnswer  = "죄송합니다. 관련 정보를 찾을 수 없습니다."
	noEvidenceIssue   = "관련 문서를 찾을 수 없습니다."
	draftFailedAnswer = "죄송합니다. 답변 생성 중 오류가 발생했습니다."
	validatorIssue    = "검증 과정에서 오류가 발생했습니다."

	historicalSymbolLimit   = 5
	historicalNoSymbolLimit = 10
	analysisSnapshotLimit   = 3
	macroQuartersPerRegion  = 4
)

// Retriever finds knowledge snippets for a persona
type Retriever interface {
	Search(ctx context.Context, persona, query string, topK int) ([]rag.Document, error)
}

// DraftValidator drafts an answer from evidence and judges it
type DraftValidator interface {
	GenerateDraft(ctx context.Context, query string, docs []string) (string, error)
	ValidateDraft(ctx context.Context, query, draft string) (*llm.Verdict, error)
}

// HistoricalStore serves pre-loaded portfolio and macro snapshots
type HistoricalStore interface {
	PortfolioHistory(persona personas.ID, symbol string, topK int) []historical.PortfolioSnapshot
	MacroRegime(region string, lastN int) []historical.MacroRecord
}

// QuoteFetcher loads live market snapshots for symbols
type QuoteFetcher interface {
	FetchAll(ctx context.Context, symbols []string) []*market.Metrics
}

// ResponseComposer renders the terminal response
type ResponseComposer interface {
	Compose(ctx context.Context, in compose.Input) string
}

// NodeFunc is one graph handler: it reads state, returns a sparse
// update and the next node. Errors are absorbed by the engine, never
// propagated to the caller.
type NodeFunc func(ctx context.Context, s *State) (Update, Node, error)

func (e *Engine) routerNode(ctx context.Context, s *State) (Update, Node, error) {
	routed := e.router.Route(s.UserMessage, string(s.Persona.ID))
	return Update{Routed: &routed}, firstNodeFor(routed.Intent), nil
}

// firstNodeFor is the static routing table applied once after the router
func firstNodeFor(intent router.Intent) Node {
	switch {
	case intent == router.IntentHistoricalData, intent == router.IntentMacroOutlook:
		return NodeHistorical
	case intent.NeedsRetrieval():
		return NodeRAG
	case intent == router.IntentCompanyMetrics:
		return NodeMarket
	default:
		return NodeCompose
	}
}

func (e *Engine) ragNode(ctx context.Context, s *State) (Update, Node, error) {
	return e.retrieveAndValidate(ctx, s, e.topK, false)
}

// refineNode re-runs retrieval with a wider net. The counter is bumped
// unconditionally so the loop cannot repeat even when the retry fails.
func (e *Engine) refineNode(ctx context.Context, s *State) (Update, Node, error) {
	metrics.Refinements.Inc()
	update, next, err := e.retrieveAndValidate(ctx, s, e.expandedTopK, true)
	update.IncrementRefinement = true
	return update, next, err
}

func (e *Engine) retrieveAndValidate(ctx context.Context, s *State, topK int, refining bool) (Update, Node, error) {
	query := s.UserMessage
	persona := string(s.Persona.ID)

	docs, err := e.retriever.Search(ctx, persona, query, topK)
	if err != nil {
		e.logger.Warn("Retrieval failed",
			zap.String("persona", persona),
			zap.Bool("refining", refining),
			zap.Error(err))
		docs = nil
	}
	if len(docs) == 0 {
		if refining {
			// keep the previous draft; only the counter moves
			return Update{}, e.routeAfterValidation(s.Routed), nil
		}
		return Update{
			Docs:            &docs,
			ValidatedAnswer: strPtr(noEvidenceAnswer),
			Validation:      &Validation{IsValid: false, Confidence: 0, Issues: []string{noEvidenceIssue}},
		}, NodeCompose, nil
	}

	contents := make([]string, 0, len(docs))
	for _, d := range docs {
		contents = append(contents, d.Content)
	}
	draft, err := e.generator.GenerateDraft(ctx, query, contents)
	if err != nil {
		e.logger.Error("Draft generation failed", zap.Error(err))
		draft = draftFailedAnswer
	}

	verdict := e.validate(ctx, query, draft)
	validated := verdict.FinalAnswer
	if validated == "" {
		validated = draft
	}

	update := Update{
		Docs:            &docs,
		DraftAnswer:     &draft,
		ValidatedAnswer: &validated,
		Validation: &Validation{
			IsValid:    verdict.IsValid,
			Confidence: verdict.Confidence,
			Issues:     verdict.Issues,
		},
	}

	if !refining && e.shouldRefine(verdict, s.RefinementCount) {
		return update, NodeRefine, nil
	}
	return update, e.routeAfterValidation(s.Routed), nil
}

// validate never fails: a broken validator degrades to accepting the
// draft at middling confidence so the run can finish
func (e *Engine) validate(ctx context.Context, query, draft string) *llm.Verdict {
	verdict, err := e.generator.ValidateDraft(ctx, query, draft)
	if err != nil || verdict == nil {
		e.logger.Error("Validator failed", zap.Error(err))
		return &llm.Verdict{
			IsValid:     true,
			FinalAnswer: draft,
			Confidence:  0.5,
			Issues:      []string{validatorIssue},
		}
	}
	return verdict
}

func (e *Engine) shouldRefine(v *llm.Verdict, refinementCount int) bool {
	return (!v.IsValid || v.Confidence < e.confidenceThreshold) && refinementCount < e.maxRefinements
}

// routeAfterValidation decides where to go once the retry budget is
// settled: evidence-hungry intents collect historical data first, then
// quotes, and everything else composes directly.
func (e *Engine) routeAfterValidation(routed *router.RoutedQuery) Node {
	if routed == nil || len(routed.Symbols) == 0 {
		return NodeCompose
	}
	switch routed.Intent {
	case router.IntentCompanyAnalysis, router.IntentCompareCompanies,
		router.IntentNewsAnalysis, router.IntentResearchAnalysis:
		return NodeHistorical
	}
	if routed.Intent.NeedsLiveQuotes() {
		return NodeMarket
	}
	return NodeCompose
}

func (e *Engine) historicalNode(ctx context.Context, s *State) (Update, Node, error) {
	routed := s.Routed
	if routed == nil {
		return Update{}, NodeCompose, nil
	}

	update := Update{}
	switch routed.Intent {
	case router.IntentHistoricalData:
		symbol := ""
		limit := historicalNoSymbolLimit
		if len(routed.Symbols) > 0 {
			symbol = routed.Symbols[0]
			limit = historicalSymbolLimit
		}
		snaps := e.store.PortfolioHistory(routed.Persona, symbol, limit)
		update.Portfolio = &snaps

	case router.IntentMacroOutlook:
		regions := routed.MacroRegions
		if len(regions) == 0 {
			regions = []string{"KR"}
		}
		var records []historical.MacroRecord
		for _, region := range regions {
			full := e.store.MacroRegime(region, 0)
			if len(full) == 0 {
				e.logger.Info("No macro rows for region", zap.String("region", region))
				continue
			}
			if cov := historical.CoverageRecord(region, full); cov != nil {
				records = append(records, *cov)
			}
			rows := full
			if len(rows) > macroQuartersPerRegion {
				rows = rows[:macroQuartersPerRegion]
			}
			records = append(records, rows...)
		}
		update.Macro = &records

	default:
		// analysis and comparison intents get a short snapshot trail
		if len(routed.Symbols) > 0 {
			snaps := e.store.PortfolioHistory(routed.Persona, routed.Symbols[0], analysisSnapshotLimit)
			update.Portfolio = &snaps
		}
	}

	next := NodeCompose
	if len(routed.Symbols) > 0 &&
		(routed.Intent == router.IntentCompanyAnalysis || routed.Intent == router.IntentCompareCompanies) {
		next = NodeMarket
	}
	return update, next, nil
}

func (e *Engine) marketNode(ctx context.Context, s *State) (Update, Node, error) {
	if s.Routed == nil || len(s.Routed.Symbols) == 0 {
		return Update{}, NodeCompose, nil
	}
	snapshots := e.quotes.FetchAll(ctx, s.Routed.Symbols)
	return Update{Metrics: &snapshots}, NodeCompose, nil
}

func (e *Engine) composeNode(ctx context.Context, s *State) (Update, Node, error) {
	in := compose.Input{
		Message:         s.UserMessage,
		Persona:         s.Persona,
		ValidatedAnswer: s.ValidatedAnswer,
		Issues:          s.Validation.Issues,
		Portfolio:       s.Portfolio,
		Macro:           s.Macro,
		Metrics:         s.Metrics,
	}
	if s.Routed != nil {
		in.Intent = s.Routed.Intent
		in.Symbols = s.Routed.Symbols
	} else {
		in.Intent = router.IntentSmalltalk
	}
	response := e.composer.Compose(ctx, in)
	if response == "" {
		response = compose.ApologyResponse
	}
	return Update{FinalResponse: &response}, NodeTerminal, nil
}

func nodeErrorIssue(node Node, err error) string {
	return fmt.Sprintf("%s 노드 오류: %v", node, err)
}
