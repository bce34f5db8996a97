package orchestration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/compose"
	"github.com/heroes-chatbot/orchestrator/internal/config"
	"github.com/heroes-chatbot/orchestrator/internal/metrics"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
	"github.com/heroes-chatbot/orchestrator/internal/router"
)

// Deps bundles the collaborators a running engine needs
type Deps struct {
	Router    *router.Router
	Retriever Retriever
	Generator DraftValidator
	Store     HistoricalStore
	Quotes    QuoteFetcher
	Composer  ResponseComposer
}

// Engine executes the orchestration graph. It is immutable after
// construction and safe for concurrent runs.
type Engine struct {
	router    *router.Router
	retriever Retriever
	generator DraftValidator
	store     HistoricalStore
	quotes    QuoteFetcher
	composer  ResponseComposer

	nodes map[Node]NodeFunc

	maxSteps            int
	maxRefinements      int
	confidenceThreshold float64
	topK                int
	expandedTopK        int

	logger *zap.Logger
}

// NewEngine builds the graph once; the routing table never changes
// after this point.
func NewEngine(deps Deps, engineCfg config.EngineConfig, retrievalCfg config.RetrievalConfig, logger *zap.Logger) *Engine {
	e := &Engine{
		router:              deps.Router,
		retriever:           deps.Retriever,
		generator:           deps.Generator,
		store:               deps.Store,
		quotes:              deps.Quotes,
		composer:            deps.Composer,
		maxSteps:            engineCfg.MaxSteps,
		maxRefinements:      engineCfg.MaxRefinements,
		confidenceThreshold: engineCfg.ConfidenceThreshold,
		topK:                retrievalCfg.TopK,
		expandedTopK:        retrievalCfg.ExpandedTopK,
		logger:              logger,
	}
	if e.maxSteps <= 0 {
		e.maxSteps = 8
	}
	if e.maxRefinements < 0 {
		e.maxRefinements = 1
	}
	if e.confidenceThreshold <= 0 {
		e.confidenceThreshold = 0.6
	}
	if e.topK <= 0 {
		e.topK = 5
	}
	if e.expandedTopK <= e.topK {
		e.expandedTopK = e.topK * 2
	}
	e.nodes = map[Node]NodeFunc{
		NodeRouter:     e.routerNode,
		NodeRAG:        e.ragNode,
		NodeRefine:     e.refineNode,
		NodeHistorical: e.historicalNode,
		NodeMarket:     e.marketNode,
		NodeCompose:    e.composeNode,
	}
	return e
}

// Result summarizes one completed engine turn.
type Result struct {
	Response    string
	Intent      string
	Steps       int
	Refinements int
}

// Run executes one user turn and always returns a non-empty response.
// Node failures are absorbed; the worst case is the fixed apology.
func (e *Engine) Run(ctx context.Context, userMessage, personaID, sessionID string) string {
	return e.RunTurn(ctx, userMessage, personaID, sessionID).Response
}

// RunTurn is Run with the routed intent and loop counters exposed for
// callers that record them.
func (e *Engine) RunTurn(ctx context.Context, userMessage, personaID, sessionID string) Result {
	start := time.Now()
	persona := personas.Get(personas.Normalize(personaID))
	metrics.RunsStarted.WithLabelValues(string(persona.ID)).Inc()

	state := &State{
		UserMessage: userMessage,
		SessionID:   sessionID,
		Persona:     persona,
	}

	status := "ok"
	current := NodeRouter
	steps := 0
	for current != NodeTerminal {
		if steps >= e.maxSteps {
			metrics.StepBudgetExceeded.Inc()
			e.logger.Error("Step budget exceeded, aborting run",
				zap.String("session_id", sessionID),
				zap.Int("steps", steps),
				zap.String("node", string(current)))
			state.FinalResponse = compose.ApologyResponse
			status = "budget_exceeded"
			break
		}
		steps++
		metrics.NodeTransitions.WithLabelValues(string(current)).Inc()

		handler, ok := e.nodes[current]
		if !ok {
			e.logger.Error("No handler for node", zap.String("node", string(current)))
			metrics.NodeErrors.WithLabelValues(string(current)).Inc()
			state.FinalResponse = compose.ApologyResponse
			status = "error"
			break
		}

		update, next, err := e.safeInvoke(ctx, current, handler, state)
		if err != nil {
			metrics.NodeErrors.WithLabelValues(string(current)).Inc()
			e.logger.Error("Node failed",
				zap.String("node", string(current)),
				zap.String("session_id", sessionID),
				zap.Error(err))
			if current == NodeCompose {
				state.FinalResponse = compose.ApologyResponse
				status = "error"
				break
			}
			// degrade to composition with whatever state exists
			state.apply(Update{Issue: nodeErrorIssue(current, err)})
			current = NodeCompose
			continue
		}

		state.apply(update)
		current = next
	}

	if state.FinalResponse == "" {
		state.FinalResponse = compose.ApologyResponse
	}

	intent := "unknown"
	if state.Routed != nil {
		intent = state.Routed.Intent.String()
	}
	metrics.RecordRunMetrics(string(persona.ID), intent, status, time.Since(start).Seconds())
	e.logger.Info("Run complete",
		zap.String("session_id", sessionID),
		zap.String("persona", string(persona.ID)),
		zap.String("intent", intent),
		zap.String("status", status),
		zap.Int("steps", steps),
		zap.Int("refinements", state.RefinementCount),
		zap.Duration("duration", time.Since(start)))
	return Result{
		Response:    state.FinalResponse,
		Intent:      intent,
		Steps:       steps,
		Refinements: state.RefinementCount,
	}
}

// safeInvoke shields the loop from panicking handlers
func (e *Engine) safeInvoke(ctx context.Context, node Node, fn NodeFunc, s *State) (update Update, next Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Node panicked",
				zap.String("node", string(node)),
				zap.Any("panic", r))
			update = Update{}
			next = NodeCompose
			err = &nodePanicError{node: node, value: r}
		}
	}()
	return fn(ctx, s)
}

type nodePanicError struct {
	node  Node
	value interface{}
}

func (e *nodePanicError) Error() string {
	return string(e.node) + " panicked"
}
