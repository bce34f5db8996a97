// Package orchestration runs one user turn through a fixed graph of
// nodes: route, retrieve, validate, load evidence, compose. The engine
// owns termination: a hard step budget and a single-refinement cap keep
// every run bounded.
package orchestration

import (
	"github.com/heroes-chatbot/orchestrator/internal/historical"
	"github.com/heroes-chatbot/orchestrator/internal/market"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
	"github.com/heroes-chatbot/orchestrator/internal/rag"
	"github.com/heroes-chatbot/orchestrator/internal/router"
)

// Node names a handler in the orchestration graph
type Node string

const (
	NodeRouter     Node = "router"
	NodeRAG        Node = "rag"
	NodeRefine     Node = "refine"
	NodeHistorical Node = "historical"
	NodeMarket     Node = "market"
	NodeCompose    Node = "compose"

	// NodeTerminal is the sentinel returned by the composer; no handler
	// is registered for it
	NodeTerminal Node = "terminal"
)

// Validation is the validator's judgment of the current draft
type Validation struct {
	IsValid    bool
	Confidence float64
	Issues     []string
}

// State accumulates everything a run produces. Each run owns its state
// exclusively, so nodes read and the engine writes without locking.
type State struct {
	UserMessage string
	SessionID   string
	Persona     *personas.Persona

	Routed *router.RoutedQuery

	Docs            []rag.Document
	DraftAnswer     string
	ValidatedAnswer string
	Validation      Validation
	RefinementCount int

	Portfolio []historical.PortfolioSnapshot
	Macro     []historical.MacroRecord
	Metrics   []*market.Metrics

	FinalResponse string
}

// Update is a sparse set of field assignments returned by a node. Nil
// fields leave the state untouched; set fields replace wholesale.
// Collections are replaced rather than appended so a refinement pass
// cannot grow them without bound.
type Update struct {
	Routed *router.RoutedQuery

	Docs            *[]rag.Document
	DraftAnswer     *string
	ValidatedAnswer *string
	Validation      *Validation

	// IncrementRefinement bumps the counter by one; the counter is
	// never decremented or reset
	IncrementRefinement bool

	Portfolio *[]historical.PortfolioSnapshot
	Macro     *[]historical.MacroRecord
	Metrics   *[]*market.Metrics

	FinalResponse *string

	// Issue appends one diagnostic to Validation.Issues without
	// replacing the verdict
	Issue string
}

func (s *State) apply(u Update) {
	if u.Routed != nil {
		s.Routed = u.Routed
	}
	if u.Docs != nil {
		s.Docs = *u.Docs
	}
	if u.DraftAnswer != nil {
		s.DraftAnswer = *u.DraftAnswer
	}
	if u.ValidatedAnswer != nil {
		s.ValidatedAnswer = *u.ValidatedAnswer
	}
	if u.Validation != nil {
		s.Validation = *u.Validation
	}
	if u.IncrementRefinement {
		s.RefinementCount++
	}
	if u.Portfolio != nil {
		s.Portfolio = *u.Portfolio
	}
	if u.Macro != nil {
		s.Macro = *u.Macro
	}
	if u.Metrics != nil {
		s.Metrics = *u.Metrics
	}
	if u.FinalResponse != nil {
		s.FinalResponse = *u.FinalResponse
	}
	if u.Issue != "" {
		s.Validation.Issues = append(s.Validation.Issues, u.Issue)
	}
}

func strPtr(s string) *string { return &s }
