// Package compose turns the accumulated run state into the final user
// reply. Single-indicator and bare-price lookups get templated answers;
// everything else goes through the persona prompt and the LLM.
package compose

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/historical"
	"github.com/heroes-chatbot/orchestrator/internal/llm"
	"github.com/heroes-chatbot/orchestrator/internal/market"
	"github.com/heroes-chatbot/orchestrator/internal/metrics"
	"github.com/heroes-chatbot/orchestrator/internal/personas"
	"github.com/heroes-chatbot/orchestrator/internal/router"
)

// ApologyResponse is returned whenever generation fails internally
const ApologyResponse = "죄송합니다. 응답 생성 중 오류가 발생했습니다."

// Generator produces text from chat messages
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message) (string, error)
}

// Input carries everything the composer may draw on. Empty evidence
// slices are valid; the persona prompt states what is missing.
type Input struct {
	Message         string
	Persona         *personas.Persona
	Intent          router.Intent
	Symbols         []string
	ValidatedAnswer string
	Issues          []string
	Portfolio       []historical.PortfolioSnapshot
	Macro           []historical.MacroRecord
	Metrics         []*market.Metrics
}

// Composer renders final responses
type Composer struct {
	generator Generator
	logger    *zap.Logger
}

// New creates a composer backed by the given generator
func New(generator Generator, logger *zap.Logger) *Composer {
	return &Composer{generator: generator, logger: logger}
}

// Compose always returns a non-empty string. Internal failures collapse
// to a fixed apology instead of propagating.
func (c *Composer) Compose(ctx context.Context, in Input) string {
	if len(in.Metrics) > 0 {
		if spec := detectMetricRequest(in.Message); spec != nil {
			metrics.FastPathResponses.WithLabelValues("metric").Inc()
			return formatMetricResponse(in.Metrics[0], spec, in.Symbols)
		}
		if isPriceOnlyQuestion(in.Message) {
			metrics.FastPathResponses.WithLabelValues("price").Inc()
			return formatPriceResponse(in.Metrics[0], in.Symbols)
		}
	}

	response, err := c.personaResponse(ctx, in)
	if err != nil {
		c.logger.Error("Persona generation failed",
			zap.String("persona", string(in.Persona.ID)),
			zap.String("intent", in.Intent.String()),
			zap.Error(err))
		return ApologyResponse
	}
	if strings.TrimSpace(response) == "" {
		c.logger.Warn("Persona returned empty response",
			zap.String("persona", string(in.Persona.ID)))
		return ApologyResponse
	}
	return response
}

func (c *Composer) personaResponse(ctx context.Context, in Input) (string, error) {
	data := personas.PromptData{Metrics: in.Metrics}

	if in.ValidatedAnswer != "" {
		data.PhilosophySnippets = append(data.PhilosophySnippets, "[RAG 검증된 요약]\n"+in.ValidatedAnswer)
		if len(in.Issues) > 0 {
			data.PhilosophySnippets = append(data.PhilosophySnippets, "[검증 이슈]\n"+strings.Join(in.Issues, "\n"))
		}
	}
	for _, snap := range in.Portfolio {
		if text := snap.Text(); text != "" {
			data.PortfolioHistory = append(data.PortfolioHistory, text)
		}
	}
	for _, record := range in.Macro {
		if text := record.Text(); text != "" {
			data.MacroTexts = append(data.MacroTexts, text)
		}
	}

	system := in.Persona.SystemPrompt(in.Intent.String(), data)
	return c.generator.Generate(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: in.Message},
	})
}
