// Package llm wraps the chat-completion sidecar used for persona
// generation and draft validation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/circuitbreaker"
	"github.com/heroes-chatbot/orchestrator/internal/metrics"
	"github.com/heroes-chatbot/orchestrator/internal/tracing"
)

const completionsPath = "/v1/chat/completions"

// Config configures the LLM client
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Verdict is the validator's structured judgment of a draft answer
type Verdict struct {
	IsValid     bool     `json:"is_valid"`
	FinalAnswer string   `json:"final_answer"`
	Confidence  float64  `json:"confidence"`
	Issues      []string `json:"issues"`
}

// Client talks to an OpenAI-compatible completion endpoint
type Client struct {
	cfg    Config
	http   *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

// NewClient creates an LLM client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:    cfg,
		http:   circuitbreaker.NewHTTPWrapper(httpClient, "llm-service", "llm", logger),
		logger: logger,
	}
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate runs one chat completion and returns the assistant text
func (c *Client) Generate(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	out, err := c.complete(ctx, messages, 0.7)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLMMetrics("generate", status, time.Since(start).Seconds())
	return out, err
}

const draftSystemPrompt = `너는 투자 멘토의 투자 철학을 바탕으로 답변하는 AI 어시스턴트다.

아래에 제공된 문서들을 참고하여 사용자의 질문에 답변하라.

중요:
- 제공된 문서의 내용만 사용하라.
- 문서에 없는 내용은 추측하지 말라.
- 문서의 내용을 그대로 인용하거나 요약하라.
- 답변은 자연스럽고 친절한 톤으로 작성하라.

문서:
%s`

// GenerateDraft produces an evidence-grounded draft answer from the
// retrieved document contents
func (c *Client) GenerateDraft(ctx context.Context, query string, docs []string) (string, error) {
	start := time.Now()
	docContext := strings.Join(docs, "\n\n---\n\n")
	messages := []Message{
		{Role: "system", Content: fmt.Sprintf(draftSystemPrompt, docContext)},
		{Role: "user", Content: query},
	}
	out, err := c.complete(ctx, messages, 0.7)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLMMetrics("draft", status, time.Since(start).Seconds())
	return out, err
}

const validatorSystemPrompt = `너는 RAG 응답 검증자다.

다음 draft answer를 검증하고, JSON 형식으로 결과를 반환하라.

출력 형식 (반드시 JSON만):
{
    "is_valid": true/false,
    "final_answer": "검증된 최종 답변 (개선된 버전)",
    "confidence": 0.0-1.0,
    "issues": ["문제점1", "문제점2"] 또는 []
}

검증 기준:
1. 답변이 질문에 적절히 답하는가?
2. 답변이 제공된 문서 내용과 일치하는가?
3. 답변이 명확하고 이해하기 쉬운가?
4. 답변에 추측이나 문서에 없는 내용이 포함되어 있지 않은가?

중요: 반드시 유효한 JSON만 출력하라. JSON 이외의 텍스트는 포함하지 말라.`

// ValidateDraft asks the model to judge a draft answer against the user
// question and returns the parsed verdict. A malformed validator reply
// degrades to an invalid verdict with zero confidence rather than an error
// so the refinement loop stays in control.
func (c *Client) ValidateDraft(ctx context.Context, query, draft string) (*Verdict, error) {
	start := time.Now()

	messages := []Message{
		{Role: "system", Content: validatorSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("질문: %s\n\nDraft Answer:\n%s\n\n검증 결과를 JSON 형식으로 반환하라:", query, draft)},
	}

	out, err := c.complete(ctx, messages, 0.0)
	if err != nil {
		metrics.RecordLLMMetrics("validate", "error", time.Since(start).Seconds())
		return nil, err
	}

	verdict, parseErr := parseVerdict(out)
	if parseErr != nil {
		c.logger.Warn("Validator reply was not valid JSON, treating as invalid",
			zap.Error(parseErr),
			zap.String("reply_head", head(out, 120)),
		)
		verdict = &Verdict{IsValid: false, Confidence: 0, Issues: []string{"validator output unparseable"}}
	}

	metrics.RecordLLMMetrics("validate", "ok", time.Since(start).Seconds())
	metrics.ValidationConfidence.Observe(verdict.Confidence)
	return verdict, nil
}

func (c *Client) complete(ctx context.Context, messages []Message, temperature float64) (string, error) {
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath)
	defer span.End()

	payload, err := json.Marshal(completionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion request: status %d: %s", resp.StatusCode, head(string(body), 200))
	}

	var decoded completionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("completion error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("completion response had no choices")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), nil
}

// parseVerdict extracts the verdict JSON from the validator reply,
// tolerating markdown fences and prose around the object.
func parseVerdict(out string) (*Verdict, error) {
	s := strings.TrimSpace(out)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	var v Verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return &v, nil
}

func head(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// IsCircuitOpen reports whether the completion breaker is open
func (c *Client) IsCircuitOpen() bool {
	return c.http.IsCircuitBreakerOpen()
}
