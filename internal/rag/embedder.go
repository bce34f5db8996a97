package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/heroes-chatbot/orchestrator/internal/circuitbreaker"
	"github.com/heroes-chatbot/orchestrator/internal/tracing"
)

// Embedder turns text into a vector for similarity search
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPEmbedder calls the embedding endpoint of the LLM sidecar
type HTTPEmbedder struct {
	baseURL string
	model   string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewHTTPEmbedder creates an embedder client
func NewHTTPEmbedder(baseURL, model string, timeout time.Duration, logger *zap.Logger) *HTTPEmbedder {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		baseURL: baseURL,
		model:   model,
		http:    circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: timeout}, "embeddings", "llm", logger),
		logger:  logger,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// Embed returns the vector for a single text
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	url := fmt.Sprintf("%s/embeddings/", e.baseURL)

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	buf, err := json.Marshal(embedRequest{Texts: []string{text}, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request: status %d", resp.StatusCode)
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(er.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	out := make([]float32, len(er.Embeddings[0]))
	for i, f := range er.Embeddings[0] {
		out[i] = float32(f)
	}
	return out, nil
}
