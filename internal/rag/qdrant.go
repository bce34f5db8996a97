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
	"github.com/heroes-chatbot/orchestrator/internal/metrics"
	"github.com/heroes-chatbot/orchestrator/internal/tracing"
)

// QdrantConfig configures the vector store retriever
type QdrantConfig struct {
	BaseURL    string
	Collection string
	Timeout    time.Duration
}

// QdrantRetriever searches a Qdrant collection filtered by persona
type QdrantRetriever struct {
	baseURL    string
	collection string
	embedder   Embedder
	http       *circuitbreaker.HTTPWrapper
	logger     *zap.Logger
}

// NewQdrantRetriever creates a retriever backed by a Qdrant collection
func NewQdrantRetriever(cfg QdrantConfig, embedder Embedder, logger *zap.Logger) *QdrantRetriever {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "mentor_knowledge"
	}
	return &QdrantRetriever{
		baseURL:    cfg.BaseURL,
		collection: collection,
		embedder:   embedder,
		http:       circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: timeout}, "qdrant", "retrieval", logger),
		logger:     logger,
	}
}

type qdrantQueryRequest struct {
	Query          []float32              `json:"query"`
	Limit          int                    `json:"limit"`
	ScoreThreshold *float64               `json:"score_threshold,omitempty"`
	WithPayload    bool                   `json:"with_payload"`
	Filter         map[string]interface{} `json:"filter,omitempty"`
}

type qdrantSearchRequest struct {
	Vector         []float32              `json:"vector"`
	Limit          int                    `json:"limit"`
	ScoreThreshold *float64               `json:"score_threshold,omitempty"`
	WithPayload    bool                   `json:"with_payload"`
	Filter         map[string]interface{} `json:"filter,omitempty"`
}

type qdrantPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
}

func personaFilter(persona string) map[string]interface{} {
	if persona == "" {
		return nil
	}
	return map[string]interface{}{
		"must": []map[string]interface{}{
			{"key": "guru_id", "match": map[string]interface{}{"value": persona}},
		},
	}
}

// Search embeds the query and returns the top matches for the persona
func (r *QdrantRetriever) Search(ctx context.Context, persona, query string, topK int) ([]Document, error) {
	start := time.Now()
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		metrics.RecordRetrievalMetrics("qdrant", "embed_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("embed query: %w", err)
	}

	points, err := r.queryPoints(ctx, vector, topK, personaFilter(persona))
	if err != nil {
		metrics.RecordRetrievalMetrics("qdrant", "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordRetrievalMetrics("qdrant", "success", time.Since(start).Seconds())

	docs := make([]Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, pointToDocument(p))
	}
	r.logger.Debug("Vector search complete",
		zap.String("persona", persona),
		zap.Int("top_k", topK),
		zap.Int("results", len(docs)))
	return docs, nil
}

// queryPoints tries the modern query API and falls back to the legacy search API
func (r *QdrantRetriever) queryPoints(ctx context.Context, vector []float32, limit int, filter map[string]interface{}) ([]qdrantPoint, error) {
	queryURL := fmt.Sprintf("%s/collections/%s/points/query", r.baseURL, r.collection)
	body, err := json.Marshal(qdrantQueryRequest{
		Query:       vector,
		Limit:       limit,
		WithPayload: true,
		Filter:      filter,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	resp, err := r.post(ctx, queryURL, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var qr qdrantQueryResponse
		if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
			return nil, fmt.Errorf("decode query response: %w", err)
		}
		return qr.Result.Points, nil
	}

	// Older Qdrant deployments only expose /points/search
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		r.logger.Debug("Query API unavailable, using legacy search",
			zap.Int("status", resp.StatusCode))
		return r.legacySearch(ctx, vector, limit, filter)
	}
	return nil, fmt.Errorf("qdrant query: status %d", resp.StatusCode)
}

func (r *QdrantRetriever) legacySearch(ctx context.Context, vector []float32, limit int, filter map[string]interface{}) ([]qdrantPoint, error) {
	searchURL := fmt.Sprintf("%s/collections/%s/points/search", r.baseURL, r.collection)
	body, err := json.Marshal(qdrantSearchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
		Filter:      filter,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	resp, err := r.post(ctx, searchURL, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant search: status %d", resp.StatusCode)
	}

	var sr qdrantSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return sr.Result, nil
}

func (r *QdrantRetriever) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant request: %w", err)
	}
	return resp, nil
}

// IsCircuitOpen reports whether the breaker is rejecting requests
func (r *QdrantRetriever) IsCircuitOpen() bool {
	return r.http.IsCircuitBreakerOpen()
}

func pointToDocument(p qdrantPoint) Document {
	content := ""
	for _, key := range []string{"text", "page_content", "content"} {
		if v, ok := p.Payload[key].(string); ok && v != "" {
			content = v
			break
		}
	}
	meta := make(map[string]interface{}, len(p.Payload))
	for k, v := range p.Payload {
		if k == "text" || k == "page_content" || k == "content" {
			continue
		}
		meta[k] = v
	}
	return Document{Content: content, Metadata: meta, Score: p.Score}
}
