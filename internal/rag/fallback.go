package rag

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/heroes-chatbot/orchestrator/internal/metrics"
)

// KeywordRetriever scores an in-memory corpus by term overlap. It serves
// queries when the vector store is unreachable so philosophy answers can
// still cite something instead of failing outright.
type KeywordRetriever struct {
	mu     sync.RWMutex
	corpus map[string][]Document
	logger *zap.Logger
}

// NewKeywordRetriever creates an empty fallback retriever
func NewKeywordRetriever(logger *zap.Logger) *KeywordRetriever {
	return &KeywordRetriever{
		corpus: make(map[string][]Document),
		logger: logger,
	}
}

// AddDocuments registers snippets for a persona
func (k *KeywordRetriever) AddDocuments(persona string, docs []Document) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.corpus[persona] = append(k.corpus[persona], docs...)
}

// LoadSeedFile reads a persona -> snippets YAML file into the corpus.
// The seeds are what keeps answers citable while the vector store is
// unreachable.
func (k *KeywordRetriever) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seeds map[string][]string
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	total := 0
	for persona, snippets := range seeds {
		docs := make([]Document, 0, len(snippets))
		for _, s := range snippets {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			docs = append(docs, Document{
				Content:  s,
				Metadata: map[string]interface{}{"source": "seed"},
			})
		}
		k.AddDocuments(persona, docs)
		total += len(docs)
	}
	k.logger.Info("Fallback seed corpus loaded",
		zap.String("path", path),
		zap.Int("personas", len(seeds)),
		zap.Int("snippets", total))
	return nil
}

// Size returns the number of snippets held for a persona
func (k *KeywordRetriever) Size(persona string) int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.corpus[persona])
}

// Search ranks the persona's snippets by shared terms with the query
func (k *KeywordRetriever) Search(ctx context.Context, persona, query string, topK int) ([]Document, error) {
	start := time.Now()
	k.mu.RLock()
	docs := k.corpus[persona]
	k.mu.RUnlock()

	terms := tokenize(query)
	type scored struct {
		doc   Document
		score float64
	}
	var hits []scored
	for _, d := range docs {
		s := overlapScore(terms, d.Content)
		if s > 0 {
			c := d
			c.Score = s
			hits = append(hits, scored{doc: c, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	metrics.RecordRetrievalMetrics("keyword", "success", time.Since(start).Seconds())
	k.logger.Debug("Keyword fallback search",
		zap.String("persona", persona),
		zap.Int("results", len(out)))
	return out, nil
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'()[]{}")
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

func overlapScore(terms []string, content string) float64 {
	if len(terms) == 0 || content == "" {
		return 0
	}
	lowered := strings.ToLower(content)
	matched := 0
	for _, t := range terms {
		if strings.Contains(lowered, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
