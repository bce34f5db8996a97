package rag

import (
	"context"

	"go.uber.org/zap"
)

// Service fronts the vector retriever and degrades to the keyword
// fallback when the primary backend fails or its breaker is open.
type Service struct {
	primary  Retriever
	fallback *KeywordRetriever
	logger   *zap.Logger
}

// NewService combines a primary retriever with the keyword fallback.
// primary may be nil when no vector store is configured.
func NewService(primary Retriever, fallback *KeywordRetriever, logger *zap.Logger) *Service {
	return &Service{primary: primary, fallback: fallback, logger: logger}
}

// Search queries the primary backend and falls back on any failure
func (s *Service) Search(ctx context.Context, persona, query string, topK int) ([]Document, error) {
	if s.primary != nil {
		docs, err := s.primary.Search(ctx, persona, query, topK)
		if err == nil {
			return docs, nil
		}
		s.logger.Warn("Primary retrieval failed, using keyword fallback",
			zap.String("persona", persona),
			zap.Error(err))
	}
	if s.fallback == nil {
		return nil, nil
	}
	return s.fallback.Search(ctx, persona, query, topK)
}
